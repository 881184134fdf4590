package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Account describes one publish account profile. The chrome profile directory
// carries the logged-in browser session the automation runs under.
type Account struct {
	Name          string `yaml:"name"`
	ChromeProfile string `yaml:"chrome_profile"`
	Enabled       bool   `yaml:"enabled"`
	Description   string `yaml:"description"`
}

// Accounts maps profile keys to publish accounts.
type Accounts struct {
	Accounts map[string]Account `yaml:"accounts"`
}

// LoadAccounts reads publish account profiles from a YAML file.
func LoadAccounts(path string) (*Accounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Accounts
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &a, nil
}

// Get returns the account for the given key, refusing disabled profiles.
func (a *Accounts) Get(key string) (Account, error) {
	acct, ok := a.Accounts[key]
	if !ok {
		return Account{}, fmt.Errorf("account %q not found", key)
	}
	if !acct.Enabled {
		return Account{}, fmt.Errorf("account %q is disabled", key)
	}
	return acct, nil
}
