// Package runlock guards a directory-shaped resource against concurrent
// processes. Acquire creates the lock directory itself; callers pass the full
// lock path, not its parent.
package runlock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const ownerFileName = "owner.json"

// HeldError reports a lock held by a live process.
type HeldError struct {
	Path      string
	PID       int
	CreatedAt string
	Hostname  string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("lock %s held by pid %d (since %s, host %s)", e.Path, e.PID, e.CreatedAt, e.Hostname)
}

// Lock is a held claim on a directory.
type Lock struct {
	dir string
}

// owner records which process holds the lock.
type owner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// Acquire takes the lock directory at path. A lock whose recorded process is
// no longer alive is stale and is taken over. A lock held by a live process
// yields a *HeldError.
func Acquire(path string) (*Lock, error) {
	target := strings.TrimSpace(path)
	if target == "" {
		return nil, fmt.Errorf("lock path is required")
	}
	if parent := filepath.Dir(target); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("create lock parent: %w", err)
		}
	}

	if err := os.Mkdir(target, 0o755); err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire lock %s: %w", target, err)
		}
		current, readErr := readOwner(filepath.Join(target, ownerFileName))
		if readErr == nil && processAlive(current.PID) {
			return nil, &HeldError{
				Path:      target,
				PID:       current.PID,
				CreatedAt: current.CreatedAt,
				Hostname:  current.Hostname,
			}
		}
		if err := os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("remove stale lock %s: %w", target, err)
		}
		if err := os.Mkdir(target, 0o755); err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", target, err)
		}
	}

	me := owner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := writeOwner(filepath.Join(target, ownerFileName), me); err != nil {
		_ = os.RemoveAll(target)
		return nil, fmt.Errorf("write lock owner for %s: %w", target, err)
	}

	return &Lock{dir: target}, nil
}

// Release removes the lock. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || strings.TrimSpace(l.dir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.dir, ownerFileName))
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.dir, err)
	}
	l.dir = ""
	return nil
}

// processAlive reports whether pid belongs to a running process. Signal 0
// probes without delivering anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func readOwner(path string) (owner, error) {
	var o owner
	data, err := os.ReadFile(path)
	if err != nil {
		return owner{}, err
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return owner{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return o, nil
}

func writeOwner(path string, o owner) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
