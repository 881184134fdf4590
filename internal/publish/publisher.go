// Package publish posts processed videos through a browser-automation CLI.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/vidrelay/vidrelay/internal/runlock"
)

// fatalMarkers are automation CLI output fragments that retrying cannot get
// past without human intervention: an expired login or a rejected post.
var fatalMarkers = []string{
	"not logged in",
	"logged out",
	"login required",
	"login expired",
	"account banned",
	"content rejected",
	"审核不通过",
	"违规",
}

// confirmationPrefixes mark CLI output lines that carry the posted note id.
var confirmationPrefixes = []string{"confirmation:", "post id:", "note id:"}

// Error describes a failed publish run.
type Error struct {
	Account  string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("publish via account %q failed (exit %d): %v", e.Account, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("publish via account %q failed (exit %d): %s", e.Account, e.ExitCode, out)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the CLI output names a condition no retry can fix.
func (e *Error) Fatal() bool {
	text := strings.ToLower(e.Output)
	for _, marker := range fatalMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Request is one post to publish.
type Request struct {
	VideoID   string
	MediaPath string
	Title     string
	Body      string
}

// commandResult is the captured output of one subprocess run.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Publisher drives the automation CLI with one account profile. The profile
// claim is taken on first use and held until Close.
type Publisher struct {
	command    string
	account    string
	profileDir string
	runner     commandRunner
	newID      func() string
	session    *runlock.Lock
}

// NewPublisher returns a Publisher invoking command with the given account's
// browser profile. An empty profileDir skips the profile claim.
func NewPublisher(command, account, profileDir string) *Publisher {
	return &Publisher{
		command:    command,
		account:    account,
		profileDir: profileDir,
		runner:     &execRunner{},
		newID:      func() string { return uuid.New().String() },
	}
}

// newPublisherForTests constructs a Publisher with injectable dependencies.
func newPublisherForTests(command, account, profileDir string, runner commandRunner, newID func() string) *Publisher {
	return &Publisher{
		command:    command,
		account:    account,
		profileDir: profileDir,
		runner:     runner,
		newID:      newID,
	}
}

// CheckBinary verifies the automation CLI can be resolved.
func (p *Publisher) CheckBinary() error {
	if _, err := exec.LookPath(p.command); err != nil {
		return fmt.Errorf("publish command %q not found: %w", p.command, err)
	}
	return nil
}

// Publish posts one video and returns a confirmation id. The id comes from
// the CLI output when reported, otherwise one is generated so the record
// always carries a non-empty confirmation.
func (p *Publisher) Publish(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.MediaPath) == "" {
		return "", fmt.Errorf("media path is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return "", fmt.Errorf("title is required")
	}
	if err := p.ensureSession(); err != nil {
		return "", err
	}

	args := p.buildArgs(req)
	result, runErr := p.runner.Run(ctx, p.command, args...)
	if runErr != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("publish interrupted: %w", ctx.Err())
		}
		return "", &Error{
			Account:  p.account,
			ExitCode: result.ExitCode,
			Output:   cliOutput(result),
			Err:      runErr,
		}
	}

	confirmation := parseConfirmation(result.Stdout)
	if confirmation == "" {
		confirmation = "posted-" + p.newID()
	}
	return confirmation, nil
}

// Close releases the browser profile claim. Safe without a prior Publish.
func (p *Publisher) Close() error {
	if p.session == nil {
		return nil
	}
	err := p.session.Release()
	p.session = nil
	return err
}

// ensureSession claims the browser profile. A Chrome profile tolerates one
// automation process at a time.
func (p *Publisher) ensureSession() error {
	if p.session != nil || p.profileDir == "" {
		return nil
	}
	lock, err := runlock.Acquire(p.profileDir + ".lock")
	if err != nil {
		return fmt.Errorf("claim browser profile: %w", err)
	}
	p.session = lock
	return nil
}

func (p *Publisher) buildArgs(req Request) []string {
	args := []string{req.MediaPath, "--title", req.Title, "--desc", req.Body}
	if p.profileDir != "" {
		args = append(args, "--profile", p.profileDir)
	}
	return args
}

// parseConfirmation scans CLI output for an explicitly reported post id.
func parseConfirmation(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		for _, prefix := range confirmationPrefixes {
			if strings.HasPrefix(lower, prefix) {
				if id := strings.TrimSpace(line[len(prefix):]); id != "" {
					return id
				}
			}
		}
	}
	return ""
}

func cliOutput(result commandResult) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(result.Stderr); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(result.Stdout); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}
