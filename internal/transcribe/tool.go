// Package transcribe produces subtitle files from media with an external
// transcription tool.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// subtitleExtensions in preference order. The tool decides what it writes.
var subtitleExtensions = []string{".srt", ".vtt", ".txt"}

// Error describes a failed transcription run. Output carries the tool's own
// failure text unchanged.
type Error struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("transcription tool failed (exit %d): %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("transcription tool failed (exit %d): %s", e.ExitCode, out)
}

func (e *Error) Unwrap() error { return e.Err }

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

// Tool invokes the transcription command for one media file at a time. The
// command is called with the media path and the output directory and is
// expected to leave a subtitle file named after the media file there.
type Tool struct {
	command   string
	outputDir string
	runner    commandRunner
	stat      func(name string) (os.FileInfo, error)
	waitTotal time.Duration
	waitEvery time.Duration
}

// NewTool returns a Tool running the given command with subtitle output under
// outputDir.
func NewTool(command, outputDir string) *Tool {
	return &Tool{
		command:   command,
		outputDir: outputDir,
		runner:    &execRunner{},
		stat:      os.Stat,
		waitTotal: 15 * time.Second,
		waitEvery: 250 * time.Millisecond,
	}
}

// newToolForTests constructs a Tool with injectable dependencies.
func newToolForTests(command, outputDir string, runner commandRunner, waitTotal, waitEvery time.Duration) *Tool {
	return &Tool{
		command:   command,
		outputDir: outputDir,
		runner:    runner,
		stat:      os.Stat,
		waitTotal: waitTotal,
		waitEvery: waitEvery,
	}
}

// CheckBinary verifies the transcription command can be resolved.
func (t *Tool) CheckBinary() error {
	if _, err := exec.LookPath(t.command); err != nil {
		return fmt.Errorf("transcription command %q not found: %w", t.command, err)
	}
	return nil
}

// Transcribe runs the tool on mediaPath and returns the subtitle file path.
func (t *Tool) Transcribe(ctx context.Context, mediaPath string) (string, error) {
	if strings.TrimSpace(mediaPath) == "" {
		return "", fmt.Errorf("media path is required")
	}
	if _, err := t.stat(mediaPath); err != nil {
		return "", fmt.Errorf("cannot access media file %s: %w", mediaPath, err)
	}
	if err := os.MkdirAll(t.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create subtitle directory: %w", err)
	}

	result, runErr := t.runner.Run(ctx, t.command, mediaPath, t.outputDir)
	if runErr != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("transcription interrupted: %w", ctx.Err())
		}
		return "", &Error{ExitCode: result.ExitCode, Output: toolOutput(result), Err: runErr}
	}

	path, err := t.waitForSubtitle(ctx, mediaPath)
	if err != nil {
		return "", &Error{ExitCode: result.ExitCode, Output: toolOutput(result), Err: err}
	}
	return path, nil
}

// waitForSubtitle polls for the artifact after the tool exits. The tool may
// flush its output after the process returns.
func (t *Tool) waitForSubtitle(ctx context.Context, mediaPath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	deadline := time.Now().Add(t.waitTotal)
	for {
		for _, ext := range subtitleExtensions {
			candidate := filepath.Join(t.outputDir, base+ext)
			if info, err := t.stat(candidate); err == nil && info.Size() > 0 {
				return candidate, nil
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no subtitle file for %s in %s after %s", base, t.outputDir, t.waitTotal)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(t.waitEvery):
		}
	}
}

func toolOutput(result commandResult) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(result.Stderr); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(result.Stdout); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}
