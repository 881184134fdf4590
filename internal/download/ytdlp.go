// Package download fetches source videos with the yt-dlp executable.
package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// mediaExtensions lists container formats yt-dlp may produce. Anything else
// in the output directory (partial files, thumbnails) is not a download result.
var mediaExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mkv":  true,
	".avi":  true,
}

// fatalMarkers are yt-dlp error fragments that no retry can get past.
var fatalMarkers = []string{
	"video unavailable",
	"private video",
	"this video is private",
	"removed by the uploader",
	"copyright claim",
	"account associated with this video has been terminated",
	"sign in to confirm your age",
	"unsupported url",
}

// Error describes a failed yt-dlp run.
type Error struct {
	VideoID  string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("yt-dlp failed for %s (exit %d)", e.VideoID, e.ExitCode)
	}
	return fmt.Sprintf("yt-dlp failed for %s (exit %d): %s", e.VideoID, e.ExitCode, out)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether yt-dlp's output names a condition that cannot succeed
// on a later attempt, such as a removed or private video.
func (e *Error) Fatal() bool {
	text := strings.ToLower(e.Output)
	for _, marker := range fatalMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
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

// Client downloads source videos by video id.
type Client struct {
	binPath   string
	outputDir string
	maxHeight int
	runner    commandRunner
}

// NewClient returns a Client that runs binPath and writes media files into
// outputDir. maxHeight caps the selected format height; zero or a negative
// value means best available.
func NewClient(binPath, outputDir string, maxHeight int) *Client {
	return &Client{
		binPath:   binPath,
		outputDir: outputDir,
		maxHeight: maxHeight,
		runner:    &streamRunner{},
	}
}

// newClientForTests constructs a Client with an injectable runner.
func newClientForTests(binPath, outputDir string, maxHeight int, runner commandRunner) *Client {
	return &Client{
		binPath:   binPath,
		outputDir: outputDir,
		maxHeight: maxHeight,
		runner:    runner,
	}
}

// CheckBinary verifies the yt-dlp executable can be resolved. Used by startup
// preflight; Download does not require it to have been called.
func (c *Client) CheckBinary() error {
	if _, err := exec.LookPath(c.binPath); err != nil {
		return fmt.Errorf("yt-dlp binary %q not found: %w", c.binPath, err)
	}
	return nil
}

// Download fetches one video and returns the path of the media file on disk.
// The file is named after the video id; yt-dlp picks the container extension.
func (c *Client) Download(ctx context.Context, videoID string) (string, error) {
	if strings.TrimSpace(videoID) == "" {
		return "", fmt.Errorf("video id is required")
	}
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}

	args := c.buildArgs(videoID)
	result, runErr := c.runner.Run(ctx, c.binPath, args...)
	if runErr != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("yt-dlp interrupted: %w", ctx.Err())
		}
		return "", &Error{
			VideoID:  videoID,
			ExitCode: result.ExitCode,
			Output:   combinedOutput(result),
			Err:      runErr,
		}
	}

	return c.findMedia(videoID)
}

func (c *Client) buildArgs(videoID string) []string {
	return []string{
		"--format", selectFormat(c.maxHeight),
		"--output", filepath.Join(c.outputDir, videoID+".%(ext)s"),
		"--no-playlist",
		"--newline",
		"--restrict-filenames",
		watchURL(videoID),
	}
}

// findMedia locates the downloaded file for videoID. The extension is not
// known until after the run, so the directory is scanned by prefix.
func (c *Client) findMedia(videoID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(c.outputDir, videoID+".*"))
	if err != nil {
		return "", fmt.Errorf("scan media directory: %w", err)
	}
	sort.Strings(matches)
	for _, match := range matches {
		if mediaExtensions[strings.ToLower(filepath.Ext(match))] {
			return match, nil
		}
	}
	return "", fmt.Errorf("yt-dlp finished but no media file for %s in %s", videoID, c.outputDir)
}

// selectFormat builds the yt-dlp format selector for a height ceiling.
func selectFormat(maxHeight int) string {
	if maxHeight <= 0 {
		return "best"
	}
	return fmt.Sprintf("best[height<=%d]/best", maxHeight)
}

func watchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func combinedOutput(result commandResult) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(result.Stderr); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(result.Stdout); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

// streamRunner executes a command and scans both streams line by line.
// yt-dlp terminates progress updates with CR rather than LF, so the scanner
// splits on either.
type streamRunner struct{}

func (r *streamRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return commandResult{ExitCode: -1}, fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return commandResult{ExitCode: -1}, fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return commandResult{ExitCode: -1}, fmt.Errorf("start %s: %w", name, err)
	}

	outTail := newTailBuffer(8192)
	errTail := newTailBuffer(8192)
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(r io.Reader, tail *tailBuffer) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			mu.Lock()
			tail.Append(scanner.Text())
			mu.Unlock()
		}
	}

	wg.Add(2)
	go read(stdoutPipe, outTail)
	go read(stderrPipe, errTail)
	wg.Wait()

	waitErr := cmd.Wait()
	mu.Lock()
	result := commandResult{
		Stdout:   outTail.String(),
		Stderr:   errTail.String(),
		ExitCode: 0,
	}
	mu.Unlock()
	if waitErr != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, waitErr
	}
	return result, nil
}

// splitByNewlineOrCR is a bufio.SplitFunc that treats both \n and \r as line
// terminators.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer retains the most recent lines of a stream within a byte budget.
// The final lines carry the error text when a run fails.
type tailBuffer struct {
	max   int
	lines []string
	size  int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Append(line string) {
	b.lines = append(b.lines, line)
	b.size += len(line) + 1
	for b.size > b.max && len(b.lines) > 1 {
		b.size -= len(b.lines[0]) + 1
		b.lines = b.lines[1:]
	}
}

func (b *tailBuffer) String() string {
	return strings.Join(b.lines, "\n")
}
