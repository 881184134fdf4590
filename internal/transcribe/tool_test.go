package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeRunner simulates transcription tool invocations.
type fakeRunner struct {
	run   func(ctx context.Context, name string, args ...string) (commandResult, error)
	calls int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.calls++
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

func TestTranscribe_Success(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "media", "abc123.mp4")
	outputDir := filepath.Join(root, "subtitles")
	mustWriteFile(t, mediaPath, "media")

	var gotName string
	var gotArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			gotName = name
			gotArgs = append([]string{}, args...)
			mustWriteFile(t, filepath.Join(outputDir, "abc123.srt"), "1\n00:00:00,000 --> 00:00:02,000\nhello\n")
			return commandResult{Stdout: "done", ExitCode: 0}, nil
		},
	}

	tool := newToolForTests("videolingo-batch", outputDir, runner, time.Second, 10*time.Millisecond)
	path, err := tool.Transcribe(context.Background(), mediaPath)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if path != filepath.Join(outputDir, "abc123.srt") {
		t.Errorf("path = %q, want the .srt file", path)
	}
	if gotName != "videolingo-batch" {
		t.Errorf("command = %q, want videolingo-batch", gotName)
	}
	if len(gotArgs) != 2 || gotArgs[0] != mediaPath || gotArgs[1] != outputDir {
		t.Errorf("args = %v, want [%s %s]", gotArgs, mediaPath, outputDir)
	}
}

func TestTranscribe_WaitsForArtifact(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "clip.mp4")
	outputDir := filepath.Join(root, "out")
	mustWriteFile(t, mediaPath, "media")

	subtitlePath := filepath.Join(outputDir, "clip.srt")
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			time.AfterFunc(50*time.Millisecond, func() {
				mustWriteFile(t, subtitlePath, "subtitle text")
			})
			return commandResult{ExitCode: 0}, nil
		},
	}

	tool := newToolForTests("videolingo-batch", outputDir, runner, 2*time.Second, 10*time.Millisecond)
	path, err := tool.Transcribe(context.Background(), mediaPath)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if path != subtitlePath {
		t.Errorf("path = %q, want %q", path, subtitlePath)
	}
}

func TestTranscribe_ArtifactTimeout(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "clip.mp4")
	mustWriteFile(t, mediaPath, "media")

	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{Stdout: "batch completed", ExitCode: 0}, nil
		},
	}

	tool := newToolForTests("videolingo-batch", filepath.Join(root, "out"), runner, 50*time.Millisecond, 10*time.Millisecond)
	_, err := tool.Transcribe(context.Background(), mediaPath)
	if err == nil {
		t.Fatal("expected error when no subtitle appears")
	}

	var toolErr *Error
	if !errors.As(err, &toolErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if !strings.Contains(err.Error(), "no subtitle file") {
		t.Errorf("error = %q, want mention of missing subtitle", err)
	}
}

func TestTranscribe_ToolFailure(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "clip.mp4")
	mustWriteFile(t, mediaPath, "media")

	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{
				Stderr:   "batch processor failed: CUDA out of memory",
				ExitCode: 2,
			}, errors.New("exit status 2")
		},
	}

	tool := newToolForTests("videolingo-batch", filepath.Join(root, "out"), runner, time.Second, 10*time.Millisecond)
	_, err := tool.Transcribe(context.Background(), mediaPath)
	if err == nil {
		t.Fatal("expected error")
	}

	var toolErr *Error
	if !errors.As(err, &toolErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if toolErr.ExitCode != 2 {
		t.Errorf("exit code = %d, want 2", toolErr.ExitCode)
	}
	if !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Errorf("error should surface the tool output unchanged, got %q", err.Error())
	}
}

func TestTranscribe_MissingMedia(t *testing.T) {
	runner := &fakeRunner{}
	tool := newToolForTests("videolingo-batch", t.TempDir(), runner, time.Second, 10*time.Millisecond)

	_, err := tool.Transcribe(context.Background(), filepath.Join(t.TempDir(), "absent.mp4"))
	if err == nil {
		t.Fatal("expected error for missing media file")
	}
	if runner.calls != 0 {
		t.Errorf("runner calls = %d, want 0", runner.calls)
	}
}

func TestTranscribe_ContextCanceled(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "clip.mp4")
	mustWriteFile(t, mediaPath, "media")

	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			cancel()
			return commandResult{ExitCode: -1}, errors.New("signal: killed")
		},
	}

	tool := newToolForTests("videolingo-batch", filepath.Join(root, "out"), runner, time.Second, 10*time.Millisecond)
	_, err := tool.Transcribe(ctx, mediaPath)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestTranscribe_PrefersSRT(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "clip.mp4")
	outputDir := filepath.Join(root, "out")
	mustWriteFile(t, mediaPath, "media")

	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			mustWriteFile(t, filepath.Join(outputDir, "clip.txt"), "plain text")
			mustWriteFile(t, filepath.Join(outputDir, "clip.srt"), "srt text")
			return commandResult{ExitCode: 0}, nil
		},
	}

	tool := newToolForTests("videolingo-batch", outputDir, runner, time.Second, 10*time.Millisecond)
	path, err := tool.Transcribe(context.Background(), mediaPath)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if filepath.Ext(path) != ".srt" {
		t.Errorf("path = %q, want the .srt file preferred", path)
	}
}
