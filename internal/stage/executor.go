// Package stage runs single pipeline stage attempts. The executor maps a step
// name to its collaborator, bounds the call with the per-stage timeout and
// classifies the outcome. Retry decisions and store writes stay with the
// controller.
package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vidrelay/vidrelay/internal/content"
	"github.com/vidrelay/vidrelay/internal/model"
	"github.com/vidrelay/vidrelay/internal/notify"
	"github.com/vidrelay/vidrelay/internal/publish"
)

// Timeouts bounds each collaborator call. A zero value leaves the call
// unbounded.
type Timeouts struct {
	Download   time.Duration
	Transcribe time.Duration
	Generate   time.Duration
	Publish    time.Duration
	Notify     time.Duration
}

// Options carries executor settings that are not collaborators.
type Options struct {
	// ContentDir is the root for generated content, one directory per video.
	ContentDir string
	// GenerateNotes enables the learning-notes pass after content generation.
	GenerateNotes bool
	Timeouts      Timeouts
}

// Executor runs one stage attempt at a time. It never retries internally and
// never writes the video record; artifacts come back in the Result.
type Executor struct {
	downloader  Downloader
	transcriber Transcriber
	generator   Generator
	publisher   Publisher
	notifier    Notifier
	opts        Options
}

// NewExecutor creates an executor with the given collaborators.
func NewExecutor(d Downloader, t Transcriber, g Generator, p Publisher, n Notifier, opts Options) *Executor {
	return &Executor{
		downloader:  d,
		transcriber: t,
		generator:   g,
		publisher:   p,
		notifier:    n,
		opts:        opts,
	}
}

// Close releases long-lived stage resources, the publish session included.
func (e *Executor) Close() error {
	if e.publisher == nil {
		return nil
	}
	return e.publisher.Close()
}

// Execute runs the named step against the video and returns the verdict.
func (e *Executor) Execute(ctx context.Context, step string, v *model.Video) Result {
	switch step {
	case model.StepDownload:
		return e.download(ctx, v)
	case model.StepTranscribe:
		return e.transcribe(ctx, v)
	case model.StepGenerateContent:
		return e.generate(ctx, v)
	case model.StepPublish:
		return e.publish(ctx, v)
	case model.StepNotify:
		return e.notify(ctx, v)
	}
	return Result{Outcome: FatalFailure, Reason: fmt.Sprintf("unknown step %q", step)}
}

func (e *Executor) download(ctx context.Context, v *model.Video) Result {
	ctx, cancel := deadline(ctx, e.opts.Timeouts.Download)
	defer cancel()

	path, err := e.downloader.Download(ctx, v.ID)
	if err != nil {
		return classify(err)
	}
	return Result{Outcome: Success, Artifact: path}
}

func (e *Executor) transcribe(ctx context.Context, v *model.Video) Result {
	if v.MediaPath == "" {
		return Result{Outcome: FatalFailure, Reason: "video record has no media path"}
	}
	ctx, cancel := deadline(ctx, e.opts.Timeouts.Transcribe)
	defer cancel()

	path, err := e.transcriber.Transcribe(ctx, v.MediaPath)
	if err != nil {
		return classify(err)
	}
	return Result{Outcome: Success, Artifact: path}
}

func (e *Executor) generate(ctx context.Context, v *model.Video) Result {
	if v.SubtitlePath == "" {
		return Result{Outcome: FatalFailure, Reason: "video record has no subtitle path"}
	}
	raw, err := os.ReadFile(v.SubtitlePath)
	if err != nil {
		return Result{Outcome: RecoverableFailure, Reason: fmt.Sprintf("read subtitle: %v", err)}
	}
	text := subtitleText(string(raw))
	if text == "" {
		return Result{Outcome: FatalFailure, Reason: fmt.Sprintf("subtitle %s contains no usable text", v.SubtitlePath)}
	}

	req := content.Request{
		VideoID:      v.ID,
		VideoTitle:   v.Title,
		VideoURL:     v.WatchURL(),
		SubtitleText: text,
	}

	genCtx, cancel := deadline(ctx, e.opts.Timeouts.Generate)
	c, err := e.generator.Generate(genCtx, req)
	cancel()
	if err != nil {
		return classify(err)
	}

	var notes string
	if e.opts.GenerateNotes {
		notesCtx, cancel := deadline(ctx, e.opts.Timeouts.Generate)
		notes, err = e.generator.GenerateNotes(notesCtx, req)
		cancel()
		if err != nil {
			// Notes are an extra; the copy itself is already in hand.
			slog.Warn("learning notes generation failed", "video_id", v.ID, "error", err)
			notes = ""
		}
	}

	path, err := e.writeContent(v.ID, c, notes)
	if err != nil {
		return Result{Outcome: RecoverableFailure, Reason: err.Error()}
	}
	return Result{Outcome: Success, Artifact: path}
}

func (e *Executor) publish(ctx context.Context, v *model.Video) Result {
	// A confirmation on the record means the post already went out.
	if v.PublishConfirmation != "" {
		return Result{Outcome: Success, Artifact: v.PublishConfirmation}
	}
	if v.MediaPath == "" || v.ContentPath == "" {
		return Result{Outcome: FatalFailure, Reason: "video record is missing media or content paths"}
	}
	c, err := readContent(v.ContentPath)
	if err != nil {
		return Result{Outcome: RecoverableFailure, Reason: fmt.Sprintf("read content: %v", err)}
	}

	req := publish.Request{
		VideoID:   v.ID,
		MediaPath: v.MediaPath,
		Title:     c.Title,
		Body:      postBody(c),
	}

	ctx, cancel := deadline(ctx, e.opts.Timeouts.Publish)
	defer cancel()

	confirmation, err := e.publisher.Publish(ctx, req)
	if err != nil {
		return classify(err)
	}
	return Result{Outcome: Success, Artifact: confirmation}
}

func (e *Executor) notify(ctx context.Context, v *model.Video) Result {
	subject, body, err := e.renderOutcome(v)
	if err != nil {
		return Result{Outcome: RecoverableFailure, Reason: err.Error()}
	}

	ctx, cancel := deadline(ctx, e.opts.Timeouts.Notify)
	defer cancel()

	if err := e.notifier.Notify(ctx, subject, body); err != nil {
		return classify(err)
	}
	return Result{Outcome: Success}
}

// renderOutcome picks the success or failure mail for the video's final stage.
func (e *Executor) renderOutcome(v *model.Video) (subject, body string, err error) {
	info := notify.OutcomeInfo{
		VideoID:    v.ID,
		VideoTitle: v.Title,
		VideoURL:   v.WatchURL(),
		MediaPath:  v.MediaPath,
	}
	if v.Stage == model.StagePublished {
		if c, cerr := readContent(v.ContentPath); cerr == nil {
			info.ContentTitle = c.Title
			info.ContentBody = c.Body
		} else if v.ContentPath != "" {
			slog.Warn("content file unreadable for notification", "video_id", v.ID, "error", cerr)
		}
		body, err = notify.SuccessBody(info)
		return notify.SuccessSubject(info), body, err
	}

	info.Stage = v.Stage
	if ei, ok := model.ParseErrorInfo(v.ErrorInfo); ok {
		info.Stage = ei.FailedStep
		info.ErrorDetail = ei.Message
	}
	body, err = notify.FailureBody(info)
	return notify.FailureSubject(info), body, err
}

// writeContent lays out the generated artifacts under ContentDir/<video_id>:
// content.json with the structured result, title.txt and body.txt for manual
// reuse, notes.md when the notes pass produced anything. Returns the
// content.json path.
func (e *Executor) writeContent(videoID string, c *content.Content, notes string) (string, error) {
	dir := filepath.Join(e.opts.ContentDir, videoID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create content dir: %w", err)
	}
	doc, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	path := filepath.Join(dir, "content.json")
	if err := writeFileAtomic(path, append(doc, '\n')); err != nil {
		return "", err
	}
	if err := writeFileAtomic(filepath.Join(dir, "title.txt"), []byte(c.Title+"\n")); err != nil {
		return "", err
	}
	if err := writeFileAtomic(filepath.Join(dir, "body.txt"), []byte(c.Body+"\n")); err != nil {
		return "", err
	}
	if notes != "" {
		if err := writeFileAtomic(filepath.Join(dir, "notes.md"), []byte(notes)); err != nil {
			return "", err
		}
	}
	return path, nil
}

// classify maps a collaborator error to a verdict. Deadline expiry is a
// recoverable timeout, errors carrying Fatal() == true end the pipeline, and
// anything unclassified stays recoverable.
func classify(err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return Result{Outcome: RecoverableFailure, Reason: err.Error(), TimedOut: true}
	}
	var fatal interface{ Fatal() bool }
	if errors.As(err, &fatal) && fatal.Fatal() {
		return Result{Outcome: FatalFailure, Reason: err.Error()}
	}
	return Result{Outcome: RecoverableFailure, Reason: err.Error()}
}

func deadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func readContent(path string) (*content.Content, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c content.Content
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &c, nil
}

// postBody is the posted description: the generated body with the tags
// appended as hashtags on their own line.
func postBody(c *content.Content) string {
	tags := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		t = strings.TrimSpace(strings.TrimPrefix(t, "#"))
		if t != "" {
			tags = append(tags, "#"+t)
		}
	}
	if len(tags) == 0 {
		return c.Body
	}
	return strings.TrimRight(c.Body, "\n") + "\n\n" + strings.Join(tags, " ")
}

// writeFileAtomic writes through a temp file and rename so a crash never
// leaves a half-written artifact behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
