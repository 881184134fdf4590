// Package controller owns the pipeline state machine. One pass polls the
// playlist, then walks every active video in FIFO order, advancing each as
// far as its stage attempts allow. Videos are isolated: one failing never
// blocks the others.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vidrelay/vidrelay/internal/discovery"
	"github.com/vidrelay/vidrelay/internal/model"
	"github.com/vidrelay/vidrelay/internal/notify"
	"github.com/vidrelay/vidrelay/internal/retry"
	"github.com/vidrelay/vidrelay/internal/stage"
	"github.com/vidrelay/vidrelay/internal/store"
)

// Feed lists new playlist entries and cleans up processed ones.
type Feed interface {
	Poll(ctx context.Context) ([]discovery.Candidate, error)
	RemoveFromPlaylist(ctx context.Context, playlistItemID string) error
}

// Executor runs one stage attempt for one video.
type Executor interface {
	Execute(ctx context.Context, step string, v *model.Video) stage.Result
}

// Notifier delivers one rendered notification.
type Notifier interface {
	Notify(ctx context.Context, subject, htmlBody string) error
}

// Summary describes what one pass did.
type Summary struct {
	// Discovered counts fresh records created, skipped ones included.
	Discovered int
	Skipped    int
	Advanced   []notify.SummaryItem
	Retrying   []notify.SummaryItem
	Failed     []notify.SummaryItem
	// Errors lists pass-level problems: store or discovery failures that
	// kept videos from being processed.
	Errors []string
}

// Quiet reports whether the pass left every tracked video untouched.
func (s Summary) Quiet() bool {
	return len(s.Advanced) == 0 && len(s.Retrying) == 0 && len(s.Failed) == 0 && len(s.Errors) == 0
}

// Options tunes the controller.
type Options struct {
	// MaxVideoDuration is the discovery skip ceiling. Zero disables it.
	MaxVideoDuration time.Duration
	// Interval paces Run's passes.
	Interval time.Duration
	// MailTimeout bounds the run-summary delivery.
	MailTimeout time.Duration
	// SummaryMail sends a digest after every pass that changed state.
	SummaryMail bool
}

// Controller drives videos through the pipeline.
type Controller struct {
	store    *store.Store
	feed     Feed
	executor Executor
	notifier Notifier
	policy   retry.Policy
	opts     Options
}

// New creates a controller. feed may be nil when no playlist source is
// configured; notifier may be nil to disable the run summary.
func New(st *store.Store, feed Feed, exec Executor, notifier Notifier, policy retry.Policy, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	return &Controller{
		store:    st,
		feed:     feed,
		executor: exec,
		notifier: notifier,
		policy:   policy,
		opts:     opts,
	}
}

// Run executes passes on a fixed cadence until the context ends.
func (c *Controller) Run(ctx context.Context) {
	slog.Info("controller started", "interval", c.opts.Interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("controller stopped")
			return
		default:
		}

		sum, err := c.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("pass failed", "error", err)
		}
		slog.Info("pass complete",
			"discovered", sum.Discovered,
			"skipped", sum.Skipped,
			"advanced", len(sum.Advanced),
			"retrying", len(sum.Retrying),
			"failed", len(sum.Failed),
			"errors", len(sum.Errors))

		c.sleep(ctx)
	}
}

func (c *Controller) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.opts.Interval):
	}
}

// RunOnce performs one full pass: discovery, then one walk over the active
// videos. A failing video is contained; only a broken video listing aborts
// the pass.
func (c *Controller) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary

	if c.feed != nil {
		if err := c.discover(ctx, &sum); err != nil {
			// Videos already in flight still get their pass.
			slog.Error("discovery failed", "error", err)
			sum.Errors = append(sum.Errors, fmt.Sprintf("discovery: %v", err))
		}
	}

	videos, err := c.store.ListActive(ctx)
	if err != nil {
		return sum, fmt.Errorf("list active videos: %w", err)
	}
	for i := range videos {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		c.processVideo(ctx, videos[i].ID, &sum)
	}

	if c.opts.SummaryMail && !sum.Quiet() {
		c.sendSummary(ctx, sum)
	}
	return sum, nil
}

// discover records fresh playlist entries. Records are created at discovered
// and move straight to skipped when the pre-flight check rules them out. A
// video the store already tracks is never touched, whatever the feed says.
func (c *Controller) discover(ctx context.Context, sum *Summary) error {
	candidates, err := c.feed.Poll(ctx)
	if err != nil {
		return err
	}
	for _, cand := range candidates {
		existing, err := c.store.GetVideo(ctx, cand.VideoID)
		if err != nil {
			return fmt.Errorf("check video %s: %w", cand.VideoID, err)
		}
		if existing != nil {
			continue
		}

		v := model.NewVideo(cand.VideoID, cand.Title, cand.PlaylistItemID, cand.DurationSeconds)
		if reason := c.skipReason(cand); reason != "" {
			if err := model.Transition(&v, model.StageSkipped); err != nil {
				return err
			}
			sum.Skipped++
			slog.Info("video skipped", "video_id", v.ID, "title", v.Title, "reason", reason)
		} else {
			slog.Info("video discovered", "video_id", v.ID, "title", v.Title, "duration_s", v.DurationSeconds)
		}
		if err := c.store.UpsertVideo(ctx, v); err != nil {
			return fmt.Errorf("record video %s: %w", cand.VideoID, err)
		}
		sum.Discovered++
	}
	return nil
}

// skipReason tells why a candidate never enters the pipeline, or "" to let
// it through.
func (c *Controller) skipReason(cand discovery.Candidate) string {
	if cand.Live {
		return "live or upcoming broadcast"
	}
	ceiling := c.opts.MaxVideoDuration
	if ceiling > 0 && cand.DurationSeconds > int64(ceiling/time.Second) {
		return fmt.Sprintf("duration %s above ceiling %s",
			time.Duration(cand.DurationSeconds)*time.Second, ceiling)
	}
	return ""
}

type passOutcome int

const (
	passIdle passOutcome = iota
	passAdvanced
	passRetrying
	passFailed
	passError
)

// processVideo advances one video as far as this pass allows: next stages
// while attempts succeed, stop on failure, backoff wait or terminal state.
func (c *Controller) processVideo(ctx context.Context, videoID string, sum *Summary) {
	var (
		title   string
		end     string
		detail  string
		outcome passOutcome
	)

	for {
		if ctx.Err() != nil {
			break
		}
		// Fresh read before every attempt; earlier stages of this pass (or a
		// previous crash) may have moved the record.
		v, err := c.store.GetVideo(ctx, videoID)
		if err != nil {
			outcome, detail = passError, fmt.Sprintf("load video: %v", err)
			break
		}
		if v == nil {
			return
		}
		title, end = v.Title, v.Stage
		if v.Terminal {
			break
		}
		step, ok := model.StepForStage(v.Stage)
		if !ok {
			break
		}

		attempts, err := c.store.ListAttempts(ctx, v.ID, step)
		if err != nil {
			outcome, detail = passError, fmt.Sprintf("list %s attempts: %v", step, err)
			break
		}
		if at := c.policy.EligibleAt(attempts); time.Now().Before(at) {
			slog.Debug("backoff wait", "video_id", v.ID, "step", step, "eligible_at", at.Format(time.RFC3339))
			break
		}

		res, err := c.runStep(ctx, v, step)
		end = v.Stage
		if err != nil {
			outcome, detail = passError, err.Error()
			break
		}
		if res.Outcome == stage.Success {
			outcome = passAdvanced
			continue
		}
		detail = res.Reason
		if v.Terminal {
			outcome = passFailed
		} else {
			outcome = passRetrying
		}
		break
	}

	if outcome == passIdle {
		return
	}
	item := notify.SummaryItem{VideoID: videoID, Title: title, Stage: end, Detail: detail}
	switch outcome {
	case passAdvanced:
		sum.Advanced = append(sum.Advanced, item)
	case passRetrying:
		sum.Retrying = append(sum.Retrying, item)
	case passFailed:
		sum.Failed = append(sum.Failed, item)
	case passError:
		slog.Error("video pass aborted", "video_id", videoID, "error", detail)
		sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %s", videoID, detail))
	}
}

// runStep runs one attempt of step and applies the verdict to the record.
// The returned error reports store trouble only; stage failures land in the
// result and on the record. v is updated in place.
func (c *Controller) runStep(ctx context.Context, v *model.Video, step string) (stage.Result, error) {
	active := model.ActiveStageForStep(step)
	if v.Stage != active {
		if err := c.saveTransition(ctx, v, active); err != nil {
			return stage.Result{}, err
		}
	}

	num, err := c.store.AppendAttempt(ctx, v.ID, step)
	if err != nil {
		return stage.Result{}, fmt.Errorf("open %s attempt: %w", step, err)
	}
	slog.Info("stage attempt", "video_id", v.ID, "step", step, "attempt", num)

	res := c.executor.Execute(ctx, step, v)

	if err := c.store.CloseAttempt(ctx, v.ID, step, num, res.AttemptOutcome(), res.Reason); err != nil {
		return res, fmt.Errorf("close %s attempt: %w", step, err)
	}

	if res.Outcome == stage.Success {
		recordArtifact(v, step, res.Artifact)
		v.ErrorInfo = ""
		next := model.NextStageForStep(step)
		if err := c.saveTransition(ctx, v, next); err != nil {
			return res, err
		}
		slog.Info("stage complete", "video_id", v.ID, "step", step, "stage", next)
		if next == model.StagePublished {
			c.afterPublish(ctx, v)
		}
		return res, nil
	}

	attempts, err := c.store.ListAttempts(ctx, v.ID, step)
	if err != nil {
		return res, fmt.Errorf("list %s attempts: %w", step, err)
	}
	decision := c.policy.Decide(res.Outcome, attempts)

	v.ErrorInfo = model.ErrorInfo{
		FailedStep: step,
		Message:    res.Reason,
		Fatal:      res.Outcome == stage.FatalFailure,
		FailedAt:   time.Now().UTC().Format(time.RFC3339),
	}.ToJSON()

	if decision.GiveUp {
		if err := c.saveTransition(ctx, v, model.StagePermanentlyFailed); err != nil {
			return res, err
		}
		slog.Error("video permanently failed",
			"video_id", v.ID, "step", step, "attempts", len(attempts), "reason", res.Reason)
		c.sendOutcomeMail(ctx, v)
		return res, nil
	}

	// The stage stays put; only the failure detail is recorded.
	if err := c.store.UpsertVideo(ctx, *v); err != nil {
		return res, fmt.Errorf("save failure detail: %w", err)
	}
	slog.Warn("stage failed, will retry",
		"video_id", v.ID, "step", step, "attempt", num, "delay", decision.Delay.String(), "reason", res.Reason)
	return res, nil
}

// recordArtifact binds a successful stage's product to the record.
func recordArtifact(v *model.Video, step, artifact string) {
	switch step {
	case model.StepDownload:
		v.MediaPath = artifact
	case model.StepTranscribe:
		v.SubtitlePath = artifact
	case model.StepGenerateContent:
		v.ContentPath = artifact
	case model.StepPublish:
		v.PublishConfirmation = artifact
	}
}

func (c *Controller) saveTransition(ctx context.Context, v *model.Video, to string) error {
	if err := model.Transition(v, to); err != nil {
		return err
	}
	if err := c.store.UpsertVideo(ctx, *v); err != nil {
		return fmt.Errorf("save %s at %s: %w", v.ID, to, err)
	}
	return nil
}

// afterPublish removes the source playlist entry and sends the success mail.
// Both are best-effort; the video is already published.
func (c *Controller) afterPublish(ctx context.Context, v *model.Video) {
	if c.feed != nil && v.PlaylistItemID != "" {
		if err := c.feed.RemoveFromPlaylist(ctx, v.PlaylistItemID); err != nil {
			slog.Warn("playlist cleanup failed", "video_id", v.ID, "error", err)
		} else {
			slog.Info("removed from playlist", "video_id", v.ID, "playlist_item_id", v.PlaylistItemID)
		}
	}
	c.sendOutcomeMail(ctx, v)
}

// sendOutcomeMail runs the notify step for a terminal video. Delivery gets no
// attempt row and no retries; a lost mail never holds up the pipeline.
func (c *Controller) sendOutcomeMail(ctx context.Context, v *model.Video) {
	res := c.executor.Execute(ctx, model.StepNotify, v)
	if res.Outcome != stage.Success {
		slog.Warn("outcome notification failed", "video_id", v.ID, "reason", res.Reason)
	}
}

func (c *Controller) sendSummary(ctx context.Context, sum Summary) {
	if c.notifier == nil {
		return
	}
	body, err := notify.SummaryBody(sum.Advanced, sum.Retrying, sum.Failed, sum.Errors)
	if err != nil {
		slog.Error("render run summary", "error", err)
		return
	}
	subject := notify.SummarySubject(len(sum.Advanced), len(sum.Retrying), len(sum.Failed))

	if c.opts.MailTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.MailTimeout)
		defer cancel()
	}
	if err := c.notifier.Notify(ctx, subject, body); err != nil {
		slog.Warn("run summary delivery failed", "error", err)
	}
}
