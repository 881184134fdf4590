package model

import (
	"fmt"
	"time"
)

// Stage constants. A video moves through the stages in the fixed order below;
// the *_ing values mean the corresponding step has been attempted at least
// once and has not yet succeeded.
const (
	StageDiscovered        = "discovered"
	StageDownloading       = "downloading"
	StageDownloaded        = "downloaded"
	StageTranscribing      = "transcribing"
	StageTranscribed       = "transcribed"
	StageGeneratingContent = "generating_content"
	StageContentReady      = "content_ready"
	StagePublishing        = "publishing"
	StagePublished         = "published"
	StagePermanentlyFailed = "permanently_failed"
	StageSkipped           = "skipped"
)

// Step constants name the units of work the executor runs. Attempts are
// recorded per (video, step).
const (
	StepDownload        = "download"
	StepTranscribe      = "transcribe"
	StepGenerateContent = "generate_content"
	StepPublish         = "publish"
	StepNotify          = "notify"
)

// StepOrder is the fixed processing order. Notify is not part of the march;
// it runs after a video reaches a terminal stage.
var StepOrder = []string{StepDownload, StepTranscribe, StepGenerateContent, StepPublish}

var allowedTransitions = map[string]map[string]bool{
	"": {
		StageDiscovered: true,
	},
	StageDiscovered: {
		StageDiscovered:        true,
		StageDownloading:       true,
		StageSkipped:           true,
		StagePermanentlyFailed: true,
	},
	StageDownloading: {
		StageDownloading:       true,
		StageDownloaded:        true,
		StagePermanentlyFailed: true,
	},
	StageDownloaded: {
		StageDownloaded:        true,
		StageTranscribing:      true,
		StagePermanentlyFailed: true,
	},
	StageTranscribing: {
		StageTranscribing:      true,
		StageTranscribed:       true,
		StagePermanentlyFailed: true,
	},
	StageTranscribed: {
		StageTranscribed:       true,
		StageGeneratingContent: true,
		StagePermanentlyFailed: true,
	},
	StageGeneratingContent: {
		StageGeneratingContent: true,
		StageContentReady:      true,
		StagePermanentlyFailed: true,
	},
	StageContentReady: {
		StageContentReady:      true,
		StagePublishing:        true,
		StagePermanentlyFailed: true,
	},
	StagePublishing: {
		StagePublishing:        true,
		StagePublished:         true,
		StagePermanentlyFailed: true,
	},
	StagePublished:         {},
	StagePermanentlyFailed: {},
	StageSkipped:           {},
}

// IsKnownStage reports whether the value is a recognised stage.
func IsKnownStage(stage string) bool {
	_, ok := allowedTransitions[stage]
	return ok
}

// IsTerminalStage reports whether no further automated transition is possible.
func IsTerminalStage(stage string) bool {
	switch stage {
	case StagePublished, StagePermanentlyFailed, StageSkipped:
		return true
	}
	return false
}

// CanTransition reports whether the stage machine permits from -> to.
func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// StepForStage returns the step a video in the given stage is waiting on.
// Terminal stages and published have no pending step.
func StepForStage(stage string) (string, bool) {
	switch stage {
	case StageDiscovered, StageDownloading:
		return StepDownload, true
	case StageDownloaded, StageTranscribing:
		return StepTranscribe, true
	case StageTranscribed, StageGeneratingContent:
		return StepGenerateContent, true
	case StageContentReady, StagePublishing:
		return StepPublish, true
	}
	return "", false
}

// ActiveStageForStep maps a step to the stage a video holds while the step
// is being attempted.
func ActiveStageForStep(step string) string {
	switch step {
	case StepDownload:
		return StageDownloading
	case StepTranscribe:
		return StageTranscribing
	case StepGenerateContent:
		return StageGeneratingContent
	case StepPublish:
		return StagePublishing
	}
	return ""
}

// NextStageForStep maps a step to the stage a video advances to when the
// step succeeds.
func NextStageForStep(step string) string {
	switch step {
	case StepDownload:
		return StageDownloaded
	case StepTranscribe:
		return StageTranscribed
	case StepGenerateContent:
		return StageContentReady
	case StepPublish:
		return StagePublished
	}
	return ""
}

// Video is the durable record for one external video. There is exactly one
// record per external id; records are never deleted, only transitioned, and
// become immutable once Terminal is set.
type Video struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	PlaylistItemID      string `json:"playlist_item_id,omitempty"`
	DurationSeconds     int64  `json:"duration_seconds,omitempty"`
	Stage               string `json:"stage"`
	MediaPath           string `json:"media_path,omitempty"`
	SubtitlePath        string `json:"subtitle_path,omitempty"`
	ContentPath         string `json:"content_path,omitempty"`
	PublishConfirmation string `json:"publish_confirmation,omitempty"`
	ErrorInfo           string `json:"error_info,omitempty"`
	Terminal            bool   `json:"terminal"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

// WatchURL returns the public watch page for the video.
func (v Video) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// NewVideo creates a Video in the discovered stage.
func NewVideo(id, title, playlistItemID string, durationSeconds int64) Video {
	now := time.Now().UTC().Format(time.RFC3339)
	return Video{
		ID:              id,
		Title:           title,
		PlaylistItemID:  playlistItemID,
		DurationSeconds: durationSeconds,
		Stage:           StageDiscovered,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Transition moves the video to a new stage, enforcing the transition table.
// Terminal and UpdatedAt are maintained as part of the move.
func Transition(v *Video, to string) error {
	if v.Terminal {
		return fmt.Errorf("video %s is terminal (%s), refusing transition to %q", v.ID, v.Stage, to)
	}
	if !CanTransition(v.Stage, to) {
		return fmt.Errorf("invalid stage transition: %q -> %q (video_id=%s)", v.Stage, to, v.ID)
	}
	v.Stage = to
	v.Terminal = IsTerminalStage(to)
	v.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}
