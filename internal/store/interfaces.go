package store

import (
	"context"

	"github.com/vidrelay/vidrelay/internal/model"
)

// VideoReader provides read access to video records.
type VideoReader interface {
	// GetVideo returns the record for the given external id, or (nil, nil)
	// when the video is not known to the pipeline.
	GetVideo(ctx context.Context, id string) (*model.Video, error)
	ListByStage(ctx context.Context, stage string) ([]model.Video, error)
	// ListVideos returns videos newest first; an empty stage filter means all.
	ListVideos(ctx context.Context, stages []string) ([]model.Video, error)
	ListActive(ctx context.Context) ([]model.Video, error)
	CountByStage(ctx context.Context) (map[string]int, error)
}

// VideoWriter provides write access to video records.
type VideoWriter interface {
	// UpsertVideo atomically creates or replaces the record. A crash mid-call
	// leaves the previous consistent version intact.
	UpsertVideo(ctx context.Context, v model.Video) error
}

// AttemptReader provides read access to attempt history.
type AttemptReader interface {
	ListAttempts(ctx context.Context, videoID, step string) ([]model.Attempt, error)
	ListVideoAttempts(ctx context.Context, videoID string) ([]model.Attempt, error)
}

// AttemptWriter opens and finalizes attempts.
type AttemptWriter interface {
	// AppendAttempt opens the next attempt for (video, step) and returns its
	// number. It fails while a prior attempt for the pair is still open.
	AppendAttempt(ctx context.Context, videoID, step string) (int, error)
	// CloseAttempt finalizes the open attempt with an outcome.
	CloseAttempt(ctx context.Context, videoID, step string, attemptNumber int, outcome, errorDetail string) error
	// CloseDanglingAttempts finalizes attempts left open by a crashed run.
	CloseDanglingAttempts(ctx context.Context) (int64, error)
}

// PipelineStore combines everything the controller needs.
type PipelineStore interface {
	VideoReader
	VideoWriter
	AttemptReader
	AttemptWriter
}

// StatusStore combines the read-only views used by the API and the dashboard.
type StatusStore interface {
	VideoReader
	AttemptReader
}
