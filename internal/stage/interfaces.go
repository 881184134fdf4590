package stage

import (
	"context"

	"github.com/vidrelay/vidrelay/internal/content"
	"github.com/vidrelay/vidrelay/internal/publish"
)

// Downloader fetches the source media for a video id and returns the path of
// the downloaded file.
type Downloader interface {
	Download(ctx context.Context, videoID string) (string, error)
}

// Transcriber turns a media file into a subtitle file and returns its path.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (string, error)
}

// Generator produces localized social copy from subtitle text.
type Generator interface {
	Generate(ctx context.Context, req content.Request) (*content.Content, error)
	GenerateNotes(ctx context.Context, req content.Request) (string, error)
}

// Publisher posts a processed video and returns a confirmation id. Close
// releases the browser session when the pipeline shuts down.
type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (string, error)
	Close() error
}

// Notifier delivers one rendered notification.
type Notifier interface {
	Notify(ctx context.Context, subject, htmlBody string) error
}
