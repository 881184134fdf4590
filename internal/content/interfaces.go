package content

import "context"

// ModelClient abstracts LLM calls. Implementations can wrap OpenAI, local models, etc.
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Request carries everything the generator needs for one video.
type Request struct {
	VideoID      string
	VideoTitle   string
	VideoURL     string
	SubtitleText string
}

// Content is the structured output of the generation step.
type Content struct {
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Tags       []string `json:"tags,omitempty"`
	Confidence float64  `json:"confidence"`

	// Uncertain is set when the model reports low confidence. The copy is
	// still usable but gets flagged in notifications.
	Uncertain bool `json:"is_uncertain"`
}
