package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	maxTitleRunes = 20
	minBodyRunes  = 100
	maxBodyRunes  = 600
)

// Generator turns subtitle text into localized social-media copy.
type Generator struct {
	model    ModelClient
	language string
}

// NewGenerator creates a generator writing copy in the given language.
func NewGenerator(model ModelClient, language string) *Generator {
	return &Generator{model: model, language: language}
}

// Generate produces post copy for one video from its subtitle text.
func (g *Generator) Generate(ctx context.Context, req Request) (*Content, error) {
	if strings.TrimSpace(req.SubtitleText) == "" {
		return nil, fmt.Errorf("subtitle text is empty")
	}

	prompt := buildContentPrompt(req, g.language)
	raw, err := g.model.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	c, err := parseContent(raw)
	if err != nil {
		return nil, err
	}

	g.finalize(req.VideoID, c)
	return c, nil
}

// GenerateNotes produces markdown study notes from the same subtitle text.
func (g *Generator) GenerateNotes(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.SubtitleText) == "" {
		return "", fmt.Errorf("subtitle text is empty")
	}

	raw, err := g.model.Complete(ctx, buildNotesPrompt(req, g.language))
	if err != nil {
		return "", err
	}

	notes := strings.TrimSpace(raw)
	if notes == "" {
		return "", fmt.Errorf("model returned empty notes")
	}
	return notes, nil
}

// finalize clamps the title and flags copy outside the expected bounds.
func (g *Generator) finalize(videoID string, c *Content) {
	if n := utf8.RuneCountInString(c.Title); n > maxTitleRunes {
		slog.Warn("generated title too long, clamping", "video_id", videoID, "runes", n)
		c.Title = string([]rune(c.Title)[:maxTitleRunes])
	}
	if n := utf8.RuneCountInString(c.Body); n < minBodyRunes || n > maxBodyRunes {
		slog.Warn("generated body outside expected length", "video_id", videoID, "runes", n)
	}
	if c.Uncertain {
		slog.Warn("model reported low confidence", "video_id", videoID, "confidence", c.Confidence)
	}
}
