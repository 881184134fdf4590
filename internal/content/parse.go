package content

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseContent turns a raw model response into Content. Models do not always
// answer with bare JSON, so extraction runs a fallback chain before parsing.
func parseContent(raw string) (*Content, error) {
	candidate, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Title       string   `json:"title"`
		Body        string   `json:"body"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
		Confidence  *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		// Raw control characters from the model break strict parsing.
		if err2 := json.Unmarshal([]byte(scrubControl(candidate)), &payload); err2 != nil {
			return nil, fmt.Errorf("parse model response: %w", err)
		}
	}

	c := &Content{
		Title:      strings.TrimSpace(payload.Title),
		Body:       strings.TrimSpace(payload.Body),
		Tags:       payload.Tags,
		Confidence: 0.8,
	}
	if c.Body == "" {
		c.Body = strings.TrimSpace(payload.Description)
	}
	if payload.Confidence != nil {
		c.Confidence = *payload.Confidence
	}
	c.Uncertain = c.Confidence < 0.7

	if c.Title == "" || c.Body == "" {
		return nil, fmt.Errorf("model response missing title or body")
	}
	return c, nil
}

// extractJSON pulls a JSON object out of a model response: direct parse
// first, then a fenced ```json block, then the first brace-balanced object
// anywhere in the text.
func extractJSON(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	if block, ok := fencedBlock(trimmed); ok {
		return block, nil
	}

	if obj, ok := balancedObject(trimmed); ok {
		return obj, nil
	}

	return "", fmt.Errorf("no JSON object in model response")
}

func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```json")
	if start == -1 {
		return "", false
	}
	rest := s[start+len("```json"):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	block := strings.TrimSpace(rest[:end])
	if !strings.HasPrefix(block, "{") {
		return "", false
	}
	return block, true
}

// balancedObject scans for the first top-level {...} pair, ignoring braces
// inside JSON strings.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		if escaped {
			escaped = false
			continue
		}
		switch s[i] {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// scrubControl strips every control character. Raw newlines inside string
// values are the usual offender; dropping the whitespace between tokens is
// harmless.
func scrubControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}
