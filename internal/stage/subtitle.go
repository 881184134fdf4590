package stage

import (
	"strings"
	"unicode"
)

// subtitleText flattens an SRT, VTT or plain-text subtitle document into the
// dialogue text alone. Cue indexes, timing lines, header blocks and inline
// markup are dropped; consecutive duplicate lines (rolling captions) collapse
// into one.
func subtitleText(raw string) string {
	var out []string
	var last string
	inHeader := false

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "﻿"))
		if line == "" {
			inHeader = false
			continue
		}
		if line == "WEBVTT" || strings.HasPrefix(line, "WEBVTT ") {
			inHeader = true
			continue
		}
		if strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION") {
			inHeader = true
			continue
		}
		if inHeader {
			continue
		}
		if strings.Contains(line, "-->") || isCueIndex(line) {
			continue
		}
		line = stripMarkup(line)
		if line == "" || line == last {
			continue
		}
		out = append(out, line)
		last = line
	}
	return strings.Join(out, "\n")
}

// isCueIndex reports whether the line is a bare SRT cue number.
func isCueIndex(line string) bool {
	for _, r := range line {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(line) > 0
}

// stripMarkup removes <i>-style tags and ASS override blocks like {\an8}.
func stripMarkup(line string) string {
	var b strings.Builder
	depth := 0
	brace := 0
	for _, r := range line {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case r == '{':
			brace++
		case r == '}' && brace > 0:
			brace--
		case depth == 0 && brace == 0:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
