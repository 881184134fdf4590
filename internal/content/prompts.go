package content

import (
	"fmt"
	"unicode/utf8"
)

// maxSubtitleRunes bounds the subtitle text sent to the model.
const maxSubtitleRunes = 6000

func buildContentPrompt(req Request, language string) string {
	return fmt.Sprintf(`You are a senior social-media editor for a short-video platform, fluent in %s and versed in business, tech and AI topics. Create post copy from this video's subtitles.

Original video title: %s
Video URL: %s

Subtitle text:
%s

Output ONLY valid JSON with this exact structure (no markdown, no explanation):
{"title": "catchy title", "body": "post body", "tags": ["tag1", "tag2"], "confidence": 0.95}

Rules:
- Write the title and body in %s
- title: at most 20 characters, emotionally engaging
- body: 100-600 characters, lively tone, a few fitting emoji, highlight the key takeaways, end with a question inviting comments
- tags: 3-6 topic tags without the # prefix
- confidence: your 0-1 confidence that the copy faithfully reflects the subtitles`,
		language, req.VideoTitle, req.VideoURL,
		truncateRunes(req.SubtitleText, maxSubtitleRunes), language)
}

func buildNotesPrompt(req Request, language string) string {
	return fmt.Sprintf(`You are a study-notes writer. Turn this video's subtitles into structured learning notes in %s.

Video title: %s

Subtitle text:
%s

Rules:
- Output plain Markdown only, no JSON, no code fences
- Start with a one-paragraph overview
- Then 3-6 sections with ## headings covering the main ideas
- End with a "Key terms" list of 5-10 concepts, one line each`,
		language, req.VideoTitle, truncateRunes(req.SubtitleText, maxSubtitleRunes))
}

// truncateRunes truncates s to maxRunes runes (Unicode-safe).
func truncateRunes(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "\n... [truncated]"
}
