package content

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedModel returns a fixed response or error for every Complete call.
type scriptedModel struct {
	response string
	err      error
	calls    int
}

func (m *scriptedModel) Complete(_ context.Context, _ string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func testRequest() Request {
	return Request{
		VideoID:      "vid-1",
		VideoTitle:   "AI and the Future of Work",
		VideoURL:     "https://www.youtube.com/watch?v=vid-1",
		SubtitleText: "Welcome to today's video about artificial intelligence and its impact on work.",
	}
}

func TestGenerate_DirectJSON(t *testing.T) {
	m := &scriptedModel{response: `{"title":"未来已来","body":"` + strings.Repeat("内容", 60) + `","tags":["AI","职场"],"confidence":0.9}`}
	g := NewGenerator(m, "zh-CN")

	c, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if c.Title != "未来已来" {
		t.Errorf("Title = %q", c.Title)
	}
	if c.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", c.Confidence)
	}
	if c.Uncertain {
		t.Error("Uncertain = true for confidence 0.9")
	}
	if len(c.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 entries", c.Tags)
	}
}

func TestGenerate_FencedJSON(t *testing.T) {
	m := &scriptedModel{response: "Here is the copy:\n```json\n{\"title\":\"标题\",\"body\":\"正文内容\"}\n```\nHope it helps!"}
	g := NewGenerator(m, "zh-CN")

	c, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if c.Title != "标题" || c.Body != "正文内容" {
		t.Errorf("parsed = %q / %q", c.Title, c.Body)
	}
}

func TestGenerate_EmbeddedJSON(t *testing.T) {
	m := &scriptedModel{response: `Sure! {"title":"嵌套{括号}标题","body":"值里有\"引号\"和{花括号}"} done.`}
	g := NewGenerator(m, "zh-CN")

	c, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if c.Title != "嵌套{括号}标题" {
		t.Errorf("Title = %q", c.Title)
	}
}

func TestGenerate_DefaultConfidence(t *testing.T) {
	m := &scriptedModel{response: `{"title":"标题","body":"正文"}`}
	g := NewGenerator(m, "zh-CN")

	c, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if c.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want default 0.8", c.Confidence)
	}
}

func TestGenerate_LowConfidenceFlagged(t *testing.T) {
	m := &scriptedModel{response: `{"title":"标题","body":"正文","confidence":0.4}`}
	g := NewGenerator(m, "zh-CN")

	c, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !c.Uncertain {
		t.Error("Uncertain = false for confidence 0.4")
	}
}

func TestGenerate_DescriptionAlias(t *testing.T) {
	m := &scriptedModel{response: `{"title":"标题","description":"用description字段的正文"}`}
	g := NewGenerator(m, "zh-CN")

	c, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if c.Body != "用description字段的正文" {
		t.Errorf("Body = %q", c.Body)
	}
}

func TestGenerate_TitleClamped(t *testing.T) {
	long := strings.Repeat("标", 30)
	m := &scriptedModel{response: `{"title":"` + long + `","body":"正文"}`}
	g := NewGenerator(m, "zh-CN")

	c, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := len([]rune(c.Title)); got != maxTitleRunes {
		t.Errorf("title runes = %d, want %d", got, maxTitleRunes)
	}
}

func TestGenerate_EmptySubtitle(t *testing.T) {
	m := &scriptedModel{response: `{"title":"t","body":"b"}`}
	g := NewGenerator(m, "zh-CN")

	req := testRequest()
	req.SubtitleText = "   \n"
	if _, err := g.Generate(context.Background(), req); err == nil {
		t.Fatal("expected error for empty subtitle text")
	}
	if m.calls != 0 {
		t.Errorf("model called %d times, want 0", m.calls)
	}
}

func TestGenerate_UnparseableResponse(t *testing.T) {
	m := &scriptedModel{response: "I cannot produce JSON today."}
	g := NewGenerator(m, "zh-CN")

	if _, err := g.Generate(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error for unparseable response")
	}
}

func TestGenerate_ModelError(t *testing.T) {
	wantErr := errors.New("boom")
	m := &scriptedModel{err: wantErr}
	g := NewGenerator(m, "zh-CN")

	_, err := g.Generate(context.Background(), testRequest())
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestGenerateNotes(t *testing.T) {
	m := &scriptedModel{response: "# 学习笔记\n\n概述段落。\n"}
	g := NewGenerator(m, "zh-CN")

	notes, err := g.GenerateNotes(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GenerateNotes: %v", err)
	}
	if !strings.HasPrefix(notes, "# 学习笔记") {
		t.Errorf("notes = %q", notes)
	}
}

func TestGenerateNotes_Empty(t *testing.T) {
	m := &scriptedModel{response: "  \n "}
	g := NewGenerator(m, "zh-CN")

	if _, err := g.GenerateNotes(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error for empty notes")
	}
}

func TestExtractJSON_ControlCharacters(t *testing.T) {
	raw := "{\"title\":\"标\x00题\",\"body\":\"第一行\n第二行\"}"
	c, err := parseContent(raw)
	if err != nil {
		t.Fatalf("parseContent: %v", err)
	}
	if c.Title != "标题" {
		t.Errorf("Title = %q, want control characters stripped", c.Title)
	}
}

func TestExtractJSON_NoObject(t *testing.T) {
	if _, err := extractJSON("no json here"); err == nil {
		t.Fatal("expected error when no object present")
	}
}

func TestStubModelClient(t *testing.T) {
	stub := &StubModelClient{}
	g := NewGenerator(stub, "zh-CN")

	c, err := g.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate with stub: %v", err)
	}
	if c.Title == "" || c.Body == "" {
		t.Error("stub produced empty content")
	}

	notes, err := g.GenerateNotes(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GenerateNotes with stub: %v", err)
	}
	if notes == "" {
		t.Error("stub produced empty notes")
	}
}
