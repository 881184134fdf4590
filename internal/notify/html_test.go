package notify

import (
	"strings"
	"testing"
)

func TestSuccessBody(t *testing.T) {
	info := OutcomeInfo{
		VideoID:      "abc123",
		VideoTitle:   "How AI changes everything",
		VideoURL:     "https://www.youtube.com/watch?v=abc123",
		ContentTitle: "AI改变一切",
		ContentBody:  "第一段\n第二段",
		MediaPath:    "/data/media/abc123.mp4",
	}

	body, err := SuccessBody(info)
	if err != nil {
		t.Fatalf("SuccessBody() error = %v", err)
	}
	for _, want := range []string{"AI改变一切", "How AI changes everything", "第一段<br>第二段", "abc123.mp4", "已自动发布到小红书"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestSuccessBody_EscapesContent(t *testing.T) {
	info := OutcomeInfo{
		VideoTitle:   "<script>alert(1)</script>",
		ContentTitle: "safe",
		ContentBody:  "a<b",
	}
	body, err := SuccessBody(info)
	if err != nil {
		t.Fatalf("SuccessBody() error = %v", err)
	}
	if strings.Contains(body, "<script>") {
		t.Error("video title must be escaped")
	}
	if !strings.Contains(body, "a&lt;b") {
		t.Error("content body must be escaped")
	}
}

func TestFailureBody(t *testing.T) {
	info := OutcomeInfo{
		VideoID:     "abc123",
		VideoTitle:  "Some video",
		VideoURL:    "https://www.youtube.com/watch?v=abc123",
		Stage:       "publishing",
		ErrorDetail: "publish via account \"auto\" failed (exit 1): account logged out",
	}

	body, err := FailureBody(info)
	if err != nil {
		t.Fatalf("FailureBody() error = %v", err)
	}
	for _, want := range []string{"视频处理失败", "Some video", "publishing", "account logged out"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestSubjects(t *testing.T) {
	info := OutcomeInfo{VideoTitle: "orig", ContentTitle: "生成标题"}
	if got := SuccessSubject(info); got != "视频处理完成: 生成标题" {
		t.Errorf("SuccessSubject = %q", got)
	}
	if got := SuccessSubject(OutcomeInfo{VideoTitle: "orig"}); got != "视频处理完成: orig" {
		t.Errorf("SuccessSubject fallback = %q", got)
	}
	if got := FailureSubject(info); !strings.Contains(got, "orig") {
		t.Errorf("FailureSubject = %q, want original title", got)
	}
}

func TestSummaryBody(t *testing.T) {
	advanced := []SummaryItem{{VideoID: "a1", Title: "First", Stage: "published"}}
	retrying := []SummaryItem{{VideoID: "b2", Title: "Second", Stage: "downloading", Detail: "HTTP Error 429"}}
	failed := []SummaryItem{{VideoID: "c3", Title: "Third", Stage: "permanently_failed", Detail: "account logged out"}}

	body, err := SummaryBody(advanced, retrying, failed, []string{"d4: load video: disk I/O error"})
	if err != nil {
		t.Fatalf("SummaryBody() error = %v", err)
	}
	for _, want := range []string{"Advanced (1)", "Still retrying (1)", "Newly failed (1)", "Run errors (1)", "First", "HTTP Error 429", "account logged out", "disk I/O error"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestSummaryBody_Quiet(t *testing.T) {
	body, err := SummaryBody(nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("SummaryBody() error = %v", err)
	}
	if !strings.Contains(body, "No videos changed state") {
		t.Error("quiet run should say nothing changed")
	}
}

func TestSummarySubject(t *testing.T) {
	if got := SummarySubject(2, 1, 1); got != "vidrelay run: 2 advanced, 1 retrying, 1 failed" {
		t.Errorf("SummarySubject = %q", got)
	}
}
