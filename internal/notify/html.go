package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// OutcomeInfo describes one video's terminal result for mail rendering.
type OutcomeInfo struct {
	VideoID      string
	VideoTitle   string
	VideoURL     string
	Stage        string
	ContentTitle string
	ContentBody  string
	MediaPath    string
	ErrorDetail  string
}

// SummaryItem is one line of a run summary notification.
type SummaryItem struct {
	VideoID string
	Title   string
	Stage   string
	Detail  string
}

const timestampLayout = "2006年01月02日 15:04:05"

var successTmpl = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; color: #333; line-height: 1.6;">
<div style="background: #ff4757; color: white; padding: 20px; border-radius: 10px 10px 0 0; text-align: center;">
<h1 style="margin: 0 0 10px 0; font-size: 24px;">{{.ContentTitle}}</h1>
<p style="margin: 0; font-size: 14px;">处理时间: {{.Timestamp}}</p>
</div>
<div style="background: #f8f9fa; padding: 25px; border: 1px solid #e9ecef; border-radius: 0 0 10px 10px;">
<div style="background: white; padding: 20px; border-radius: 8px; border-left: 4px solid #ff4757;">{{.BodyHTML}}</div>
<p>📹 <strong>原视频标题:</strong> {{.VideoTitle}}</p>
{{if .VideoURL}}<p>🔗 <strong>原始链接:</strong> <a href="{{.VideoURL}}">{{.VideoURL}}</a></p>{{end}}
{{if .MediaPath}}<p>🎬 <strong>本地视频:</strong> {{.MediaPath}}</p>{{end}}
<p>🚀 <strong>状态:</strong> 已自动发布到小红书</p>
</div>
<div style="text-align: center; font-size: 12px; color: #888; margin-top: 16px;">
<p>此邮件由自动化系统发送。</p>
</div>
</body>
</html>`))

var failureTmpl = template.Must(template.New("failure").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; color: #333; line-height: 1.6;">
<div style="background: #ee5a24; color: white; padding: 20px; border-radius: 10px 10px 0 0; text-align: center;">
<h1 style="margin: 0 0 10px 0; font-size: 24px;">视频处理失败</h1>
<p style="margin: 0; font-size: 14px;">处理时间: {{.Timestamp}}</p>
</div>
<div style="background: #f8f9fa; padding: 25px; border: 1px solid #e9ecef; border-radius: 0 0 10px 10px;">
<p>📹 <strong>视频标题:</strong> {{.VideoTitle}}</p>
{{if .VideoURL}}<p>🔗 <strong>视频链接:</strong> <a href="{{.VideoURL}}">{{.VideoURL}}</a></p>{{end}}
<p>⚙️ <strong>失败阶段:</strong> {{.Stage}}</p>
<div style="background: #fff5f5; padding: 15px; border-radius: 8px; border-left: 4px solid #ee5a24; font-family: monospace; white-space: pre-wrap;">{{.ErrorDetail}}</div>
</div>
<div style="text-align: center; font-size: 12px; color: #888; margin-top: 16px;">
<p>此邮件由自动化系统发送。</p>
</div>
</body>
</html>`))

var summaryTmpl = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; color: #333; line-height: 1.6;">
<h2 style="margin-top: 0;">Pipeline run summary</h2>
<p style="color: #888; font-size: 14px;">{{.Timestamp}}</p>
{{if .Advanced}}<h3>Advanced ({{len .Advanced}})</h3>
<ul>{{range .Advanced}}<li><strong>{{.Title}}</strong> ({{.VideoID}}) &rarr; {{.Stage}}</li>{{end}}</ul>{{end}}
{{if .Retrying}}<h3>Still retrying ({{len .Retrying}})</h3>
<ul>{{range .Retrying}}<li><strong>{{.Title}}</strong> ({{.VideoID}}), {{.Stage}}{{if .Detail}}<br><span style="font-family: monospace; font-size: 12px;">{{.Detail}}</span>{{end}}</li>{{end}}</ul>{{end}}
{{if .Failed}}<h3>Newly failed ({{len .Failed}})</h3>
<ul>{{range .Failed}}<li><strong>{{.Title}}</strong> ({{.VideoID}}), {{.Stage}}{{if .Detail}}<br><span style="font-family: monospace; font-size: 12px;">{{.Detail}}</span>{{end}}</li>{{end}}</ul>{{end}}
{{if .RunErrors}}<h3>Run errors ({{len .RunErrors}})</h3>
<ul>{{range .RunErrors}}<li><span style="font-family: monospace; font-size: 12px;">{{.}}</span></li>{{end}}</ul>{{end}}
{{if .Quiet}}<p>No videos changed state in this run.</p>{{end}}
</body>
</html>`))

// SuccessSubject builds the subject for a published-video notification.
func SuccessSubject(info OutcomeInfo) string {
	title := info.ContentTitle
	if strings.TrimSpace(title) == "" {
		title = info.VideoTitle
	}
	return "视频处理完成: " + title
}

// FailureSubject builds the subject for a permanently failed video.
func FailureSubject(info OutcomeInfo) string {
	return "❌ 视频处理失败 - " + info.VideoTitle
}

// SuccessBody renders the HTML body for a published video.
func SuccessBody(info OutcomeInfo) (string, error) {
	data := struct {
		OutcomeInfo
		Timestamp string
		BodyHTML  template.HTML
	}{
		OutcomeInfo: info,
		Timestamp:   time.Now().Format(timestampLayout),
		BodyHTML:    nl2br(info.ContentBody),
	}
	var b bytes.Buffer
	if err := successTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render success body: %w", err)
	}
	return b.String(), nil
}

// FailureBody renders the HTML body for a permanently failed video.
func FailureBody(info OutcomeInfo) (string, error) {
	data := struct {
		OutcomeInfo
		Timestamp string
	}{
		OutcomeInfo: info,
		Timestamp:   time.Now().Format(timestampLayout),
	}
	var b bytes.Buffer
	if err := failureTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render failure body: %w", err)
	}
	return b.String(), nil
}

// SummarySubject builds the subject line for a run summary.
func SummarySubject(advanced, retrying, failed int) string {
	return fmt.Sprintf("vidrelay run: %d advanced, %d retrying, %d failed", advanced, retrying, failed)
}

// SummaryBody renders the HTML body enumerating a run's state changes.
// runErrors lists pass-level problems (store or discovery failures) that kept
// videos from being processed.
func SummaryBody(advanced, retrying, failed []SummaryItem, runErrors []string) (string, error) {
	data := struct {
		Advanced  []SummaryItem
		Retrying  []SummaryItem
		Failed    []SummaryItem
		RunErrors []string
		Quiet     bool
		Timestamp string
	}{
		Advanced:  advanced,
		Retrying:  retrying,
		Failed:    failed,
		RunErrors: runErrors,
		Quiet:     len(advanced) == 0 && len(retrying) == 0 && len(failed) == 0 && len(runErrors) == 0,
		Timestamp: time.Now().Format(timestampLayout),
	}
	var b bytes.Buffer
	if err := summaryTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render summary body: %w", err)
	}
	return b.String(), nil
}

// nl2br escapes s for HTML and turns newlines into line breaks.
func nl2br(s string) template.HTML {
	escaped := template.HTMLEscapeString(s)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}
