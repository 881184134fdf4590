package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vidrelay/vidrelay/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)

	publishedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	workingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func (m Model) View() string {
	if m.fatalErr != nil {
		return errorStyle.Render("fatal: " + m.fatalErr.Error())
	}
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}
	if m.mode == modeDetail {
		return m.viewDetail()
	}
	return m.viewBrowse()
}

func (m Model) viewBrowse() string {
	header := titleStyle.Render("vidrelay pipeline") + "\n" +
		mutedStyle.Render("up/down: move | enter: attempts | /: filter | r: refresh | q: quit")
	summary := m.renderSummaryLine(m.width)

	var body string
	if m.width < 90 {
		list := m.renderListPanel(m.width)
		preview := m.renderPreviewPanel(m.width)
		body = lipgloss.JoinVertical(lipgloss.Left, list, preview)
	} else {
		leftW := clampInt(m.width*3/5, 48, 90)
		rightW := m.width - leftW - 1
		list := m.renderListPanel(leftW)
		preview := m.renderPreviewPanel(rightW)
		body = lipgloss.JoinHorizontal(lipgloss.Top, list, preview)
	}

	parts := []string{header, summary, body, m.renderStatusLine(m.width)}
	if m.filtering {
		parts = append(parts, m.filter.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderSummaryLine(width int) string {
	active := 0
	for stage, n := range m.counts {
		if !model.IsTerminalStage(stage) {
			active += n
		}
	}
	parts := []string{
		workingStyle.Render(fmt.Sprintf("%d active", active)),
		publishedStyle.Render(fmt.Sprintf("%d published", m.counts[model.StagePublished])),
		failedStyle.Render(fmt.Sprintf("%d failed", m.counts[model.StagePermanentlyFailed])),
		mutedStyle.Render(fmt.Sprintf("%d skipped", m.counts[model.StageSkipped])),
	}
	return wrapOrTrim(strings.Join(parts, mutedStyle.Render(" · ")), width)
}

func (m Model) renderListPanel(width int) string {
	visible := m.visibleVideos()
	total := len(visible)
	maxRows := clampInt(m.height-12, 4, 24)
	start, end := listWindow(total, m.cursor, maxRows)

	lines := make([]string, 0, maxRows+2)
	if total == 0 {
		if strings.TrimSpace(m.filter.Value()) != "" {
			lines = append(lines, mutedStyle.Render("No videos match the filter."))
		} else {
			lines = append(lines, mutedStyle.Render("No videos tracked yet."))
		}
	}
	if start > 0 {
		lines = append(lines, mutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		v := visible[i]
		line := truncateRunes(
			fmt.Sprintf("%-18s %-12s %s", v.Stage, v.ID, v.Title),
			maxInt(width-6, 10))
		if i == m.cursor {
			line = selStyle.Width(maxInt(width-4, 6)).Render(line)
		} else {
			line = stageLineStyle(v.Stage).Render(line)
		}
		lines = append(lines, line)
	}
	if end < total {
		lines = append(lines, mutedStyle.Render("..."))
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderPreviewPanel(width int) string {
	visible := m.visibleVideos()
	var lines []string
	if len(visible) == 0 || m.cursor >= len(visible) {
		lines = append(lines, mutedStyle.Render("Nothing selected."))
	} else {
		v := visible[m.cursor]
		lines = append(lines, "Video")
		lines = append(lines, "")
		lines = append(lines, kv("id", v.ID))
		lines = append(lines, kv("title", v.Title))
		lines = append(lines, kv("stage", v.Stage))
		lines = append(lines, kv("duration", formatSeconds(v.DurationSeconds)))
		lines = append(lines, kv("updated", v.UpdatedAt))
		if v.PublishConfirmation != "" {
			lines = append(lines, kv("post", v.PublishConfirmation))
		}
		if info, ok := model.ParseErrorInfo(v.ErrorInfo); ok {
			lines = append(lines, "")
			lines = append(lines, errorStyle.Render("last failure"))
			lines = append(lines, kv("step", info.FailedStep))
			lines = append(lines, kv("message", info.Message))
		}
		lines = append(lines, "")
		lines = append(lines, mutedStyle.Render("Press Enter for attempt history."))
	}
	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], maxInt(width-6, 12))
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) viewDetail() string {
	v := m.detailVideo
	if v == nil {
		return ""
	}
	header := titleStyle.Render("attempts: "+v.ID) + "\n" +
		mutedStyle.Render("esc: back | r: refresh | q: quit")

	lines := []string{
		kv("title", v.Title),
		kv("stage", v.Stage),
		kv("watch", v.WatchURL()),
	}
	if v.MediaPath != "" {
		lines = append(lines, kv("media", v.MediaPath))
	}
	if v.SubtitlePath != "" {
		lines = append(lines, kv("subtitle", v.SubtitlePath))
	}
	if v.ContentPath != "" {
		lines = append(lines, kv("content", v.ContentPath))
	}
	if v.PublishConfirmation != "" {
		lines = append(lines, kv("post", v.PublishConfirmation))
	}
	if info, ok := model.ParseErrorInfo(v.ErrorInfo); ok {
		lines = append(lines, errorStyle.Render(fmt.Sprintf("failed at %s: %s", info.FailedStep, info.Message)))
	}
	lines = append(lines, "")

	if len(m.detailAttempts) == 0 {
		lines = append(lines, mutedStyle.Render("No attempts recorded."))
	}
	for _, a := range m.detailAttempts {
		lines = append(lines, renderAttemptLine(a))
	}

	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], maxInt(m.width-6, 20))
	}
	panel := panelStyle.Width(maxInt(m.width-2, 40)).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, m.renderStatusLine(m.width))
}

func (m Model) renderStatusLine(width int) string {
	msg := strings.TrimSpace(m.statusMessage)
	if msg == "" {
		if f := strings.TrimSpace(m.filter.Value()); f != "" && !m.filtering {
			msg = fmt.Sprintf("filter: %q (esc clears)", f)
		} else {
			msg = fmt.Sprintf("refreshes every %s", refreshEvery)
		}
	}
	style := mutedStyle
	if strings.HasPrefix(strings.ToLower(msg), "error:") {
		style = errorStyle
	}
	return style.Width(width).Render(truncateRunes(msg, maxInt(width-2, 10)))
}

func renderAttemptLine(a model.Attempt) string {
	line := fmt.Sprintf("%-16s #%d  %-7s  %s", a.Step, a.AttemptNumber, displayOutcome(a), attemptTiming(a))
	if a.ErrorDetail != "" {
		line += "  " + a.ErrorDetail
	}
	switch a.Outcome {
	case model.OutcomeSuccess:
		return publishedStyle.Render(line)
	case "":
		return workingStyle.Render(line)
	default:
		return failedStyle.Render(line)
	}
}

func displayOutcome(a model.Attempt) string {
	if a.Outcome == "" {
		return "running"
	}
	return a.Outcome
}

func attemptTiming(a model.Attempt) string {
	started, ok := a.StartedAtTime()
	if !ok {
		return a.StartedAt
	}
	out := started.Local().Format("01-02 15:04:05")
	if ended, ok := a.EndedAtTime(); ok {
		d := ended.Sub(started).Round(time.Second)
		if d < 0 {
			d = 0
		}
		out += fmt.Sprintf(" (%s)", d)
	}
	return out
}

func stageLineStyle(stage string) lipgloss.Style {
	switch stage {
	case model.StagePublished:
		return publishedStyle
	case model.StagePermanentlyFailed:
		return failedStyle
	case model.StageSkipped:
		return mutedStyle
	}
	return lipgloss.NewStyle()
}

func formatSeconds(s int64) string {
	if s <= 0 {
		return "unknown"
	}
	return (time.Duration(s) * time.Second).String()
}
