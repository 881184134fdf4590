// Package dashboard renders the pipeline state in the terminal: a live list
// of tracked videos with stage colouring, a filter, and per-video attempt
// history, reading the same store the daemon writes.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vidrelay/vidrelay/internal/model"
	"github.com/vidrelay/vidrelay/internal/store"
)

type viewMode int

const (
	modeBrowse viewMode = iota
	modeDetail
)

// refreshEvery paces the background reload while the dashboard is open.
const refreshEvery = 5 * time.Second

// loadTimeout bounds one store read so a locked database cannot freeze the UI.
const loadTimeout = 5 * time.Second

// Model is the bubbletea model behind the dashboard.
type Model struct {
	store store.StatusStore

	videos []model.Video
	counts map[string]int
	cursor int
	width  int
	height int
	mode   viewMode

	filter    textinput.Model
	filtering bool

	detailVideo    *model.Video
	detailAttempts []model.Attempt

	statusMessage string
	fatalErr      error
}

type videosLoadedMsg struct {
	videos []model.Video
	counts map[string]int
	err    error
}

type detailLoadedMsg struct {
	video    *model.Video
	attempts []model.Attempt
	err      error
}

type refreshTickMsg time.Time

// New builds the initial model over the given store.
func New(st store.StatusStore) Model {
	input := textinput.New()
	input.Prompt = "/"
	input.Placeholder = "video id or title"
	input.CharLimit = 128
	input.Width = 40
	return Model{store: st, filter: input}
}

// Run opens the dashboard and blocks until the user quits.
func Run(st store.StatusStore) error {
	if !stdinIsTTY() {
		return errors.New("dashboard requires an interactive terminal (TTY)")
	}
	p := tea.NewProgram(New(st), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := finalModel.(Model); ok {
		return fm.fatalErr
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadVideosCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return refreshTickMsg(t) })
}

func (m Model) loadVideosCmd() tea.Cmd {
	st := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		videos, err := st.ListVideos(ctx, nil)
		if err != nil {
			return videosLoadedMsg{err: err}
		}
		counts, err := st.CountByStage(ctx)
		if err != nil {
			return videosLoadedMsg{err: err}
		}
		return videosLoadedMsg{videos: videos, counts: counts}
	}
}

func (m Model) loadDetailCmd(id string) tea.Cmd {
	st := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		v, err := st.GetVideo(ctx, id)
		if err != nil {
			return detailLoadedMsg{err: err}
		}
		if v == nil {
			return detailLoadedMsg{err: fmt.Errorf("video %s is not in the store", id)}
		}
		attempts, err := st.ListVideoAttempts(ctx, id)
		if err != nil {
			return detailLoadedMsg{err: err}
		}
		return detailLoadedMsg{video: v, attempts: attempts}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filter.Width = clampInt(m.width-8, 20, 80)
		return m, nil
	case videosLoadedMsg:
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.videos = msg.videos
		m.counts = msg.counts
		m.statusMessage = ""
		m.clampCursor()
		return m, nil
	case detailLoadedMsg:
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			m.mode = modeBrowse
			return m, nil
		}
		m.detailVideo = msg.video
		m.detailAttempts = msg.attempts
		m.mode = modeDetail
		return m, nil
	case refreshTickMsg:
		cmds := []tea.Cmd{tickCmd()}
		if m.mode == modeDetail && m.detailVideo != nil {
			cmds = append(cmds, m.loadDetailCmd(m.detailVideo.ID))
		} else {
			cmds = append(cmds, m.loadVideosCmd())
		}
		return m, tea.Batch(cmds...)
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.mode == modeDetail {
		return m.updateDetail(keyMsg)
	}
	return m.updateBrowse(keyMsg)
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.filtering = false
			m.filter.SetValue("")
			m.filter.Blur()
			m.clampCursor()
			return m, nil
		case "enter":
			m.filtering = false
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.clampCursor()
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.visibleVideos())-1 {
			m.cursor++
		}
		return m, nil
	case "/":
		m.filtering = true
		m.statusMessage = ""
		m.filter.Focus()
		return m, nil
	case "esc":
		if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.clampCursor()
		}
		return m, nil
	case "r":
		return m, m.loadVideosCmd()
	case "enter":
		visible := m.visibleVideos()
		if len(visible) == 0 || m.cursor >= len(visible) {
			return m, nil
		}
		return m, m.loadDetailCmd(visible[m.cursor].ID)
	}
	return m, nil
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "backspace":
		m.mode = modeBrowse
		m.detailVideo = nil
		m.detailAttempts = nil
		return m, m.loadVideosCmd()
	case "r":
		if m.detailVideo != nil {
			return m, m.loadDetailCmd(m.detailVideo.ID)
		}
	}
	return m, nil
}

// visibleVideos applies the filter text to the loaded list.
func (m Model) visibleVideos() []model.Video {
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if needle == "" {
		return m.videos
	}
	out := make([]model.Video, 0, len(m.videos))
	for _, v := range m.videos {
		if strings.Contains(strings.ToLower(v.ID), needle) ||
			strings.Contains(strings.ToLower(v.Title), needle) {
			out = append(out, v)
		}
	}
	return out
}

func (m *Model) clampCursor() {
	total := len(m.visibleVideos())
	if total == 0 {
		m.cursor = 0
		return
	}
	if m.cursor > total-1 {
		m.cursor = total - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func stdinIsTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
