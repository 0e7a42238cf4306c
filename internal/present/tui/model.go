package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/speakeasy/internal/present"
	"github.com/MrWong99/speakeasy/internal/voicecmd"
)

// Default screen texts.
const (
	DefaultTitle    = "SpeakEasy"
	DefaultWelcome  = `Welcome to your relaxation session. Say "Begin therapy" to start.`
	DefaultComplete = "Session complete! Great job!"

	feedbackTTL = 4 * time.Second
	barWidth    = 30
)

// Option is a functional option for configuring a [Model].
type Option func(*Model)

// WithTexts overrides the title, welcome and completion texts.
func WithTexts(title, welcome, complete string) Option {
	return func(m *Model) {
		m.title, m.welcome, m.complete = title, welcome, complete
	}
}

// keyControls maps keys to manual controls.
var keyControls = map[string]voicecmd.Control{
	"s": voicecmd.ControlStart,
	"n": voicecmd.ControlNext,
	"c": voicecmd.ControlNext,
	"r": voicecmd.ControlRepeat,
	"e": voicecmd.ControlEnd,
	" ": voicecmd.ControlListen,
	"d": voicecmd.ControlListen,
	"x": voicecmd.ControlRestart,
}

// Model is the root bubbletea model.
type Model struct {
	ctx      context.Context
	pres     *Presenter
	controls Controls

	title    string
	welcome  string
	complete string

	// Screen
	body      string
	finished  bool
	cue       string
	current   int
	total     int
	listening bool
	status    string

	// Feedback line
	feedback     string
	feedbackKind present.FeedbackKind
	feedbackSeq  int

	// debug toggles the diagnostics line.
	debug    bool
	lastErr  string
	width    int
	quitting bool
}

// NewModel returns a Model that renders calls made on p and routes keys to
// controls. controls may be nil for a display-only UI.
func NewModel(ctx context.Context, p *Presenter, controls Controls, opts ...Option) Model {
	m := Model{
		ctx:      ctx,
		pres:     p,
		controls: controls,
		title:    DefaultTitle,
		welcome:  DefaultWelcome,
		complete: DefaultComplete,
	}
	for _, o := range opts {
		o(&m)
	}
	m.body = m.welcome
	return m
}

// Init implements [tea.Model].
func (m Model) Init() tea.Cmd {
	return m.pres.wait()
}

// Update implements [tea.Model].
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case controlResultMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
		return m, nil

	case clearFeedbackMsg:
		if msg.seq == m.feedbackSeq {
			m.feedback = ""
		}
		return m, nil
	}

	cmd := m.apply(msg)
	return m, tea.Batch(cmd, m.pres.wait())
}

// apply handles one presenter call.
func (m *Model) apply(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case welcomeMsg:
		m.body = m.welcome
		m.finished = false
		m.cue = ""
		m.current, m.total = 0, 0
	case stepMsg:
		m.body = msg.text
		m.finished = false
	case completeMsg:
		m.body = m.complete
		m.finished = true
		m.cue = ""
	case progressMsg:
		m.current, m.total = msg.current, msg.total
	case feedbackMsg:
		m.feedback = msg.text
		m.feedbackKind = msg.kind
		m.feedbackSeq = msg.seq
		seq := msg.seq
		return tea.Tick(feedbackTTL, func(time.Time) tea.Msg { return clearFeedbackMsg{seq: seq} })
	case statusMsg:
		m.listening = msg.listening
		m.status = msg.text
	case cueMsg:
		m.cue = msg.text
	}
	return nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "d":
		m.debug = !m.debug
	}
	c, ok := keyControls[key]
	if !ok || m.controls == nil {
		return m, nil
	}
	return m, m.control(c)
}

// control runs c off the UI goroutine.
func (m Model) control(c voicecmd.Control) tea.Cmd {
	ctx, controls := m.ctx, m.controls
	return func() tea.Msg {
		return controlResultMsg{err: controls.Simulate(ctx, c)}
	}
}

// View implements [tea.Model].
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	if m.total > 0 && !m.finished {
		b.WriteString("  " + m.progressBar())
	}
	b.WriteString("\n\n")
	b.WriteString(stepStyle.Width(min(width-2, 76)).Render(m.body))
	b.WriteString("\n")
	if m.cue != "" {
		b.WriteString("\n  " + cueStyle.Render(m.cue) + "\n")
	}
	if m.feedback != "" {
		b.WriteString("\n  " + feedbackStyle(m.feedbackKind).Render(m.feedback) + "\n")
	}
	b.WriteString("\n" + m.statusLine() + "\n")
	if m.debug {
		b.WriteString(statusStyle.Render(fmt.Sprintf("step %d/%d  listening=%t  last error: %s",
			m.current, m.total, m.listening, orNone(m.lastErr))) + "\n")
	}
	b.WriteString(helpStyle.Render("s start · n/c next · r repeat · e end · space listen · d debug · x new session · q quit"))
	return lipgloss.NewStyle().MaxWidth(width).Render(b.String())
}

func (m Model) progressBar() string {
	filled := barWidth * m.current / m.total
	filled = max(0, min(filled, barWidth))
	return progressFullStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", barWidth-filled)) +
		statusStyle.Render(fmt.Sprintf(" %d/%d", m.current, m.total))
}

func (m Model) statusLine() string {
	dot := idleDotStyle.Render("○")
	if m.listening {
		dot = listeningDotStyle.Render("●")
	}
	return dot + " " + statusStyle.Render(m.status)
}

func feedbackStyle(k present.FeedbackKind) lipgloss.Style {
	switch k {
	case present.Success:
		return successStyle
	case present.Error:
		return errorStyle
	case present.Timeout:
		return timeoutStyle
	default:
		return suggestionStyle
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
