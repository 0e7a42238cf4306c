// Package tui is the terminal front-end: a bubbletea program that renders the
// session and maps keys to manual controls.
package tui

import (
	"context"
	"log/slog"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/speakeasy/internal/present"
	"github.com/MrWong99/speakeasy/internal/voicecmd"
)

// Compile-time assertion that Presenter satisfies present.Presenter.
var _ present.Presenter = (*Presenter)(nil)

// Controls performs manual controls. [voicecmd.Dispatcher] implements it.
type Controls interface {
	Simulate(ctx context.Context, c voicecmd.Control) error
}

const queueSize = 256

// Presenter forwards presenter calls to the bubbletea model. Calls never
// block; when the UI falls behind by more than queueSize updates the newest
// ones are dropped.
type Presenter struct {
	msgs    chan tea.Msg
	seq     atomic.Int64
	dropped atomic.Int64
}

// NewPresenter returns a Presenter. Pair it with [NewModel].
func NewPresenter() *Presenter {
	return &Presenter{msgs: make(chan tea.Msg, queueSize)}
}

func (p *Presenter) send(msg tea.Msg) {
	select {
	case p.msgs <- msg:
	default:
		if p.dropped.Add(1) == 1 {
			slog.Warn("tui: update queue full, dropping updates")
		}
	}
}

// wait returns a command that delivers the next presenter call.
func (p *Presenter) wait() tea.Cmd {
	return func() tea.Msg { return <-p.msgs }
}

// ShowWelcome implements [present.Presenter].
func (p *Presenter) ShowWelcome() { p.send(welcomeMsg{}) }

// ShowStep implements [present.Presenter].
func (p *Presenter) ShowStep(text string) { p.send(stepMsg{text: text}) }

// ShowComplete implements [present.Presenter].
func (p *Presenter) ShowComplete() { p.send(completeMsg{}) }

// UpdateProgress implements [present.Presenter].
func (p *Presenter) UpdateProgress(current, total int) {
	p.send(progressMsg{current: current, total: total})
}

// PlayFeedback implements [present.Presenter].
func (p *Presenter) PlayFeedback(kind present.FeedbackKind, message string) {
	p.send(feedbackMsg{kind: kind, text: message, seq: int(p.seq.Add(1))})
}

// UpdateStatus implements [present.Presenter].
func (p *Presenter) UpdateStatus(listening bool, message string) {
	p.send(statusMsg{listening: listening, text: message})
}

// ShowCue implements [present.Presenter].
func (p *Presenter) ShowCue(text string) { p.send(cueMsg{text: text}) }
