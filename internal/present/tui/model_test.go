package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/speakeasy/internal/present"
	"github.com/MrWong99/speakeasy/internal/voicecmd"
)

type recordingControls struct {
	mu    sync.Mutex
	calls []voicecmd.Control
	err   error
}

func (r *recordingControls) Simulate(_ context.Context, c voicecmd.Control) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.err
}

func newTestModel(controls Controls) (Model, *Presenter) {
	p := NewPresenter()
	return NewModel(context.Background(), p, controls), p
}

// drain feeds every queued presenter call into the model.
func drain(t *testing.T, m Model, p *Presenter) Model {
	t.Helper()
	for {
		select {
		case msg := <-p.msgs:
			updated, _ := m.Update(msg)
			m = updated.(Model)
		default:
			return m
		}
	}
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModel_ShowsWelcome(t *testing.T) {
	t.Parallel()
	m, _ := newTestModel(nil)
	if m.body != DefaultWelcome {
		t.Errorf("body = %q, want welcome", m.body)
	}
	if !strings.Contains(m.View(), "Begin therapy") {
		t.Error("view does not contain the welcome text")
	}
}

func TestPresenterCalls(t *testing.T) {
	t.Parallel()
	m, p := newTestModel(nil)

	p.ShowStep("Breathe in slowly.")
	p.UpdateProgress(2, 4)
	p.ShowCue("Breathe in… 4")
	p.UpdateStatus(true, "Listening...")
	m = drain(t, m, p)

	if m.body != "Breathe in slowly." {
		t.Errorf("body = %q", m.body)
	}
	if m.current != 2 || m.total != 4 {
		t.Errorf("progress = %d/%d, want 2/4", m.current, m.total)
	}
	if !m.listening || m.status != "Listening..." {
		t.Errorf("status = %t %q", m.listening, m.status)
	}
	view := m.View()
	for _, want := range []string{"Breathe in slowly.", "Breathe in… 4", "2/4", "Listening..."} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	p.ShowComplete()
	m = drain(t, m, p)
	if !m.finished || m.body != DefaultComplete || m.cue != "" {
		t.Errorf("after complete: finished=%t body=%q cue=%q", m.finished, m.body, m.cue)
	}

	p.ShowWelcome()
	m = drain(t, m, p)
	if m.finished || m.body != DefaultWelcome || m.total != 0 {
		t.Errorf("after welcome: finished=%t body=%q total=%d", m.finished, m.body, m.total)
	}
}

func TestFeedbackExpiresBySequence(t *testing.T) {
	t.Parallel()
	m, p := newTestModel(nil)

	p.PlayFeedback(present.Error, "first")
	p.PlayFeedback(present.Success, "second")
	m = drain(t, m, p)
	if m.feedback != "second" || m.feedbackKind != present.Success {
		t.Fatalf("feedback = %q (%v)", m.feedback, m.feedbackKind)
	}

	// The timer of the first message must not clear the second.
	updated, _ := m.Update(clearFeedbackMsg{seq: m.feedbackSeq - 1})
	m = updated.(Model)
	if m.feedback != "second" {
		t.Errorf("feedback cleared by a stale timer")
	}
	updated, _ = m.Update(clearFeedbackMsg{seq: m.feedbackSeq})
	m = updated.(Model)
	if m.feedback != "" {
		t.Errorf("feedback = %q, want cleared", m.feedback)
	}
}

func TestKeysRouteToControls(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key  string
		want voicecmd.Control
	}{
		{"s", voicecmd.ControlStart},
		{"n", voicecmd.ControlNext},
		{"c", voicecmd.ControlNext},
		{"r", voicecmd.ControlRepeat},
		{"e", voicecmd.ControlEnd},
		{" ", voicecmd.ControlListen},
		{"d", voicecmd.ControlListen},
		{"x", voicecmd.ControlRestart},
	}
	for _, tt := range tests {
		t.Run(string(tt.want)+"/"+tt.key, func(t *testing.T) {
			t.Parallel()
			rc := &recordingControls{}
			m, _ := newTestModel(rc)

			_, cmd := m.Update(key(tt.key))
			if cmd == nil {
				t.Fatalf("key %q produced no command", tt.key)
			}
			if res, ok := cmd().(controlResultMsg); !ok || res.err != nil {
				t.Fatalf("command result = %#v", res)
			}
			if len(rc.calls) != 1 || rc.calls[0] != tt.want {
				t.Errorf("controls = %v, want [%s]", rc.calls, tt.want)
			}
		})
	}
}

func TestControlErrorShownInDebug(t *testing.T) {
	t.Parallel()
	rc := &recordingControls{err: errors.New("session: next while idle: invalid")}
	m, _ := newTestModel(rc)

	updated, cmd := m.Update(key("d"))
	m = updated.(Model)
	if !m.debug {
		t.Fatal("d did not enable debug")
	}
	updated, _ = m.Update(cmd())
	m = updated.(Model)
	if !strings.Contains(m.View(), "next while idle") {
		t.Error("debug line does not show the last control error")
	}
}

func TestQuit(t *testing.T) {
	t.Parallel()
	m, _ := newTestModel(nil)
	updated, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q produced no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
	if updated.(Model).View() != "" {
		t.Error("view not empty after quit")
	}
}

func TestPresenterDropsWhenFull(t *testing.T) {
	t.Parallel()
	p := NewPresenter()
	for range queueSize + 10 {
		p.ShowCue("x")
	}
	if got := p.dropped.Load(); got != 10 {
		t.Errorf("dropped = %d, want 10", got)
	}
}
