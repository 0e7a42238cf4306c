// Package mock provides a recording [present.Presenter] for tests.
package mock

import (
	"sync"

	"github.com/MrWong99/speakeasy/internal/present"
)

var _ present.Presenter = (*Presenter)(nil)

// Feedback records one PlayFeedback call.
type Feedback struct {
	Kind    present.FeedbackKind
	Message string
}

// Status records one UpdateStatus call.
type Status struct {
	Listening bool
	Message   string
}

// Progress records one UpdateProgress call.
type Progress struct {
	Current, Total int
}

// Presenter records every call. Safe for concurrent use.
type Presenter struct {
	mu sync.Mutex

	Welcomes  int
	Completes int
	Steps     []string
	Progress  []Progress
	Feedback  []Feedback
	Statuses  []Status
	Cues      []string
}

func (p *Presenter) ShowWelcome() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Welcomes++
}

func (p *Presenter) ShowStep(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps = append(p.Steps, text)
}

func (p *Presenter) ShowComplete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Completes++
}

func (p *Presenter) UpdateProgress(current, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Progress = append(p.Progress, Progress{Current: current, Total: total})
}

func (p *Presenter) PlayFeedback(kind present.FeedbackKind, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Feedback = append(p.Feedback, Feedback{Kind: kind, Message: message})
}

func (p *Presenter) UpdateStatus(listening bool, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Statuses = append(p.Statuses, Status{Listening: listening, Message: message})
}

func (p *Presenter) ShowCue(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cues = append(p.Cues, text)
}

// FeedbackOf returns the messages recorded for kind.
func (p *Presenter) FeedbackOf(kind present.FeedbackKind) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, f := range p.Feedback {
		if f.Kind == kind {
			out = append(out, f.Message)
		}
	}
	return out
}

// LastStatus returns the most recent status, if any.
func (p *Presenter) LastStatus() (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Statuses) == 0 {
		return Status{}, false
	}
	return p.Statuses[len(p.Statuses)-1], true
}
