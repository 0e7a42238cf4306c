// Package present defines the presentation boundary: everything the session
// core shows or plays to the user goes through a [Presenter].
//
// Presenter methods are called from the event loop and must not block. Slow
// front-ends (audio playback, network clients) hand work off to their own
// goroutines.
package present

import "fmt"

// FeedbackKind classifies a feedback cue.
type FeedbackKind int

const (
	Success FeedbackKind = iota
	Error
	Timeout
	Suggestion
)

// String returns the lower-case kind name.
func (k FeedbackKind) String() string {
	switch k {
	case Success:
		return "success"
	case Error:
		return "error"
	case Timeout:
		return "timeout"
	case Suggestion:
		return "suggestion"
	default:
		return fmt.Sprintf("FeedbackKind(%d)", int(k))
	}
}

// Presenter renders session output.
type Presenter interface {
	// ShowWelcome displays the idle screen.
	ShowWelcome()

	// ShowStep displays the instruction text of the current step.
	ShowStep(text string)

	// ShowComplete displays the end-of-session screen.
	ShowComplete()

	// UpdateProgress reports the 1-based current step out of total.
	UpdateProgress(current, total int)

	// PlayFeedback plays or displays a short cue.
	PlayFeedback(kind FeedbackKind, message string)

	// UpdateStatus reflects the listening indicator.
	UpdateStatus(listening bool, message string)

	// ShowCue displays a transient line produced by a running step, such as
	// a breathing phase.
	ShowCue(text string)
}

// Nop implements every Presenter method as a no-op. Embed it to implement
// only the methods a front-end cares about.
type Nop struct{}

var _ Presenter = Nop{}

func (Nop) ShowWelcome()                      {}
func (Nop) ShowStep(string)                   {}
func (Nop) ShowComplete()                     {}
func (Nop) UpdateProgress(int, int)           {}
func (Nop) PlayFeedback(FeedbackKind, string) {}
func (Nop) UpdateStatus(bool, string)         {}
func (Nop) ShowCue(string)                    {}

// Multi fans every call out to each presenter in order.
type Multi []Presenter

var _ Presenter = Multi(nil)

func (m Multi) ShowWelcome() {
	for _, p := range m {
		p.ShowWelcome()
	}
}

func (m Multi) ShowStep(text string) {
	for _, p := range m {
		p.ShowStep(text)
	}
}

func (m Multi) ShowComplete() {
	for _, p := range m {
		p.ShowComplete()
	}
}

func (m Multi) UpdateProgress(current, total int) {
	for _, p := range m {
		p.UpdateProgress(current, total)
	}
}

func (m Multi) PlayFeedback(kind FeedbackKind, message string) {
	for _, p := range m {
		p.PlayFeedback(kind, message)
	}
}

func (m Multi) UpdateStatus(listening bool, message string) {
	for _, p := range m {
		p.UpdateStatus(listening, message)
	}
}

func (m Multi) ShowCue(text string) {
	for _, p := range m {
		p.ShowCue(text)
	}
}
