package tui

import "github.com/MrWong99/speakeasy/internal/present"

// Presenter calls arrive as these messages.
type (
	welcomeMsg  struct{}
	stepMsg     struct{ text string }
	completeMsg struct{}
	progressMsg struct{ current, total int }
	feedbackMsg struct {
		kind present.FeedbackKind
		text string
		seq  int
	}
	statusMsg struct {
		listening bool
		text      string
	}
	cueMsg struct{ text string }
)

// clearFeedbackMsg expires the feedback line with the same sequence number.
type clearFeedbackMsg struct{ seq int }

// controlResultMsg carries the outcome of a key-triggered control.
type controlResultMsg struct{ err error }
