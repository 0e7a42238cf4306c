package session

import "github.com/MrWong99/speakeasy/internal/lexicon"

// EventKind classifies an [Event].
type EventKind string

const (
	EventReset          EventKind = "reset"
	EventStarted        EventKind = "started"
	EventStepEntered    EventKind = "step_entered"
	EventStepRepeated   EventKind = "step_repeated"
	EventTimeoutPrompt  EventKind = "timeout_prompt"
	EventAutoAdvance    EventKind = "auto_advance"
	EventCompleted      EventKind = "completed"
	EventEnded          EventKind = "ended"
	EventInvalidCommand EventKind = "invalid_command"
)

// Event describes something the machine did. Observers receive events on the
// event loop, after the presenter has been updated.
type Event struct {
	Kind      EventKind
	SessionID string
	From, To  State
	Index     int
	Total     int
	Step      string
	Command   lexicon.Command
}

// Observer receives machine events. Implementations must not block.
type Observer interface {
	SessionEvent(Event)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(Event)

// SessionEvent implements [Observer].
func (f ObserverFunc) SessionEvent(e Event) { f(e) }
