// Package voice is the boundary to the speech recognizer.
//
// The session core only ever sees a [Service]: it activates and deactivates
// listening and consumes [Event]s. [STTService] adapts any streaming
// speech-to-text provider plus an audio source to that contract.
package voice

import (
	"context"
	"fmt"

	"github.com/MrWong99/speakeasy/pkg/types"
)

// EventKind classifies an [Event].
type EventKind int

const (
	EventStartListening EventKind = iota
	EventStoppedListening
	EventPartialTranscript
	EventFullTranscript
	EventError
	EventAborted
)

// String returns a snake_case name for logs and metrics.
func (k EventKind) String() string {
	switch k {
	case EventStartListening:
		return "start_listening"
	case EventStoppedListening:
		return "stopped_listening"
	case EventPartialTranscript:
		return "partial_transcript"
	case EventFullTranscript:
		return "full_transcript"
	case EventError:
		return "error"
	case EventAborted:
		return "aborted"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a notification from the recognizer.
type Event struct {
	Kind EventKind

	// Text is set for transcript events.
	Text string

	// Intents carries structured annotations when the service provides them.
	Intents []types.Intent

	// Code and Message are set for EventError and EventAborted.
	Code    string
	Message string
}

// Service is a speech recognizer that listens for one utterance per
// activation.
type Service interface {
	// Activate starts listening. Events follow on the Events channel.
	Activate(ctx context.Context) error

	// Deactivate stops listening. It is safe to call when inactive.
	Deactivate() error

	// Active reports whether the service is currently listening.
	Active() bool

	// Events returns the event stream. The channel is never closed while
	// the service is in use.
	Events() <-chan Event
}
