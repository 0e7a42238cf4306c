// Package session implements the guided-session state machine.
//
// A session moves Idle → Active → Complete. Commands advance it through an
// ordered list of steps; each step may carry a [Behavior] that the machine
// starts when the step is entered and stops before anything else runs. An
// inactivity timer prompts the user once and then advances on its own.
//
// A [Machine] is not safe for concurrent use. It is driven from the event
// loop in package sched, which serializes commands and timer callbacks.
package session

import (
	"errors"
	"fmt"
)

// State is the coarse session state.
type State int

const (
	Idle State = iota
	Active
	Complete
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ParseState resolves a name returned by [State.String].
func ParseState(s string) (State, error) {
	switch s {
	case "idle":
		return Idle, nil
	case "active":
		return Active, nil
	case "complete":
		return Complete, nil
	}
	return Idle, fmt.Errorf("session: unknown state %q", s)
}

// ErrInvalidStateCommand is returned when a command does not apply to the
// current state. The session is left unchanged.
var ErrInvalidStateCommand = errors.New("session: command not valid in current state")

// Behavior is the start/stop handle of a step. The machine calls ExecuteStep
// at most once without an intervening StopStep.
type Behavior interface {
	ExecuteStep() error
	StopStep() error
}

// Hider is implemented by behaviors with visible output that must disappear
// even when StopStep fails.
type Hider interface {
	ForceHide()
}

// Step is one stage of a session.
type Step struct {
	Name string

	// Text is the instruction shown while the step is active.
	Text string

	// Details is optional longer guidance.
	Details string

	// Behavior may be nil.
	Behavior Behavior
}

// Snapshot is a read-only copy of the machine's position.
type Snapshot struct {
	ID    string `json:"id"`
	State State  `json:"state"`
	Index int    `json:"index"`
	Total int    `json:"total"`
	Step  string `json:"step,omitempty"`
}

// MarshalText lets State render as its name in JSON and logs.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
