// Package journal records what happened during sessions: state changes,
// interpreted transcripts and recognizer failures.
//
// Entries go to a [Store] (SQLite, PostgreSQL or a JSON-lines file) through
// a [Recorder], which writes asynchronously so the event loop never waits on
// storage.
package journal

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores and recorders after Close.
var ErrClosed = errors.New("journal: closed")

// Entry kinds not covered by session events.
const (
	KindTranscript   = "transcript"
	KindServiceError = "service_error"
	KindControl      = "control"
)

// RedactedText replaces transcripts when they must not be stored.
const RedactedText = "[redacted]"

// Entry is one journal record.
type Entry struct {
	SessionID  string    `json:"session_id,omitempty"`
	Kind       string    `json:"kind"`
	State      string    `json:"state,omitempty"`
	Step       string    `json:"step,omitempty"`
	Command    string    `json:"command,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// Store persists entries. Implementations are safe for concurrent use.
type Store interface {
	// Append writes e.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit of the newest entries, oldest first.
	// An empty sessionID matches every session.
	Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error)

	Close() error
}
