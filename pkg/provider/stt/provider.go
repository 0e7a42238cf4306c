// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (Wit.ai, Deepgram, OpenAI or a
// local Whisper model) and exposes a uniform streaming interface. Once opened,
// a session accepts raw PCM audio frames and emits two streams of transcripts:
// low-latency partials for status display and authoritative finals that are
// interpreted as commands.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/speakeasy/pkg/types"
)

// ErrNotSupported is returned by optional session operations a provider does
// not implement.
var ErrNotSupported = errors.New("stt: operation not supported")

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Command recognition uses
	// 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// providers).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// Keywords is a list of vocabulary hints, typically the command phrases.
	Keywords []types.KeywordBoost
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM audio. Calling
	// SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. The channel is closed when the
	// session ends.
	Partials() <-chan types.Transcript

	// Finals emits authoritative transcripts. The channel is closed when the
	// session ends.
	Finals() <-chan types.Transcript

	// SetKeywords replaces the keyword list without restarting the session.
	// Providers that cannot do this return ErrNotSupported.
	SetKeywords(keywords []types.KeywordBoost) error

	// Close terminates the session and releases its resources. After Close
	// returns, Partials and Finals are closed. Calling Close more than once
	// is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new transcription session. The caller owns the
	// returned SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
