// Package audio defines the audio capture boundary and PCM helpers.
//
// A [Source] produces 16-bit little-endian PCM frames, e.g. from the local
// microphone (see audio/portaudio) or from frames pushed by a remote client
// ([PushSource]). Frames are converted to the recognizer's format with
// [FormatConverter].
package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrSourceClosed is returned by Open after Close.
var ErrSourceClosed = errors.New("audio: source closed")

// Source captures audio.
type Source interface {
	// Open starts capturing and returns a channel of frames. The channel is
	// closed when ctx is done or capture fails. Only one capture may be open
	// at a time.
	Open(ctx context.Context) (<-chan AudioFrame, error)

	// Close releases the underlying device. Calling Close more than once is
	// safe.
	Close() error
}

var _ Source = (*PushSource)(nil)

// PushSource is a [Source] fed by Push, for audio that arrives over the
// network. Frames pushed while no capture is open are dropped.
type PushSource struct {
	mu     sync.Mutex
	out    chan AudioFrame
	closed bool
}

// NewPushSource returns an empty PushSource.
func NewPushSource() *PushSource {
	return &PushSource{}
}

// Open implements [Source]. A second Open replaces the previous capture.
func (s *PushSource) Open(ctx context.Context) (<-chan AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.out != nil {
		close(s.out)
	}
	out := make(chan AudioFrame, 64)
	s.out = out
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.out == out {
			close(out)
			s.out = nil
		}
	}()
	return out, nil
}

// Push delivers a frame to the open capture. It reports whether the frame was
// accepted; a full buffer drops the frame.
func (s *PushSource) Push(f AudioFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return false
	}
	select {
	case s.out <- f:
		return true
	default:
		return false
	}
}

// Close implements [Source].
func (s *PushSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	return nil
}
