// Package mock provides a scriptable [audio.Source] for unit tests.
//
// Frames queued with [Source.Queue] are delivered on the next Open; the
// channel then stays open until the context is cancelled, like a live
// microphone.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

// Source is a mock implementation of [audio.Source]. Safe for concurrent use.
type Source struct {
	mu     sync.Mutex
	queued []audio.AudioFrame

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// CloseAfterQueue closes the frame channel once queued frames are sent,
	// simulating a device failure.
	CloseAfterQueue bool

	OpenCalls  int
	CloseCalls int
}

// Queue adds frames for the next Open.
func (s *Source) Queue(frames ...audio.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, frames...)
}

// Open implements [audio.Source].
func (s *Source) Open(ctx context.Context) (<-chan audio.AudioFrame, error) {
	s.mu.Lock()
	s.OpenCalls++
	if s.OpenErr != nil {
		err := s.OpenErr
		s.mu.Unlock()
		return nil, err
	}
	frames := s.queued
	s.queued = nil
	closeEarly := s.CloseAfterQueue
	s.mu.Unlock()

	out := make(chan audio.AudioFrame)
	go func() {
		defer close(out)
		for _, f := range frames {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
		if closeEarly {
			return
		}
		<-ctx.Done()
	}()
	return out, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

// Calls returns the Open and Close counters.
func (s *Source) Calls() (open, close int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.OpenCalls, s.CloseCalls
}
