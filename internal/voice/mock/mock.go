// Package mock provides a scriptable [voice.Service] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speakeasy/internal/voice"
)

var _ voice.Service = (*Service)(nil)

// Service records Activate/Deactivate calls and lets tests inject events.
type Service struct {
	mu     sync.Mutex
	active bool
	events chan voice.Event

	// ActivateErr is returned by the next Activate calls when non-nil.
	ActivateErr error

	ActivateCalls   int
	DeactivateCalls int

	// ActivateContexts holds the context of every Activate call in order.
	ActivateContexts []context.Context
}

// New returns a Service with a buffered event channel.
func New() *Service {
	return &Service{events: make(chan voice.Event, 64)}
}

// Activate implements [voice.Service].
func (s *Service) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActivateCalls++
	s.ActivateContexts = append(s.ActivateContexts, ctx)
	if s.ActivateErr != nil {
		return s.ActivateErr
	}
	s.active = true
	return nil
}

// Deactivate implements [voice.Service].
func (s *Service) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeactivateCalls++
	s.active = false
	return nil
}

// Active implements [voice.Service].
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActive overrides the reported activity, e.g. to simulate a service that
// is busy on its own.
func (s *Service) SetActive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = v
}

// Events implements [voice.Service].
func (s *Service) Events() <-chan voice.Event { return s.events }

// Emit queues an event.
func (s *Service) Emit(e voice.Event) { s.events <- e }

// Calls returns the activate and deactivate counters.
func (s *Service) Calls() (activate, deactivate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ActivateCalls, s.DeactivateCalls
}

// LastActivateContext returns the context of the most recent Activate call,
// or nil when there was none.
func (s *Service) LastActivateContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ActivateContexts) == 0 {
		return nil
	}
	return s.ActivateContexts[len(s.ActivateContexts)-1]
}
