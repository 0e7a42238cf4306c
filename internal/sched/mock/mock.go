// Package mock provides a virtual-clock [sched.Scheduler] for tests.
//
// Nothing fires on its own: tests call [Scheduler.Advance] to move the clock
// or [Scheduler.Fire] to run a named timer immediately. Callbacks run on the
// calling goroutine, which stands in for the event loop.
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/internal/sched"
)

var _ sched.Scheduler = (*Scheduler)(nil)

// Call records a single After invocation.
type Call struct {
	Name  string
	Delay time.Duration
}

// Scheduler is a deterministic scheduler driven by the test.
type Scheduler struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending map[string]*timer

	// AfterCalls lists every After call in order.
	AfterCalls []Call

	// CancelCalls lists every name passed to Cancel.
	CancelCalls []string
}

type timer struct {
	due time.Duration
	seq int
	fn  func()
}

// New returns an empty Scheduler at virtual time zero.
func New() *Scheduler {
	return &Scheduler{pending: make(map[string]*timer)}
}

// After implements [sched.Scheduler].
func (s *Scheduler) After(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AfterCalls = append(s.AfterCalls, Call{Name: name, Delay: d})
	s.seq++
	s.pending[name] = &timer{due: s.now + d, seq: s.seq, fn: fn}
}

// Cancel implements [sched.Scheduler].
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CancelCalls = append(s.CancelCalls, name)
	delete(s.pending, name)
}

// Pending implements [sched.Scheduler].
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[name]
	return ok
}

// Delay returns the delay of the pending timer name.
func (s *Scheduler) Delay(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[name]
	if !ok {
		return 0, false
	}
	return t.due - s.now, true
}

// Fire runs the pending timer name now. It reports whether one was pending.
func (s *Scheduler) Fire(name string) bool {
	s.mu.Lock()
	t, ok := s.pending[name]
	if ok {
		delete(s.pending, name)
	}
	s.mu.Unlock()
	if ok {
		t.fn()
	}
	return ok
}

// Advance moves the virtual clock forward by d, firing due timers in order.
// Timers scheduled by callbacks fire too if they fall inside the window.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()
	for {
		s.mu.Lock()
		var (
			name string
			next *timer
		)
		for n, t := range s.pending {
			if t.due > target {
				continue
			}
			if next == nil || t.due < next.due || (t.due == next.due && t.seq < next.seq) {
				name, next = n, t
			}
		}
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		delete(s.pending, name)
		s.now = next.due
		s.mu.Unlock()
		next.fn()
	}
}
