package sched

import (
	"sync"
	"time"
)

// Compile-time assertion that Timers satisfies Scheduler.
var _ Scheduler = (*Timers)(nil)

// Timers is the wall-clock [Scheduler]. Callbacks are posted onto a [Loop];
// each carries a generation number that is checked on the loop, so a timer
// that was cancelled or superseded after its clock fired still does nothing.
type Timers struct {
	loop *Loop

	mu      sync.Mutex
	gen     uint64
	pending map[string]*pendingTimer
}

type pendingTimer struct {
	timer *time.Timer
	gen   uint64
}

// NewTimers returns a Timers that delivers callbacks on loop.
func NewTimers(loop *Loop) *Timers {
	return &Timers{
		loop:    loop,
		pending: make(map[string]*pendingTimer),
	}
}

// After implements [Scheduler].
func (t *Timers) After(name string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.pending[name]; ok {
		p.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.pending[name] = &pendingTimer{
		gen: gen,
		timer: time.AfterFunc(d, func() {
			t.loop.Post(func() {
				if t.claim(name, gen) {
					fn()
				}
			})
		}),
	}
}

// Cancel implements [Scheduler].
func (t *Timers) Cancel(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[name]; ok {
		p.timer.Stop()
		delete(t.pending, name)
	}
}

// Pending implements [Scheduler].
func (t *Timers) Pending(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[name]
	return ok
}

// Stop cancels every pending timer.
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, p := range t.pending {
		p.timer.Stop()
		delete(t.pending, name)
	}
}

// claim removes the pending entry for name if it still belongs to gen.
func (t *Timers) claim(name string, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[name]
	if !ok || p.gen != gen {
		return false
	}
	delete(t.pending, name)
	return true
}
