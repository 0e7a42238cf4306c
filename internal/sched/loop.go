// Package sched serializes all session events onto one goroutine and provides
// named, cancelable timers whose callbacks run on that goroutine.
//
// Components that hold session state (the state machine, the listening
// controller, the dispatcher) are not safe for concurrent use. They are only
// ever called from inside [Loop.Run], either through [Loop.Post] or from a
// [Timers] callback, so they need no locking.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrStopped is returned when posting to a loop that is no longer running.
var ErrStopped = errors.New("sched: loop stopped")

const defaultQueueSize = 256

// Loop executes posted functions one at a time in FIFO order.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

// NewLoop returns a Loop with a task queue of the given size. A size <= 0
// uses the default of 256.
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Loop{
		tasks: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled. A panicking task is logged and
// does not stop the loop. Run must be called exactly once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sched: task panicked", "panic", r)
		}
	}()
	fn()
}

// Post queues fn. It blocks while the queue is full and returns false once
// the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do posts fn and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler runs fn on the event loop after d. Scheduling a name that is
// already pending supersedes the earlier timer, which then never fires.
type Scheduler interface {
	After(name string, d time.Duration, fn func())
	Cancel(name string)
	Pending(name string) bool
}
