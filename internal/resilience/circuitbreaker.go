// Package resilience keeps speech recognition available when a recognizer
// misbehaves.
//
// [CircuitBreaker] stops calling a recognizer after repeated failures and
// tries it again after a cool-down. [FallbackGroup] orders several
// recognizers, each behind its own breaker, and [STTFallback] exposes such a
// group as a single [stt.Provider].
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a few trial calls through. One failure re-opens the
	// breaker; HalfOpenMax successes close it.
	StateHalfOpen
)

// String returns the lower-case state name used in logs and /status.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText makes states render as names in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields use defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of trial calls allowed while half-open.
	// Default: 1.
	HalfOpenMax int

	// OnStateChange is called after every transition, with the breaker's
	// lock released.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// CircuitBreaker implements the closed / open / half-open pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	trials    int
	successes int
}

// NewCircuitBreaker returns a closed breaker for cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute runs fn unless the breaker rejects the call with [ErrCircuitOpen].
// fn's error counts as a failure and is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(trial, err == nil)
	return err
}

// admit decides whether a call may run and reports whether it is a
// half-open trial.
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	var changed func()
	defer func() {
		cb.mu.Unlock()
		if changed != nil {
			changed()
		}
	}()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		changed = cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.trials >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.trials++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) settle(trial, ok bool) {
	cb.mu.Lock()
	var changed func()
	switch {
	case trial && !ok:
		changed = cb.trip()
	case trial:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			changed = cb.transition(StateClosed)
		}
	case ok:
		cb.failures = 0
	default:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			changed = cb.trip()
		}
	}
	cb.mu.Unlock()
	if changed != nil {
		changed()
	}
}

// trip opens the breaker. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() func() {
	cb.openedAt = cb.cfg.Now()
	return cb.transition(StateOpen)
}

// transition switches state, resets the per-state counters and returns the
// callback to run once the lock is released. Must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) func() {
	from := cb.state
	cb.state = to
	cb.trials, cb.successes = 0, 0
	if to == StateClosed {
		cb.failures = 0
	}
	if from == to || cb.cfg.OnStateChange == nil {
		return nil
	}
	name, hook := cb.cfg.Name, cb.cfg.OnStateChange
	return func() { hook(name, from, to) }
}

// State reports the current state. An open breaker whose timeout elapsed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.transition(StateClosed)
	cb.mu.Unlock()
	if changed != nil {
		changed()
	}
}
