package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or
// was skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the breaker created for each group entry. Its
// Name is overwritten with the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// EntryHealth is the breaker state of one group entry.
type EntryHealth struct {
	Name  string `json:"name"`
	State State  `json:"state"`
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup orders values of one provider type. [Run] tries them in
// registration order and skips entries whose breaker is open.
//
// Entries must all be added before the group is used concurrently.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Health returns every entry's breaker state in order.
func (fg *FallbackGroup[T]) Health() []EntryHealth {
	out := make([]EntryHealth, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = EntryHealth{Name: e.name, State: e.breaker.State()}
	}
	return out
}

// Available reports whether at least one entry would accept a call.
func (fg *FallbackGroup[T]) Available() bool {
	for _, e := range fg.entries {
		if e.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Run calls fn with each entry of fg until one succeeds and returns its
// result. When all fail the error wraps [ErrAllFailed] and the last cause.
func Run[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.entries {
		e := &fg.entries[i]
		var res R
		err := e.breaker.Execute(func() error {
			var err error
			res, err = fn(e.value)
			return err
		})
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping provider with open circuit", "provider", e.name)
			continue
		}
		if i < len(fg.entries)-1 {
			slog.Warn("resilience: provider failed, trying next", "provider", e.name, "err", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
