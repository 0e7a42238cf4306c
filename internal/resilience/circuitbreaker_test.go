package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errRecognizer = errors.New("recognizer unavailable")

// fakeClock is advanced by hand so breaker timeouts need no sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type transition struct{ from, to State }

func newTestBreaker(clock *fakeClock, cfg CircuitBreakerConfig) (*CircuitBreaker, *[]transition) {
	var (
		mu  sync.Mutex
		got []transition
	)
	cfg.Name = "wit"
	cfg.Now = clock.Now
	cfg.OnStateChange = func(name string, from, to State) {
		mu.Lock()
		got = append(got, transition{from, to})
		mu.Unlock()
	}
	return NewCircuitBreaker(cfg), &got
}

func fail() error    { return errRecognizer }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cb, transitions := newTestBreaker(clock, CircuitBreakerConfig{MaxFailures: 3})

	for i := range 2 {
		if err := cb.Execute(fail); !errors.Is(err, errRecognizer) {
			t.Fatalf("call %d: err = %v, want the recognizer error", i, err)
		}
		if cb.State() != StateClosed {
			t.Fatalf("call %d: state = %s, want closed", i, cb.State())
		}
	}
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker: err = %v, called = %v", err, called)
	}
	if len(*transitions) != 1 || (*transitions)[0] != (transition{StateClosed, StateOpen}) {
		t.Errorf("transitions = %v", *transitions)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb, _ := newTestBreaker(newFakeClock(), CircuitBreakerConfig{MaxFailures: 2})
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		trial func() error
		want  State
	}{
		{"trial succeeds", succeed, StateClosed},
		{"trial fails", fail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock()
			cb, transitions := newTestBreaker(clock, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Second})
			_ = cb.Execute(fail)

			clock.Advance(9 * time.Second)
			if cb.State() != StateOpen {
				t.Fatalf("before timeout: state = %s", cb.State())
			}
			clock.Advance(time.Second)
			if cb.State() != StateHalfOpen {
				t.Fatalf("after timeout: state = %s", cb.State())
			}

			_ = cb.Execute(tt.trial)
			if cb.State() != tt.want {
				t.Errorf("state = %s, want %s", cb.State(), tt.want)
			}
			want := []transition{{StateClosed, StateOpen}, {StateOpen, StateHalfOpen}, {StateHalfOpen, tt.want}}
			if len(*transitions) != len(want) {
				t.Fatalf("transitions = %v, want %v", *transitions, want)
			}
			for i := range want {
				if (*transitions)[i] != want[i] {
					t.Errorf("transition %d = %v, want %v", i, (*transitions)[i], want[i])
				}
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenLimitsTrials(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cb, _ := newTestBreaker(clock, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second})
	_ = cb.Execute(fail)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second trial: err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb, transitions := newTestBreaker(newFakeClock(), CircuitBreakerConfig{MaxFailures: 1})
	_ = cb.Execute(fail)
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %s, want closed", cb.State())
	}
	if err := cb.Execute(succeed); err != nil {
		t.Errorf("after reset: %v", err)
	}
	if len(*transitions) != 2 {
		t.Errorf("transitions = %v", *transitions)
	}
}

func TestState_MarshalText(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(9):      "unknown",
	} {
		b, err := s.MarshalText()
		if err != nil || string(b) != want {
			t.Errorf("MarshalText(%d) = %q, %v; want %q", s, b, err, want)
		}
	}
}
