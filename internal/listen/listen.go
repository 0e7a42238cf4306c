// Package listen owns the listen/stop/restart cycle around the speech
// recognizer.
//
// The [Controller] decides when the recognizer should be listening: it
// restarts shortly after every accepted command, retries a few times when
// nothing was understood, and recovers from service errors with a longer
// delay. Restarts only happen while a session is active, and that check is
// made when the timer fires, not when it is scheduled.
//
// Recognizer activations, including the ones started by timers, run under
// the controller's lifetime context (see [WithLifetime]). A context passed to
// a method is only used while that method runs, so a finished request or
// keypress cannot cancel a later listen cycle.
//
// A Controller is not safe for concurrent use; it runs on the event loop.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/present"
	"github.com/MrWong99/speakeasy/internal/sched"
	"github.com/MrWong99/speakeasy/internal/session"
	"github.com/MrWong99/speakeasy/internal/voice"
)

var (
	// ErrConfigurationMissing means the recognizer cannot run because a
	// required credential is absent. Listening stays off until the user
	// falls back to manual controls.
	ErrConfigurationMissing = errors.New("listen: speech service not configured")

	// ErrService wraps failures reported by the recognizer.
	ErrService = errors.New("listen: speech service error")

	// ErrAborted means the recognizer cancelled a request on its own.
	ErrAborted = errors.New("listen: speech service aborted")
)

// Timer names used with the scheduler.
const (
	TimerRestart = "listen.restart"
	TimerIdle    = "listen.idle"
)

// Defaults.
const (
	DefaultMaxRetries         = 3
	DefaultAcceptRestartDelay = 500 * time.Millisecond
	DefaultErrorRestartDelay  = 1500 * time.Millisecond
	DefaultAbortRestartDelay  = 2 * time.Second
	DefaultIdleReactivate     = 5 * time.Second
)

// Messages holds the user-facing texts of the controller.
type Messages struct {
	Retry        string
	StillFailing string
	Suggestions  map[session.State]string
	Unavailable  string
	Listening    string
	Processing   string
	Ready        string
}

// DefaultMessages returns the built-in English texts.
func DefaultMessages() Messages {
	return Messages{
		Retry:        "I'm not sure I understood. Could you repeat that?",
		StillFailing: "I'm still having trouble understanding. Let's try a different approach.",
		Suggestions: map[session.State]string{
			session.Idle:     `Try saying: "Start therapy" or "Begin session"`,
			session.Active:   `Try saying: "Next step" or "Continue"`,
			session.Complete: "This session is complete. Use the restart control to begin again.",
		},
		Unavailable: "Voice recognition unavailable",
		Listening:   "Listening...",
		Processing:  "Processing...",
		Ready:       "Voice recognition ready",
	}
}

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithMaxRetries sets how many consecutive misunderstandings trigger the
// suggestion message.
func WithMaxRetries(n int) Option {
	return func(c *Controller) { c.maxRetries = n }
}

// WithAcceptRestartDelay sets the pause between an accepted command and the
// next listen cycle.
func WithAcceptRestartDelay(d time.Duration) Option {
	return func(c *Controller) { c.acceptDelay = d }
}

// WithErrorRestartDelay sets the restart delay after a service error.
func WithErrorRestartDelay(d time.Duration) Option {
	return func(c *Controller) { c.errorDelay = d }
}

// WithAbortRestartDelay sets the restart delay after a service abort.
func WithAbortRestartDelay(d time.Duration) Option {
	return func(c *Controller) { c.abortDelay = d }
}

// WithIdleReactivate sets how long listening may stay off during an active
// session before it is switched back on. Zero disables it.
func WithIdleReactivate(d time.Duration) Option {
	return func(c *Controller) { c.idleDelay = d }
}

// WithQuickRetry restarts listening immediately after a misunderstanding
// below the retry limit.
func WithQuickRetry(v bool) Option {
	return func(c *Controller) { c.quickRetry = v }
}

// WithConfigured reports whether the recognizer's credentials are present.
// Defaults to true.
func WithConfigured(v bool) Option {
	return func(c *Controller) { c.configured = v }
}

// WithMessages overrides [DefaultMessages].
func WithMessages(m Messages) Option {
	return func(c *Controller) { c.msg = m }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLifetime sets the context that bounds every recognizer activation.
// Cancelling it ends the current listen cycle. Defaults to
// context.Background().
func WithLifetime(ctx context.Context) Option {
	return func(c *Controller) { c.life = ctx }
}

// Controller drives the recognizer.
type Controller struct {
	svc       voice.Service
	sched     sched.Scheduler
	presenter present.Presenter
	state     func() session.State
	metrics   *observe.Metrics
	life      context.Context

	maxRetries  int
	acceptDelay time.Duration
	errorDelay  time.Duration
	abortDelay  time.Duration
	idleDelay   time.Duration
	quickRetry  bool
	configured  bool
	msg         Messages

	listening bool
	retries   int
}

// New returns a Controller. state reports the current session state and is
// consulted whenever a delayed restart fires.
func New(svc voice.Service, s sched.Scheduler, p present.Presenter, state func() session.State, opts ...Option) *Controller {
	c := &Controller{
		svc:         svc,
		sched:       s,
		presenter:   p,
		state:       state,
		metrics:     observe.DefaultMetrics(),
		life:        context.Background(),
		maxRetries:  DefaultMaxRetries,
		acceptDelay: DefaultAcceptRestartDelay,
		errorDelay:  DefaultErrorRestartDelay,
		abortDelay:  DefaultAbortRestartDelay,
		idleDelay:   DefaultIdleReactivate,
		configured:  true,
		msg:         DefaultMessages(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Listening reports whether a listen cycle is in progress.
func (c *Controller) Listening() bool { return c.listening }

// Retries returns the consecutive misunderstanding count.
func (c *Controller) Retries() int { return c.retries }

// Configured reports whether the recognizer can be used at all.
func (c *Controller) Configured() bool { return c.configured }

// StartListening activates the recognizer unless it is already listening.
// The activation is bound to the controller's lifetime, not to ctx.
func (c *Controller) StartListening(ctx context.Context) error {
	if c.listening || c.svc.Active() {
		return nil
	}
	if !c.configured {
		slog.Error("listen: cannot start, speech service credentials are missing")
		c.presenter.UpdateStatus(false, c.msg.Unavailable)
		return ErrConfigurationMissing
	}
	c.sched.Cancel(TimerIdle)
	c.listening = true
	if err := c.svc.Activate(c.life); err != nil {
		c.listening = false
		slog.Warn("listen: activation failed", "error", err)
		c.ServiceError(ctx, "activate_failed", err.Error())
		return fmt.Errorf("%w: %w", ErrService, err)
	}
	c.presenter.UpdateStatus(true, c.msg.Listening)
	return nil
}

// StopListening deactivates the recognizer and cancels any pending restart.
// Safe to call at any time.
func (c *Controller) StopListening() {
	c.sched.Cancel(TimerRestart)
	c.sched.Cancel(TimerIdle)
	if !c.listening && !c.svc.Active() {
		return
	}
	c.listening = false
	if err := c.svc.Deactivate(); err != nil {
		slog.Warn("listen: deactivation failed", "error", err)
	}
}

// CommandAccepted resets the retry counter and schedules the next listen
// cycle.
func (c *Controller) CommandAccepted(ctx context.Context) {
	c.retries = 0
	c.StopListening()
	observe.Logger(ctx).Debug("listen: command accepted", "restart_in", c.acceptDelay)
	c.scheduleRestart(c.acceptDelay, "command")
}

// NotUnderstood handles an empty or unrecognized transcript.
func (c *Controller) NotUnderstood(ctx context.Context, cause error) {
	c.retries++
	slog.Info("listen: transcript not understood", "retries", c.retries, "max", c.maxRetries, "cause", cause)
	if c.retries < c.maxRetries {
		c.presenter.PlayFeedback(present.Error, c.msg.Retry)
		if c.quickRetry {
			c.listening = false
			if err := c.StartListening(ctx); err != nil {
				slog.Debug("listen: quick retry failed", "error", err)
			}
		}
		return
	}
	state := c.state()
	c.metrics.RetriesExhausted.Add(ctx, 1)
	c.presenter.PlayFeedback(present.Error, c.msg.StillFailing)
	if s, ok := c.msg.Suggestions[state]; ok {
		c.presenter.PlayFeedback(present.Suggestion, s)
	}
	c.retries = 0
}

// ServiceError handles a failure reported by the recognizer.
func (c *Controller) ServiceError(ctx context.Context, code, message string) {
	c.listening = false
	c.metrics.RecordServiceError(ctx, code)
	slog.Warn("listen: speech service error", "code", code, "message", message)
	c.presenter.UpdateStatus(false, "Error: "+message)
	c.presenter.PlayFeedback(present.Error, message)
	c.scheduleRestart(c.errorDelay, "error")
}

// ServiceAborted handles a request the recognizer cancelled on its own.
func (c *Controller) ServiceAborted(ctx context.Context) {
	c.listening = false
	observe.Logger(ctx).Info("listen: speech service aborted")
	c.presenter.UpdateStatus(false, c.msg.Ready)
	c.scheduleRestart(c.abortDelay, "aborted")
}

// Started records that the recognizer began listening.
func (c *Controller) Started() {
	c.listening = true
	c.sched.Cancel(TimerIdle)
	c.presenter.UpdateStatus(true, c.msg.Listening)
}

// Stopped records that the recognizer stopped listening on its own and arms
// the idle re-activation timer.
func (c *Controller) Stopped(ctx context.Context) {
	c.listening = false
	c.presenter.UpdateStatus(false, c.msg.Processing)
	if c.idleDelay <= 0 || c.state() != session.Active {
		return
	}
	observe.Logger(ctx).Debug("listen: idle re-activation armed", "after", c.idleDelay)
	c.sched.After(TimerIdle, c.idleDelay, func() {
		if c.state() != session.Active || c.listening || c.sched.Pending(TimerRestart) {
			return
		}
		c.metrics.RecordRestart(c.life, "idle")
		if err := c.StartListening(c.life); err != nil {
			slog.Debug("listen: idle re-activation failed", "error", err)
		}
	})
}

// scheduleRestart arms the restart timer. Only an Active session restarts;
// the state is checked again when the timer fires.
func (c *Controller) scheduleRestart(d time.Duration, reason string) {
	if c.state() != session.Active {
		return
	}
	c.sched.After(TimerRestart, d, func() {
		if c.state() != session.Active {
			slog.Debug("listen: restart skipped, session no longer active", "reason", reason)
			return
		}
		c.metrics.RecordRestart(c.life, reason)
		if err := c.StartListening(c.life); err != nil {
			slog.Debug("listen: restart failed", "reason", reason, "error", err)
		}
	})
}
