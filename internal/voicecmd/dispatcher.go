// Package voicecmd connects the recognizer to the session.
//
// The [Dispatcher] turns recognizer events into session commands: transcripts
// are interpreted, applied to the session machine, and the listening
// controller is told whether the utterance was understood. Manual controls
// from the terminal UI or a bridge client go through the same path.
//
// Every Dispatcher method must run on the event loop. [Dispatcher.Run] and
// [Dispatcher.Simulate] take care of that when a loop is configured.
package voicecmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/speakeasy/internal/command"
	"github.com/MrWong99/speakeasy/internal/journal"
	"github.com/MrWong99/speakeasy/internal/lexicon"
	"github.com/MrWong99/speakeasy/internal/listen"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/present"
	"github.com/MrWong99/speakeasy/internal/sched"
	"github.com/MrWong99/speakeasy/internal/session"
	"github.com/MrWong99/speakeasy/internal/transcript"
	"github.com/MrWong99/speakeasy/internal/voice"
)

// Control is a manual action.
type Control string

const (
	ControlStart   Control = "start"
	ControlNext    Control = "next"
	ControlRepeat  Control = "repeat"
	ControlEnd     Control = "end"
	ControlListen  Control = "listen"
	ControlRestart Control = "restart"
)

// ErrUnknownControl is returned by Simulate for an unrecognised control.
var ErrUnknownControl = errors.New("voicecmd: unknown control")

// ParseControl resolves a control name.
func ParseControl(s string) (Control, error) {
	switch c := Control(s); c {
	case ControlStart, ControlNext, ControlRepeat, ControlEnd, ControlListen, ControlRestart:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownControl, s)
}

// Journal receives entries to record.
type Journal interface {
	Record(journal.Entry)
}

// Option is a functional option for configuring a [Dispatcher].
type Option func(*Dispatcher)

// WithLoop runs Simulate and event handling on loop.
func WithLoop(l *sched.Loop) Option {
	return func(d *Dispatcher) { d.loop = l }
}

// WithJournal records transcripts, controls and recognizer failures.
func WithJournal(j Journal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher routes recognizer events and manual controls to the session.
type Dispatcher struct {
	svc       voice.Service
	machine   *session.Machine
	ctrl      *listen.Controller
	presenter present.Presenter
	interp    atomic.Pointer[command.Interpreter]

	loop    *sched.Loop
	journal Journal
	metrics *observe.Metrics
}

// New returns a Dispatcher.
func New(svc voice.Service, m *session.Machine, ctrl *listen.Controller, p present.Presenter, interp *command.Interpreter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		svc:       svc,
		machine:   m,
		ctrl:      ctrl,
		presenter: p,
		metrics:   observe.DefaultMetrics(),
	}
	d.interp.Store(interp)
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetInterpreter swaps the interpreter, e.g. after the vocabulary was
// reloaded. Safe to call from any goroutine.
func (d *Dispatcher) SetInterpreter(i *command.Interpreter) {
	d.interp.Store(i)
}

// Run consumes recognizer events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	events := d.svc.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			d.exec(ctx, func() { d.HandleEvent(ctx, ev) })
		}
	}
}

// exec runs fn on the loop when there is one.
func (d *Dispatcher) exec(ctx context.Context, fn func()) error {
	if d.loop == nil {
		fn()
		return nil
	}
	return d.loop.Do(ctx, fn)
}

// HandleEvent processes one recognizer event.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev voice.Event) {
	switch ev.Kind {
	case voice.EventStartListening:
		d.ctrl.Started()
	case voice.EventStoppedListening:
		d.ctrl.Stopped(ctx)
	case voice.EventPartialTranscript:
		d.presenter.UpdateStatus(true, "Heard: "+ev.Text)
	case voice.EventFullTranscript:
		d.handleTranscript(ctx, ev.Text, ev)
	case voice.EventError:
		d.record(journal.Entry{Kind: journal.KindServiceError, Detail: ev.Code + ": " + ev.Message})
		d.ctrl.ServiceError(ctx, ev.Code, ev.Message)
	case voice.EventAborted:
		d.record(journal.Entry{Kind: journal.KindServiceError, Detail: "aborted: " + ev.Code})
		d.ctrl.ServiceAborted(ctx)
	default:
		slog.Warn("voicecmd: unknown event", "kind", ev.Kind)
	}
}

// SubmitTranscript interprets text as if the recognizer had produced it.
func (d *Dispatcher) SubmitTranscript(ctx context.Context, text string) error {
	return d.exec(ctx, func() {
		d.handleTranscript(ctx, text, voice.Event{Kind: voice.EventFullTranscript, Text: text})
	})
}

// Simulate performs a manual control. Session commands behave exactly like
// the spoken command.
func (d *Dispatcher) Simulate(ctx context.Context, c Control) error {
	var result error
	err := d.exec(ctx, func() { result = d.simulate(ctx, c) })
	if err != nil {
		return err
	}
	return result
}

func (d *Dispatcher) simulate(ctx context.Context, c Control) error {
	slog.Debug("voicecmd: manual control", "control", c)
	d.record(journal.Entry{Kind: journal.KindControl, Detail: string(c)})
	switch c {
	case ControlStart:
		return d.apply(ctx, lexicon.Start, "manual")
	case ControlNext:
		return d.apply(ctx, lexicon.Next, "manual")
	case ControlRepeat:
		return d.apply(ctx, lexicon.Repeat, "manual")
	case ControlEnd:
		return d.apply(ctx, lexicon.End, "manual")
	case ControlListen:
		return d.ctrl.StartListening(ctx)
	case ControlRestart:
		d.ctrl.StopListening()
		d.machine.Reset()
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownControl, c)
}

func (d *Dispatcher) handleTranscript(ctx context.Context, text string, ev voice.Event) {
	state := d.machine.State()
	sessionID := d.machine.Snapshot().ID
	ctx = observe.WithSession(ctx, sessionID)
	ctx, span := observe.StartSpan(ctx, "voicecmd.interpret",
		trace.WithAttributes(attribute.String("session.state", state.String())))
	defer span.End()

	res, err := d.interp.Load().Interpret(text, ev.Intents, state)
	for _, c := range res.Corrections {
		d.metrics.RecordCorrection(ctx, string(c.Method))
	}
	entry := journal.Entry{
		Kind:       journal.KindTranscript,
		SessionID:  sessionID,
		State:      state.String(),
		Transcript: text,
	}

	if err != nil {
		outcome := "unrecognized"
		if errors.Is(err, transcript.ErrEmptyTranscript) {
			outcome = "empty"
		}
		span.SetStatus(codes.Error, outcome)
		d.metrics.RecordTranscript(ctx, outcome)
		observe.Logger(ctx).Info("voicecmd: transcript not understood", "text", res.Text, "outcome", outcome)
		entry.Detail = outcome
		d.record(entry)
		d.ctrl.NotUnderstood(ctx, err)
		return
	}

	d.metrics.RecordTranscript(ctx, "recognized")
	span.SetAttributes(
		attribute.String("command", res.Command.String()),
		attribute.String("source", string(res.Source)),
	)
	observe.Logger(ctx).Info("voicecmd: command recognized",
		"text", res.Text, "command", res.Command, "source", res.Source, "corrections", len(res.Corrections))
	entry.Command = res.Command.String()
	entry.Detail = string(res.Source)
	d.record(entry)

	_ = d.apply(ctx, res.Command, string(res.Source))
}

// apply runs cmd on the machine. A command that does not fit the current
// state was still heard correctly, so listening continues as after any
// accepted command.
func (d *Dispatcher) apply(ctx context.Context, cmd lexicon.Command, source string) error {
	state := d.machine.State()
	err := d.machine.Apply(cmd)
	outcome := "accepted"
	if err != nil {
		outcome = "invalid"
		slog.Info("voicecmd: command not valid now", "command", cmd, "state", state, "source", source)
	}
	d.metrics.RecordCommand(ctx, cmd.String(), state.String(), outcome)
	d.ctrl.CommandAccepted(ctx)
	return err
}

// SessionEvent implements [session.Observer] and keeps the session metrics
// current.
func (d *Dispatcher) SessionEvent(e session.Event) {
	ctx := context.Background()
	if e.From != e.To {
		d.metrics.RecordTransition(ctx, e.From.String(), e.To.String())
		switch {
		case e.To == session.Active:
			d.metrics.ActiveSessions.Add(ctx, 1)
		case e.From == session.Active:
			d.metrics.ActiveSessions.Add(ctx, -1)
		}
	}
	if e.Index >= 0 {
		d.metrics.StepIndex.Record(ctx, int64(e.Index))
	}
}

func (d *Dispatcher) record(e journal.Entry) {
	if d.journal == nil {
		return
	}
	d.journal.Record(e)
}
