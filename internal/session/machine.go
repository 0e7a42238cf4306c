package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/speakeasy/internal/lexicon"
	"github.com/MrWong99/speakeasy/internal/present"
	"github.com/MrWong99/speakeasy/internal/sched"
)

// TimerTimeout names the inactivity timer.
const TimerTimeout = "session.timeout"

// DefaultCommandTimeout is the inactivity interval of each timeout stage.
const DefaultCommandTimeout = 30 * time.Second

// Messages holds the user-facing texts the machine emits.
type Messages struct {
	Started       string
	Advanced      string
	Repeated      string
	Ended         string
	TimeoutPrompt string
	AutoAdvance   string
	AlreadyActive string
	NotActive     string
	Finished      string
}

// DefaultMessages returns the built-in English texts.
func DefaultMessages() Messages {
	return Messages{
		Started:       "Starting session",
		Advanced:      "Next step",
		Repeated:      "Repeating step",
		Ended:         "Ending session",
		TimeoutPrompt: `I haven't heard a command in a while. Say "Continue" to move forward or "End session" to stop.`,
		AutoAdvance:   "Auto-advancing to next step due to inactivity",
		AlreadyActive: "Session already in progress",
		NotActive:     "No active session",
		Finished:      "This session is complete",
	}
}

// Option is a functional option for configuring a [Machine].
type Option func(*Machine)

// WithCommandTimeout sets the length of each inactivity stage. Zero or a
// negative value disables the timer.
func WithCommandTimeout(d time.Duration) Option {
	return func(m *Machine) { m.timeout = d }
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(m *Machine) { m.observers = append(m.observers, o) }
}

// WithMessages overrides [DefaultMessages].
func WithMessages(msg Messages) Option {
	return func(m *Machine) { m.msg = msg }
}

// WithIDGenerator overrides the session ID source (uuid by default).
func WithIDGenerator(fn func() string) Option {
	return func(m *Machine) { m.newID = fn }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// Machine is the session state machine. See the package doc for the
// concurrency contract.
type Machine struct {
	steps     []Step
	presenter present.Presenter
	sched     sched.Scheduler
	timeout   time.Duration
	observers []Observer
	msg       Messages
	newID     func() string
	logger    *slog.Logger

	id    string
	state State
	index int

	// running is the index of the step whose behavior was started, or -1.
	running int

	// prompted is set once the first timeout stage has fired.
	prompted bool
}

// New returns a Machine in the Idle state. steps must not be empty.
func New(steps []Step, p present.Presenter, s sched.Scheduler, opts ...Option) (*Machine, error) {
	if len(steps) == 0 {
		return nil, errors.New("session: at least one step is required")
	}
	m := &Machine{
		steps:     steps,
		presenter: p,
		sched:     s,
		timeout:   DefaultCommandTimeout,
		msg:       DefaultMessages(),
		newID:     uuid.NewString,
		logger:    slog.Default(),
		state:     Idle,
		index:     -1,
		running:   -1,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Index returns the current step index: -1 while Idle, len(steps) once
// Complete.
func (m *Machine) Index() int { return m.index }

// Steps returns the configured steps.
func (m *Machine) Steps() []Step { return m.steps }

// Snapshot returns the current position.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{ID: m.id, State: m.state, Index: m.index, Total: len(m.steps)}
	if m.index >= 0 && m.index < len(m.steps) {
		s.Step = m.steps[m.index].Name
	}
	return s
}

// Apply executes cmd. It returns an error wrapping [ErrInvalidStateCommand]
// when cmd does not apply to the current state; the presenter has already
// been told in that case.
func (m *Machine) Apply(cmd lexicon.Command) error {
	switch {
	case cmd == lexicon.Unrecognized:
		return fmt.Errorf("session: cannot apply %s command", cmd)
	case m.state == Complete:
		return m.invalid(cmd, m.msg.Finished)
	case m.state == Idle && cmd == lexicon.Start:
		m.start()
	case m.state == Idle:
		return m.invalid(cmd, m.msg.NotActive)
	case cmd == lexicon.Start:
		return m.invalid(cmd, m.msg.AlreadyActive)
	case cmd == lexicon.Next:
		m.presenter.PlayFeedback(present.Success, m.msg.Advanced)
		m.advance(cmd)
	case cmd == lexicon.Repeat:
		m.repeat()
	case cmd == lexicon.End:
		m.presenter.PlayFeedback(present.Success, m.msg.Ended)
		m.finish(EventEnded, cmd)
	}
	return nil
}

// Reset returns the machine to Idle from any state and shows the welcome
// screen. It is the only way out of Complete.
func (m *Machine) Reset() {
	from := m.state
	m.stopRunning()
	m.sched.Cancel(TimerTimeout)
	m.state = Idle
	m.index = -1
	m.id = ""
	m.prompted = false
	m.presenter.ShowWelcome()
	m.emit(Event{Kind: EventReset, From: from, To: Idle})
}

func (m *Machine) start() {
	m.id = m.newID()
	m.state = Active
	m.logger.Info("session: started", "session_id", m.id, "steps", len(m.steps))
	m.presenter.PlayFeedback(present.Success, m.msg.Started)
	m.emit(Event{Kind: EventStarted, From: Idle, To: Active, Command: lexicon.Start})
	m.enter(0)
}

func (m *Machine) advance(cmd lexicon.Command) {
	if m.index+1 >= len(m.steps) {
		m.finish(EventCompleted, cmd)
		return
	}
	m.enter(m.index + 1)
}

func (m *Machine) repeat() {
	step := m.steps[m.index]
	m.presenter.PlayFeedback(present.Success, m.msg.Repeated)
	m.presenter.ShowStep(step.Text)
	m.presenter.UpdateProgress(m.index+1, len(m.steps))
	m.armTimeout()
	m.emit(Event{Kind: EventStepRepeated, From: Active, To: Active, Step: step.Name, Command: lexicon.Repeat})
}

// enter makes index the current step. The previous behavior is always
// stopped before the next one starts.
func (m *Machine) enter(index int) {
	m.stopRunning()
	m.index = index
	step := m.steps[index]

	m.presenter.ShowStep(step.Text)
	m.presenter.UpdateProgress(index+1, len(m.steps))
	if step.Behavior != nil {
		if err := step.Behavior.ExecuteStep(); err != nil {
			m.logger.Warn("session: step behavior failed to start",
				"session_id", m.id, "step", step.Name, "error", err)
		} else {
			m.running = index
		}
	}
	m.armTimeout()
	m.logger.Info("session: step entered", "session_id", m.id, "index", index, "step", step.Name)
	m.emit(Event{Kind: EventStepEntered, From: Active, To: Active, Step: step.Name})
}

func (m *Machine) finish(kind EventKind, cmd lexicon.Command) {
	m.stopRunning()
	m.sched.Cancel(TimerTimeout)
	m.state = Complete
	m.index = len(m.steps)
	m.prompted = false
	m.presenter.ShowComplete()
	m.presenter.UpdateProgress(len(m.steps), len(m.steps))
	m.logger.Info("session: complete", "session_id", m.id, "reason", string(kind))
	m.emit(Event{Kind: kind, From: Active, To: Complete, Command: cmd})
}

// stopRunning stops the active behavior. A failing StopStep is logged and
// otherwise ignored; Hider behaviors are hidden either way.
func (m *Machine) stopRunning() {
	if m.running < 0 {
		return
	}
	step := m.steps[m.running]
	m.running = -1
	if err := step.Behavior.StopStep(); err != nil {
		m.logger.Warn("session: step behavior failed to stop",
			"session_id", m.id, "step", step.Name, "error", err)
	}
	if h, ok := step.Behavior.(Hider); ok {
		h.ForceHide()
	}
}

func (m *Machine) armTimeout() {
	m.prompted = false
	if m.timeout <= 0 {
		return
	}
	m.sched.After(TimerTimeout, m.timeout, m.onTimeout)
}

func (m *Machine) onTimeout() {
	if m.state != Active {
		return
	}
	if !m.prompted {
		m.prompted = true
		m.presenter.PlayFeedback(present.Timeout, m.msg.TimeoutPrompt)
		m.emit(Event{Kind: EventTimeoutPrompt, From: Active, To: Active})
		m.sched.After(TimerTimeout, m.timeout, m.onTimeout)
		return
	}
	m.logger.Info("session: auto-advancing after inactivity", "session_id", m.id, "index", m.index)
	m.presenter.PlayFeedback(present.Timeout, m.msg.AutoAdvance)
	m.emit(Event{Kind: EventAutoAdvance, From: Active, To: Active, Command: lexicon.Next})
	m.advance(lexicon.Next)
}

func (m *Machine) invalid(cmd lexicon.Command, message string) error {
	m.presenter.PlayFeedback(present.Error, message)
	m.emit(Event{Kind: EventInvalidCommand, From: m.state, To: m.state, Command: cmd})
	return fmt.Errorf("session: %s while %s: %w", cmd, m.state, ErrInvalidStateCommand)
}

// emit fills the position fields and notifies observers.
func (m *Machine) emit(e Event) {
	e.SessionID = m.id
	e.Index = m.index
	e.Total = len(m.steps)
	if e.Step == "" && m.index >= 0 && m.index < len(m.steps) {
		e.Step = m.steps[m.index].Name
	}
	for _, o := range m.observers {
		o.SessionEvent(e)
	}
}
