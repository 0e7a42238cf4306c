// Package steps provides the built-in session steps and their behaviors.
package steps

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/internal/sched"
	"github.com/MrWong99/speakeasy/internal/session"
)

// Behavior names accepted by [Build].
const (
	BehaviorNone      = "none"
	BehaviorCues      = "cues"
	BehaviorBreathing = "breathing"
)

// DefaultCueInterval is used when a cue step has no interval configured.
const DefaultCueInterval = 5 * time.Second

// ErrUnknownBehavior is returned by [Build] for an unrecognised behavior name.
var ErrUnknownBehavior = errors.New("steps: unknown behavior")

// CueSink receives the cue lines of a running behavior. An empty string
// clears the cue.
type CueSink interface {
	ShowCue(text string)
}

// Line is one cue and how long it stays visible.
type Line struct {
	Text     string
	Duration time.Duration
}

var (
	_ session.Behavior = (*Cue)(nil)
	_ session.Hider    = (*Cue)(nil)
)

// Cue cycles through its lines until stopped.
type Cue struct {
	timer string
	lines []Line
	sink  CueSink
	sched sched.Scheduler

	mu      sync.Mutex
	running bool
	pos     int
}

// NewCue returns a Cue behavior. timer must be unique among the behaviors
// sharing s.
func NewCue(timer string, lines []Line, sink CueSink, s sched.Scheduler) *Cue {
	return &Cue{timer: timer, lines: lines, sink: sink, sched: s}
}

// Breathing returns a Cue behavior for an inhale/hold/exhale cycle, each
// phase lasting the given number of seconds.
func Breathing(timer string, inhale, hold, exhale int, sink CueSink, s sched.Scheduler) *Cue {
	lines := []Line{
		{Text: fmt.Sprintf("Breathe in… %d", inhale), Duration: time.Duration(inhale) * time.Second},
	}
	if hold > 0 {
		lines = append(lines, Line{Text: fmt.Sprintf("Hold… %d", hold), Duration: time.Duration(hold) * time.Second})
	}
	lines = append(lines, Line{Text: fmt.Sprintf("Breathe out… %d", exhale), Duration: time.Duration(exhale) * time.Second})
	return NewCue(timer, lines, sink, s)
}

// ExecuteStep shows the first line and starts the rotation.
func (c *Cue) ExecuteStep() error {
	if len(c.lines) == 0 {
		return fmt.Errorf("steps: cue %q has no lines", c.timer)
	}
	c.mu.Lock()
	c.running = true
	c.pos = 0
	c.mu.Unlock()
	c.show()
	return nil
}

func (c *Cue) show() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	line := c.lines[c.pos]
	c.pos = (c.pos + 1) % len(c.lines)
	c.mu.Unlock()

	c.sink.ShowCue(line.Text)
	d := line.Duration
	if d <= 0 {
		d = DefaultCueInterval
	}
	c.sched.After(c.timer, d, c.show)
}

// StopStep cancels the rotation.
func (c *Cue) StopStep() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.sched.Cancel(c.timer)
	return nil
}

// ForceHide clears the cue.
func (c *Cue) ForceHide() {
	c.sink.ShowCue("")
}

// Running reports whether the rotation is active.
func (c *Cue) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Build maps step configuration to session steps.
func Build(cfg []config.StepConfig, sink CueSink, s sched.Scheduler) ([]session.Step, error) {
	out := make([]session.Step, 0, len(cfg))
	for i, sc := range cfg {
		step := session.Step{Name: sc.Name, Text: sc.Text, Details: sc.Details}
		timer := fmt.Sprintf("step.%d.cue", i)
		switch sc.Behavior {
		case "", BehaviorNone:
		case BehaviorCues:
			interval := sc.CueInterval
			if interval <= 0 {
				interval = DefaultCueInterval
			}
			lines := make([]Line, len(sc.Cues))
			for j, text := range sc.Cues {
				lines[j] = Line{Text: text, Duration: interval}
			}
			step.Behavior = NewCue(timer, lines, sink, s)
		case BehaviorBreathing:
			b := sc.Breathing
			step.Behavior = Breathing(timer, b.Inhale, b.Hold, b.Exhale, sink, s)
		default:
			return nil, fmt.Errorf("%w: step %d (%s): %q", ErrUnknownBehavior, i, sc.Name, sc.Behavior)
		}
		out = append(out, step)
	}
	return out, nil
}

// Default returns the built-in step configuration.
func Default() []config.StepConfig {
	return []config.StepConfig{
		{
			Name:    "Introduction",
			Text:    "Welcome to your therapy session. Take a deep breath.",
			Details: "Find a comfortable position. Let your shoulders drop and notice the weight of your body.",
		},
		{
			Name:      "Deep Breathing",
			Text:      "Breathe in slowly for 4 counts, hold for 2, then out for 6.",
			Details:   "Follow the cues on screen. If your mind wanders, gently return to counting.",
			Behavior:  BehaviorBreathing,
			Breathing: config.BreathingConfig{Inhale: 4, Hold: 2, Exhale: 6},
		},
		{
			Name:     "Calm Visualization",
			Text:     "Imagine a peaceful place that makes you feel safe and relaxed.",
			Details:  "Notice the sounds around you and how the air feels on your skin.",
			Behavior: BehaviorCues,
			Cues: []string{
				"What colors surround you?",
				"What sounds can you hear?",
				"Feel the temperature of the air.",
			},
			CueInterval: 8 * time.Second,
		},
		{
			Name:    "Completion",
			Text:    "Gently bring your awareness back to the room.",
			Details: "Wiggle your fingers and toes. Open your eyes when you are ready.",
		},
	}
}
