package command

import (
	"errors"
	"fmt"

	"github.com/MrWong99/speakeasy/internal/lexicon"
	"github.com/MrWong99/speakeasy/internal/session"
	"github.com/MrWong99/speakeasy/internal/transcript"
	"github.com/MrWong99/speakeasy/pkg/types"
)

// ErrUnrecognized is returned when a non-empty transcript matches no command.
var ErrUnrecognized = errors.New("command: unrecognized transcript")

// DefaultIntentThreshold is the minimum confidence, exclusive, for a
// service-provided intent to count as a command.
const DefaultIntentThreshold = 0.7

// DefaultIntents maps the intent names a speech service may return to
// commands.
func DefaultIntents() map[string]lexicon.Command {
	return map[string]lexicon.Command{
		"start_session": lexicon.Start,
		"next_step":     lexicon.Next,
		"repeat_step":   lexicon.Repeat,
		"end_session":   lexicon.End,
	}
}

// Source records what produced an [Interpretation].
type Source string

const (
	SourceTranscript Source = "transcript"
	SourceIntent     Source = "intent"
)

// Interpretation is the outcome of [Interpreter.Interpret].
type Interpretation struct {
	Command     lexicon.Command
	Source      Source
	Raw         string
	Text        string
	Corrections []transcript.Correction

	// Intent is set when Source is SourceIntent.
	Intent types.Intent
}

// InterpreterOption is a functional option for configuring an [Interpreter].
type InterpreterOption func(*Interpreter)

// WithNormalizerOptions passes options through to the transcript normalizer.
func WithNormalizerOptions(opts ...transcript.Option) InterpreterOption {
	return func(i *Interpreter) { i.normOpts = append(i.normOpts, opts...) }
}

// WithIntents replaces [DefaultIntents].
func WithIntents(m map[string]lexicon.Command) InterpreterOption {
	return func(i *Interpreter) { i.intents = m }
}

// WithIntentThreshold overrides [DefaultIntentThreshold].
func WithIntentThreshold(threshold float64) InterpreterOption {
	return func(i *Interpreter) { i.intentThreshold = threshold }
}

// Interpreter is read-only after construction and safe for concurrent use.
type Interpreter struct {
	normalizer      *transcript.Normalizer
	matcher         *Matcher
	intents         map[string]lexicon.Command
	intentThreshold float64
	normOpts        []transcript.Option
}

// NewInterpreter builds the normalizer and matcher over table.
func NewInterpreter(table lexicon.Table, opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{
		intents:         DefaultIntents(),
		intentThreshold: DefaultIntentThreshold,
	}
	for _, o := range opts {
		o(i)
	}
	i.normalizer = transcript.New(table, i.normOpts...)
	i.matcher = NewMatcher(table)
	return i
}

// Interpret normalizes raw and matches it against state. When the transcript
// is empty or unrecognized, a confident intent from intents is used instead.
//
// Errors wrap [transcript.ErrEmptyTranscript] or [ErrUnrecognized]; the
// returned Interpretation still carries whatever normalization produced.
func (i *Interpreter) Interpret(raw string, intents []types.Intent, state session.State) (Interpretation, error) {
	out := Interpretation{Raw: raw, Source: SourceTranscript}

	res, err := i.normalizer.Normalize(raw)
	if err != nil {
		if i.fromIntent(intents, &out) {
			return out, nil
		}
		return out, err
	}
	out.Text = res.Text
	out.Corrections = res.Corrections

	out.Command = i.matcher.Match(res.Text, state)
	if out.Command != lexicon.Unrecognized {
		return out, nil
	}
	if i.fromIntent(intents, &out) {
		return out, nil
	}
	return out, fmt.Errorf("command: %q: %w", res.Text, ErrUnrecognized)
}

func (i *Interpreter) fromIntent(intents []types.Intent, out *Interpretation) bool {
	top, ok := types.TopIntent(intents)
	if !ok || top.Confidence <= i.intentThreshold {
		return false
	}
	cmd, ok := i.intents[top.Name]
	if !ok {
		return false
	}
	out.Command = cmd
	out.Source = SourceIntent
	out.Intent = top
	return true
}
