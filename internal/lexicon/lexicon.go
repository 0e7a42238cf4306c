// Package lexicon holds the static vocabulary used to turn transcripts into
// session commands: the accepted phrases per [Command], the ordered table of
// known mis-transcriptions and the syllable fragments that trigger the
// similarity fallback in the normalizer.
//
// A [Table] is read-only after construction and safe for concurrent use.
package lexicon

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Command is the canonical action a transcript resolves to.
type Command int

const (
	// Unrecognized is the zero value; the transcript matched nothing.
	Unrecognized Command = iota
	Start
	Next
	Repeat
	End
)

// Commands lists every actionable command in a stable order.
var Commands = []Command{Start, Next, Repeat, End}

// String returns the lower-case command name.
func (c Command) String() string {
	switch c {
	case Start:
		return "start"
	case Next:
		return "next"
	case Repeat:
		return "repeat"
	case End:
		return "end"
	default:
		return "unrecognized"
	}
}

// ParseCommand resolves a command name as returned by [Command.String].
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return Start, nil
	case "next":
		return Next, nil
	case "repeat":
		return Repeat, nil
	case "end":
		return End, nil
	}
	return Unrecognized, fmt.Errorf("lexicon: unknown command %q", s)
}

// Correction maps a known mis-transcribed phrase to its intended phrase.
type Correction struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Lexicon maps each command to its accepted literal phrases.
type Lexicon map[Command][]string

// Phrases returns the phrases registered for c.
func (l Lexicon) Phrases(c Command) []string { return l[c] }

// Table bundles everything the normalizer and matcher need.
type Table struct {
	Lexicon Lexicon

	// Corrections is scanned in order; earlier entries win.
	Corrections []Correction

	// Fragments maps a candidate word to the syllable fragments that make the
	// similarity fallback consider it.
	Fragments map[string][]string

	// ActiveExact and ActiveCompound are the Next fast path while a session
	// is running.
	ActiveExact    []string
	ActiveCompound []string

	// IdleExact and IdleCompound are the Start fast path while idle.
	IdleExact    []string
	IdleCompound []string

	// Affirmations advance an active session when nothing else matched.
	Affirmations []string
}

// Validate reports every structural problem in t.
func (t Table) Validate() error {
	var errs []error
	for _, c := range Commands {
		if len(t.Lexicon[c]) == 0 {
			errs = append(errs, fmt.Errorf("lexicon: command %s has no phrases", c))
		}
		for i, p := range t.Lexicon[c] {
			if strings.TrimSpace(p) == "" {
				errs = append(errs, fmt.Errorf("lexicon: command %s phrase[%d] is empty", c, i))
			}
		}
	}
	for i, corr := range t.Corrections {
		from := strings.TrimSpace(corr.From)
		if from == "" {
			errs = append(errs, fmt.Errorf("lexicon: corrections[%d]: from is empty", i))
			continue
		}
		if ContainsWord(corr.To, from) {
			errs = append(errs, fmt.Errorf("lexicon: corrections[%d]: %q maps to %q which contains it", i, from, corr.To))
		}
	}
	return errors.Join(errs...)
}

// Keywords returns every distinct single word that appears in a lexicon
// phrase, sorted. Used as the vocabulary of the phonetic stage.
func (t Table) Keywords() []string {
	seen := make(map[string]struct{})
	for _, phrases := range t.Lexicon {
		for _, p := range phrases {
			for _, w := range strings.Fields(p) {
				seen[w] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	slices.Sort(out)
	return out
}

// ContainsWord reports whether phrase occurs in text on word boundaries.
// Both arguments are expected to be lower-case and space separated.
func ContainsWord(text, phrase string) bool {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// Default returns the built-in English vocabulary.
func Default() Table {
	return Table{
		Lexicon: Lexicon{
			Start:  {"start therapy", "begin session", "start", "begin", "therapy"},
			Next:   {"next step", "continue", "next", "go on", "proceed", "forward", "advance", "cont", "move on", "go ahead", "keep going"},
			Repeat: {"repeat", "repeat that", "say again", "again", "one more time"},
			End:    {"end session", "stop therapy", "end", "stop", "finish", "exit", "quit"},
		},
		Corrections: DefaultCorrections(),
		Fragments: map[string][]string{
			"continue": {"con", "kon", "can", "tin"},
			"next":     {"nex", "nek"},
		},
		ActiveExact:    []string{"next", "continue", "okay", "ok"},
		ActiveCompound: []string{"next step", "go on", "proceed", "move on", "go ahead"},
		IdleExact:      []string{"start", "begin", "ready"},
		IdleCompound:   []string{"start therapy", "begin session"},
		Affirmations:   []string{"yes", "yeah", "fine", "sure", "alright"},
	}
}

// DefaultCorrections returns the built-in mis-transcription table.
func DefaultCorrections() []Correction {
	var out []Correction
	add := func(to string, from ...string) {
		for _, f := range from {
			out = append(out, Correction{From: f, To: to})
		}
	}
	add("continue",
		"continue you", "continued", "can to you", "container", "continue on",
		"continue new", "continuing", "continu", "contenyu", "can tea new",
		"content", "continual", "continue to", "continue the", "continue a",
		"continue please", "continue now", "continuous")
	add("next",
		"next up", "text", "nest", "necks", "next to", "next please",
		"next one", "next time", "next day")
	add("begin", "began", "beginning", "begins")
	add("start", "started", "starting", "starts")
	add("end", "ending", "ends")
	return out
}
