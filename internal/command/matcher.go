// Package command turns normalized transcripts into session commands.
//
// The [Matcher] applies a fixed precedence of rules that depend on the
// session state: while a session is running almost anything that sounds like
// "go on" advances it, while idle only start phrases get the fast path. The
// [Interpreter] chains the transcript normalizer, the matcher and an optional
// intent fallback for speech services that return structured intents.
package command

import (
	"slices"
	"strings"

	"github.com/MrWong99/speakeasy/internal/lexicon"
	"github.com/MrWong99/speakeasy/internal/session"
)

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	lexicon        lexicon.Lexicon
	activeExact    []string
	activeCompound []string
	idleExact      []string
	idleCompound   []string
	affirmations   []string
}

// NewMatcher builds a Matcher over table. Phrases are lower-cased and
// trimmed so they compare against normalizer output.
func NewMatcher(table lexicon.Table) *Matcher {
	m := &Matcher{
		lexicon:        make(lexicon.Lexicon, len(table.Lexicon)),
		activeExact:    lowerAll(table.ActiveExact),
		activeCompound: lowerAll(table.ActiveCompound),
		idleExact:      lowerAll(table.IdleExact),
		idleCompound:   lowerAll(table.IdleCompound),
		affirmations:   lowerAll(table.Affirmations),
	}
	for c, phrases := range table.Lexicon {
		m.lexicon[c] = lowerAll(phrases)
	}
	return m
}

// Match returns the command text represents in state. The first matching
// rule wins:
//
//  1. Active: exact Next shortcut or a compound Next phrase.
//  2. Idle: exact Start shortcut or a compound Start phrase.
//  3. End lexicon, whole word.
//  4. Start lexicon, whole word.
//  5. Next lexicon, whole word.
//  6. Repeat lexicon, whole word.
//  7. Active: a lone affirmation advances.
//
// Anything else is [lexicon.Unrecognized].
func (m *Matcher) Match(text string, state session.State) lexicon.Command {
	text = strings.TrimSpace(text)
	if text == "" {
		return lexicon.Unrecognized
	}

	switch state {
	case session.Active:
		if slices.Contains(m.activeExact, text) || containsAny(text, m.activeCompound) {
			return lexicon.Next
		}
	case session.Idle:
		if slices.Contains(m.idleExact, text) || containsAny(text, m.idleCompound) {
			return lexicon.Start
		}
	}

	for _, c := range []lexicon.Command{lexicon.End, lexicon.Start, lexicon.Next, lexicon.Repeat} {
		for _, p := range m.lexicon[c] {
			if lexicon.ContainsWord(text, p) {
				return c
			}
		}
	}

	if state == session.Active && slices.Contains(m.affirmations, text) {
		return lexicon.Next
	}
	return lexicon.Unrecognized
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
