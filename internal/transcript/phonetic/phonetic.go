// Package phonetic snaps misheard words onto a small command vocabulary.
//
// A word and a vocabulary entry are compared in two ways. Double Metaphone
// codes decide whether they sound alike; Jaro-Winkler similarity ranks the
// sound-alike entries. Entries that do not share a code can still win on a
// stricter pure Jaro-Winkler threshold, which catches spelling slips the
// phonetic encoding splits apart.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.75
	defaultFuzzyThreshold    = 0.90
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for an entry that
// shares a phonetic code with the word. Default: 0.75.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for an entry without
// a shared phonetic code. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the vocabulary entry that best matches word. Sound-alike
// entries always beat spelling-only entries. When nothing clears its
// threshold, word is returned unchanged with confidence 0.
func (m *Matcher) Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool) {
	w := strings.ToLower(strings.TrimSpace(word))
	if w == "" || len(vocabulary) == 0 {
		return word, 0, false
	}
	wordCodes := codes(w)

	var (
		best      string
		bestScore float64
		bestSound bool
	)
	for _, entry := range vocabulary {
		e := strings.ToLower(strings.TrimSpace(entry))
		if e == "" {
			continue
		}
		score := matchr.JaroWinkler(w, e, false)
		sound := overlap(wordCodes, codes(e))
		switch {
		case sound && score >= m.phoneticThreshold:
			if !bestSound || score > bestScore {
				best, bestScore, bestSound = entry, score, true
			}
		case !sound && !bestSound && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = entry, score
		}
	}
	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// codes returns the non-empty Double Metaphone codes of every token in s.
func codes(s string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	for _, tok := range strings.Fields(s) {
		p, alt := matchr.DoubleMetaphone(tok)
		if p != "" {
			out[p] = struct{}{}
		}
		if alt != "" {
			out[alt] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
