// Package transcript normalizes raw speech-to-text output before command
// matching.
//
// Recognizers mishear short command words in predictable ways ("container"
// for "continue", "text" for "next"). The [Normalizer] lower-cases the text,
// strips punctuation and then applies up to three correction stages:
//
//  1. Dictionary: an ordered table of known mis-transcriptions, matched on
//     word boundaries. Earlier table entries win.
//  2. Similarity: when no dictionary entry applied and the text contains a
//     syllable fragment of a candidate word, the whole text is replaced by the
//     candidate if their edit-distance similarity clears the threshold.
//  3. Phonetic (optional): single tokens that sound like a command keyword
//     are snapped to it.
//
// Every substitution is recorded as a [Correction] so callers can log and
// count what the normalizer changed.
package transcript

import "errors"

// ErrEmptyTranscript is returned when the input carries no words.
var ErrEmptyTranscript = errors.New("transcript: empty transcript")

// Method identifies the stage that produced a [Correction].
type Method string

const (
	MethodDictionary Method = "dictionary"
	MethodSimilarity Method = "similarity"
	MethodPhonetic   Method = "phonetic"
)

// Correction captures a single substitution made by the normalizer.
type Correction struct {
	// Original is the phrase before substitution.
	Original string

	// Corrected is the replacement.
	Corrected string

	// Confidence is 1.0 for dictionary hits and the similarity score
	// otherwise.
	Confidence float64

	Method Method
}

// Result is the output of [Normalizer.Normalize].
type Result struct {
	// Original is the raw input.
	Original string

	// Text is lower-case, punctuation free and corrected.
	Text string

	// Corrections lists the substitutions in the order they were applied.
	Corrections []Correction
}

// Corrected reports whether any stage changed the cleaned text.
func (r Result) Corrected() bool { return len(r.Corrections) > 0 }

// PhoneticMatcher resolves a single word to the most similar-sounding entry
// of vocabulary. When matched is false, corrected equals word and confidence
// is 0.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool)
}
