// Package types defines the small set of data structures shared between the
// speech providers and the session core.
//
// Providers translate whatever their service returns into these types, so the
// core never parses provider payloads itself.
package types

import "time"

// Transcript is a speech-to-text result. Both partial (interim) and final
// transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal reports whether this is an authoritative result.
	IsFinal bool

	// Confidence is the overall confidence in [0, 1]. Zero when the provider
	// does not report one.
	Confidence float64

	// Words contains per-word detail when available. May be nil.
	Words []WordDetail

	// Intents holds the service's intent guesses, best first where the
	// provider orders them. Nil for plain transcription services.
	Intents []Intent

	// Entities extracted together with Intents.
	Entities []Entity

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint for recognizers that support biasing,
// used to make the command phrases easier to recognize.
type KeywordBoost struct {
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Intent is a recognized action attached to a transcript by a speech
// service that does natural-language understanding.
type Intent struct {
	// Name is the service-defined intent identifier, e.g. "next_step".
	Name string `json:"name"`

	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Entity is a parameter extracted alongside an intent.
type Entity struct {
	// Name is the entity role, e.g. "wit$message_body".
	Name string `json:"name"`

	Value string `json:"value"`

	Confidence float64 `json:"confidence"`
}

// TopIntent returns the highest-confidence intent, if any.
func TopIntent(intents []Intent) (Intent, bool) {
	if len(intents) == 0 {
		return Intent{}, false
	}
	best := intents[0]
	for _, in := range intents[1:] {
		if in.Confidence > best.Confidence {
			best = in
		}
	}
	return best, true
}
