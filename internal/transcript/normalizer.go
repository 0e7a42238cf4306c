package transcript

import (
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/speakeasy/internal/lexicon"
)

// DefaultSimilarityThreshold is the minimum similarity score, exclusive, for
// the similarity stage to substitute a candidate word.
const DefaultSimilarityThreshold = 0.4

// minPhoneticTokenLen keeps the phonetic stage away from short function words.
const minPhoneticTokenLen = 3

// Option is a functional option for configuring a [Normalizer].
type Option func(*Normalizer)

// WithThreshold overrides [DefaultSimilarityThreshold].
func WithThreshold(threshold float64) Option {
	return func(n *Normalizer) { n.threshold = threshold }
}

// WithPhonetic enables the phonetic stage using m. The vocabulary is the set
// of single words found in the lexicon.
func WithPhonetic(m PhoneticMatcher) Option {
	return func(n *Normalizer) { n.phonetic = m }
}

// Normalizer turns raw transcripts into matchable text. It is read-only after
// construction and safe for concurrent use.
type Normalizer struct {
	corrections []lexicon.Correction
	candidates  []string
	fragments   map[string][]string
	threshold   float64

	phonetic   PhoneticMatcher
	vocabulary []string
}

// New builds a Normalizer over the correction table and fragments in table.
func New(table lexicon.Table, opts ...Option) *Normalizer {
	n := &Normalizer{
		fragments:  make(map[string][]string, len(table.Fragments)),
		threshold:  DefaultSimilarityThreshold,
		vocabulary: table.Keywords(),
	}
	for _, c := range table.Corrections {
		from := clean(c.From)
		if from == "" {
			continue
		}
		n.corrections = append(n.corrections, lexicon.Correction{From: from, To: clean(c.To)})
	}
	for cand, frags := range table.Fragments {
		cand = clean(cand)
		n.candidates = append(n.candidates, cand)
		n.fragments[cand] = frags
	}
	// Map iteration is random; ties must resolve the same way every run.
	slices.Sort(n.candidates)
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize cleans raw and applies the correction stages. It returns
// [ErrEmptyTranscript] when raw has no words left after cleaning.
func (n *Normalizer) Normalize(raw string) (Result, error) {
	res := Result{Original: raw}
	text := clean(raw)
	if text == "" {
		return res, ErrEmptyTranscript
	}

	for _, c := range n.corrections {
		out, ok := replaceFirstWord(text, c.From, c.To)
		if !ok {
			continue
		}
		res.Corrections = append(res.Corrections, Correction{
			Original:   c.From,
			Corrected:  c.To,
			Confidence: 1,
			Method:     MethodDictionary,
		})
		text = out
	}

	if len(res.Corrections) == 0 {
		if cand, score, ok := n.similar(text); ok && cand != text {
			res.Corrections = append(res.Corrections, Correction{
				Original:   text,
				Corrected:  cand,
				Confidence: score,
				Method:     MethodSimilarity,
			})
			text = cand
		}
	}

	if n.phonetic != nil {
		text = n.snapTokens(text, &res)
	}

	res.Text = text
	return res, nil
}

// similar returns the best fragment-triggered candidate whose similarity to
// text is strictly above the threshold. Candidates already present as a
// whole word are skipped.
func (n *Normalizer) similar(text string) (string, float64, bool) {
	var (
		best      string
		bestScore float64
	)
	for _, cand := range n.candidates {
		if lexicon.ContainsWord(text, cand) || !containsAny(text, n.fragments[cand]) {
			continue
		}
		score := Similarity(text, cand)
		if score > n.threshold && score > bestScore {
			best, bestScore = cand, score
		}
	}
	return best, bestScore, best != ""
}

func (n *Normalizer) snapTokens(text string, res *Result) string {
	tokens := strings.Fields(text)
	changed := false
	for i, tok := range tokens {
		if len(tok) < minPhoneticTokenLen || slices.Contains(n.vocabulary, tok) {
			continue
		}
		corrected, conf, ok := n.phonetic.Match(tok, n.vocabulary)
		if !ok || corrected == tok {
			continue
		}
		res.Corrections = append(res.Corrections, Correction{
			Original:   tok,
			Corrected:  corrected,
			Confidence: conf,
			Method:     MethodPhonetic,
		})
		tokens[i] = corrected
		changed = true
	}
	if !changed {
		return text
	}
	return strings.Join(tokens, " ")
}

// Similarity returns 1 - editDistance/maxLength for a and b, in [0, 1].
func Similarity(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(maxLen)
}

// clean applies NFKC, lower-cases, drops apostrophes, turns other
// punctuation and symbols into spaces and collapses whitespace.
func clean(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	s = cases.Lower(language.Und).String(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsPunct(r), unicode.IsSymbol(r), unicode.IsSpace(r), unicode.IsControl(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// replaceFirstWord replaces the first word-bounded occurrence of from in text.
func replaceFirstWord(text, from, to string) (string, bool) {
	padded := " " + text + " "
	i := strings.Index(padded, " "+from+" ")
	if i < 0 {
		return text, false
	}
	out := padded[:i] + " " + to + " " + padded[i+len(from)+2:]
	return strings.Join(strings.Fields(out), " "), true
}

func containsAny(text string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(text, f) {
			return true
		}
	}
	return false
}
