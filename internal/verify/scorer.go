// Package verify implements fuzzy accuracy scoring of recitation attempts.
//
// A spoken attempt arrives as a speech-to-text transcript and is compared
// against the expected verse text. Both sides are normalized with
// [arabic.Normalize] first, then a short-circuit pipeline decides:
//
//  1. Reject candidates shorter than the minimum length (stray noise).
//  2. Accept on exact normalized equality.
//  3. Accept when either string contains the other (trailing/leading noise
//     from the transcription engine).
//  4. Otherwise match expected words against candidate tokens with lenient
//     heuristics and accept when the matched fraction reaches the threshold.
//
// The heuristics are deliberately forgiving — transcripts of child
// recitation are noisy and the product choice is persistence over
// punishment. Thresholds are configurable but the defaults are the
// behaviourally validated ones; do not tighten them without new evidence.
package verify

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/qariapp/murajaah/internal/arabic"
)

const (
	defaultAcceptThreshold = 0.5
	defaultMinCandidateLen = 5
	defaultMaxLenDelta     = 2
	defaultPrefixLen       = 3
	defaultDiagnosticCap   = 5

	// Expected words this short are connector fragments and earn no credit.
	minCountedWordLen = 2

	// Candidate tokens must be at least this long to match by containment.
	minContainTokenLen = 3
)

// diagnosticSeparator joins missing words in the learner-facing diagnostic.
const diagnosticSeparator = "، "

// ScoreResult is the outcome of scoring one recitation attempt.
type ScoreResult struct {
	// Accepted reports whether the attempt passes.
	Accepted bool

	// MatchedWords and TotalWords describe the word-level comparison.
	// Both are zero when an earlier pipeline step decided the outcome.
	MatchedWords int
	TotalWords   int

	// Accuracy is MatchedWords / TotalWords, or 0 when TotalWords is 0.
	Accuracy float64

	// Similarity is the Jaro-Winkler similarity of the normalized strings.
	// It is reported for logging and metrics only and never influences
	// the accept decision.
	Similarity float64

	// MissingWords lists unmatched expected words in normalized form,
	// in verse order, capped at the diagnostic limit.
	MissingWords []string

	// Diagnostic is a human-readable explanation of a rejection.
	// Empty when the attempt is accepted.
	Diagnostic string
}

// Option is a functional option for configuring a [Scorer].
type Option func(*Scorer)

// WithAcceptThreshold sets the minimum matched-word fraction required for
// acceptance. Default: 0.5.
func WithAcceptThreshold(t float64) Option {
	return func(s *Scorer) { s.acceptThreshold = t }
}

// WithMinCandidateLen sets the minimum normalized candidate length (in
// runes) below which attempts are rejected outright. Default: 5.
func WithMinCandidateLen(n int) Option {
	return func(s *Scorer) { s.minCandidateLen = n }
}

// WithMaxLenDelta sets the maximum rune-length difference allowed by the
// shared-prefix word heuristic. Default: 2.
func WithMaxLenDelta(n int) Option {
	return func(s *Scorer) { s.maxLenDelta = n }
}

// WithPrefixLen sets the number of leading runes two tokens must share for
// the prefix heuristic. Default: 3.
func WithPrefixLen(n int) Option {
	return func(s *Scorer) { s.prefixLen = n }
}

// WithDiagnosticCap sets the maximum number of missing words listed in a
// rejection diagnostic. Default: 5.
func WithDiagnosticCap(n int) Option {
	return func(s *Scorer) { s.diagnosticCap = n }
}

// Scorer compares normalized attempt transcripts against expected verse
// text. All methods are safe for concurrent use — a Scorer is read-only
// after construction.
type Scorer struct {
	acceptThreshold float64
	minCandidateLen int
	maxLenDelta     int
	prefixLen       int
	diagnosticCap   int
}

// NewScorer returns a [Scorer] configured with the supplied options.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		acceptThreshold: defaultAcceptThreshold,
		minCandidateLen: defaultMinCandidateLen,
		maxLenDelta:     defaultMaxLenDelta,
		prefixLen:       defaultPrefixLen,
		diagnosticCap:   defaultDiagnosticCap,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score evaluates candidate (a raw transcript) against expected (raw verse
// text). Both are normalized before comparison.
func (s *Scorer) Score(candidate, expected string) ScoreResult {
	cand := arabic.Normalize(candidate)
	exp := arabic.Normalize(expected)

	res := ScoreResult{
		Similarity: matchr.JaroWinkler(cand, exp, false),
	}

	// Step 1: too short to be a real attempt.
	if len([]rune(cand)) < s.minCandidateLen {
		res.Diagnostic = "recitation too short — try reciting the whole verse"
		return res
	}

	// Step 2: exact match.
	if cand == exp {
		res.Accepted = true
		return res
	}

	// Step 3: mutual containment absorbs leading/trailing engine noise.
	if strings.Contains(cand, exp) || strings.Contains(exp, cand) {
		res.Accepted = true
		return res
	}

	// Step 4: word-level matching.
	candTokens := strings.Fields(cand)
	var matched, total int
	var missing []string

	for _, word := range strings.Fields(exp) {
		if len([]rune(word)) <= minCountedWordLen-1 {
			continue
		}
		total++
		if s.wordMatches(word, candTokens) {
			matched++
		} else {
			missing = append(missing, word)
		}
	}

	res.MatchedWords = matched
	res.TotalWords = total
	if total == 0 {
		// Should not happen with non-empty verses; reject defensively.
		res.Diagnostic = "could not compare the recitation to the verse"
		return res
	}
	res.Accuracy = float64(matched) / float64(total)

	if res.Accuracy >= s.acceptThreshold {
		res.Accepted = true
		return res
	}

	res.MissingWords = capWords(missing, s.diagnosticCap)
	if matched == 0 {
		res.Diagnostic = fmt.Sprintf("none of the verse was recognized — listen again for: %s",
			strings.Join(res.MissingWords, diagnosticSeparator))
	} else {
		res.Diagnostic = fmt.Sprintf("almost there — these words were missed: %s",
			strings.Join(res.MissingWords, diagnosticSeparator))
	}
	return res
}

// wordMatches reports whether an expected word is covered by any candidate
// token: verbatim, by containment in either direction (candidate token must
// be long enough to avoid fragment noise), or by the length-delta +
// shared-prefix heuristic.
func (s *Scorer) wordMatches(word string, candTokens []string) bool {
	wordRunes := []rune(word)

	for _, tok := range candTokens {
		if tok == word {
			return true
		}

		tokRunes := []rune(tok)
		if len(tokRunes) >= minContainTokenLen &&
			(strings.Contains(tok, word) || strings.Contains(word, tok)) {
			return true
		}

		delta := len(tokRunes) - len(wordRunes)
		if delta < 0 {
			delta = -delta
		}
		if delta <= s.maxLenDelta && samePrefix(wordRunes, tokRunes, s.prefixLen) {
			return true
		}
	}
	return false
}

// samePrefix reports whether a and b share the same first n runes.
// Tokens shorter than n cannot match by prefix.
func samePrefix(a, b []rune, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// capWords returns at most n leading elements of words.
func capWords(words []string, n int) []string {
	if len(words) <= n {
		return words
	}
	return words[:n]
}
