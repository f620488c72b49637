// Package arabic provides canonicalization of Arabic text for recitation
// comparison.
//
// Recitation transcripts come back from speech engines without vocalisation,
// while reference verse text is fully vocalised. Normalize folds both onto a
// common skeleton form so that comparison only sees the consonantal text:
// diacritics (harakat, shadda, and the nunation marks) are stripped, the
// hamza-seated alif variants collapse to bare alif, alif-maksura to ya, and
// ta-marbuta to ha.
//
// Normalize must be applied to both sides of every comparison; normalizing
// only one side is a correctness bug in the caller.
package arabic

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes all combining marks after canonical decomposition.
// Arabic harakat, shadda, maddah, and the hamza seat marks are all category
// Mn, so a single pass handles vocalisation and hamza-seat folding at once
// (e.g. أ decomposes to ا + U+0654 and comes out as bare alif).
var stripMarks = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// letter folds applied after mark stripping.
const (
	alef        = 'ا' // ا
	alefWasla   = 'ٱ' // ٱ
	alefMaksura = 'ى' // ى
	ya          = 'ي' // ي
	taMarbuta   = 'ة' // ة
	ha          = 'ه' // ه
	tatweel     = 'ـ' // ـ elongation filler, carries no sound
)

// Normalize canonicalizes Arabic text for comparison. It is pure, total, and
// idempotent; empty input maps to empty output.
//
// Applied in order: strip diacritical and nunation marks (folding the
// hamza-seated alif variants to bare alif as a side effect), fold
// alif-maksura to ya and ta-marbuta to ha, collapse runs of whitespace to a
// single space, trim, and lower-case. Lower-casing is a no-op for Arabic but
// keeps behaviour uniform for any Latin characters in the input.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	stripped, _, err := transform.String(stripMarks, text)
	if err != nil {
		// norm transformers do not fail on valid UTF-8; keep Normalize total
		// by continuing with the original text.
		stripped = text
	}

	folded := strings.Map(func(r rune) rune {
		switch r {
		case alefWasla:
			return alef
		case alefMaksura:
			return ya
		case taMarbuta:
			return ha
		case tatweel:
			return -1
		}
		return r
	}, stripped)

	collapsed := strings.Join(strings.Fields(folded), " ")
	return strings.ToLower(collapsed)
}

// Words splits normalized text into whitespace-separated tokens.
// The input is normalized first, so callers may pass raw text.
func Words(text string) []string {
	return strings.Fields(Normalize(text))
}
