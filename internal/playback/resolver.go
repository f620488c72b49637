package playback

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultBaseURLs are the reciter CDN mirrors consulted when none are
// configured. Audio files follow the widespread XXXYYY.mp3 layout where XXX
// is the zero-padded surah number and YYY the verse number.
var DefaultBaseURLs = []string{
	"https://everyayah.com/data/Alafasy_128kbps",
}

// Resolver maps a (passage, verse) pair to candidate audio URLs across one
// or more CDN mirrors. It is read-only after construction and safe for
// concurrent use.
type Resolver struct {
	bases []string
}

// NewResolver creates a Resolver over the given mirror base URLs, in
// preference order. With no bases it falls back to DefaultBaseURLs.
func NewResolver(bases []string) *Resolver {
	if len(bases) == 0 {
		bases = DefaultBaseURLs
	}
	trimmed := make([]string, len(bases))
	for i, b := range bases {
		trimmed[i] = strings.TrimRight(b, "/")
	}
	return &Resolver{bases: trimmed}
}

// Resolve returns the locator for a verse. The passage ID must be the
// numeric surah identifier used by the CDN layout.
func (r *Resolver) Resolve(passageID string, verseID int) (Locator, error) {
	surah, err := strconv.Atoi(passageID)
	if err != nil {
		return Locator{}, fmt.Errorf("playback: passage id %q is not numeric: %w", passageID, err)
	}
	if surah < 1 || surah > 114 {
		return Locator{}, fmt.Errorf("playback: surah number %d out of range", surah)
	}
	if verseID < 1 {
		return Locator{}, fmt.Errorf("playback: verse id %d out of range", verseID)
	}

	file := FormatAyahID(surah, verseID) + ".mp3"
	urls := make([]string, len(r.bases))
	for i, b := range r.bases {
		urls[i] = b + "/" + file
	}
	return Locator{PassageID: passageID, VerseID: verseID, URLs: urls}, nil
}

// FormatAyahID renders the zero-padded XXXYYY identifier used by reciter
// CDNs and progress records (e.g. surah 114 verse 1 → "114001").
func FormatAyahID(surah, ayah int) string {
	return fmt.Sprintf("%03d%03d", surah, ayah)
}
