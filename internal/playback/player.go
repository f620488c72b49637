// Package playback defines the audio playback collaborator consumed by the
// recitation controller, plus the resolver that maps a passage/verse pair to
// candidate audio resource locations.
//
// The controller only ever sees [Player] and [Locator]; which reciter CDN
// the audio comes from, and any multi-source fallback between mirrors, is
// the resolver's business.
package playback

import "context"

// Locator identifies the reference audio for one verse. URLs lists
// candidate sources in preference order; a player tries them until one
// succeeds.
type Locator struct {
	PassageID string
	VerseID   int
	URLs      []string
}

// Events holds the playback completion callbacks. Either field may be nil.
// Callbacks are invoked without locks held.
type Events struct {
	// OnEnded fires when the reference audio finished playing normally.
	OnEnded func(loc Locator)

	// OnError fires when no candidate source could be played.
	OnError func(loc Locator, err error)
}

// Player plays reference recitation audio. Implementations must be safe for
// concurrent use and must support Stop from any goroutine, including from
// within an event callback.
type Player interface {
	// Play starts playback of the given locator and returns immediately.
	// Completion or failure is reported through [Events]. Starting a new
	// Play stops any playback already in progress.
	Play(ctx context.Context, loc Locator)

	// Stop cancels any in-progress playback without firing OnEnded.
	// Safe to call when idle.
	Stop()
}
