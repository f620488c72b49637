// Package recognizer defines the Provider interface for speech-to-text
// backends used to capture a single spoken recitation attempt.
//
// A recognizer wraps a streaming transcription service and exposes a uniform
// utterance interface: once opened, a session accepts raw PCM audio frames
// and emits final Transcript values. Recitation checking only ever consumes
// final results — engines are configured non-continuous and non-interim, so
// partial hypotheses are deliberately absent from this contract.
//
// Implementations must be safe for concurrent use.
package recognizer

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by StartStream when the speech capability is
// not available on this platform or deployment (no engine configured,
// missing credentials). Callers treat it as non-fatal: listening simply
// never starts.
var ErrUnavailable = errors.New("recognizer: speech capability unavailable")

// StreamConfig describes the audio format and recognition hints for a new
// utterance session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (typically 16000).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono, required by most
	// providers; implementors may downmix internally.
	Channels int

	// Language is the IETF language tag for recognition. Recitation capture
	// uses a single fixed tag ("ar-SA" by default), configured once rather
	// than re-derived at runtime.
	Language string
}

// Transcript is a final speech-to-text result for one utterance.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64
}

// SessionHandle represents an open utterance-recognition session. It is an
// interface so test code can provide mock implementations without a live
// provider connection.
//
// Callers must call Close when the session is no longer needed; failing to
// do so may leak goroutines and network connections inside the provider.
// All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes for transcription.
	// The chunk must match the SampleRate and Channels agreed in
	// StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Finals returns a read-only channel emitting authoritative Transcript
	// values. For recitation capture the engine commits at most one
	// meaningful final per utterance. The channel is closed when the
	// session ends.
	Finals() <-chan Transcript

	// Errors returns a read-only channel emitting mid-recognition failures
	// (no-speech timeouts, network drops). The channel is closed when the
	// session ends. Errors are advisory — the session may or may not still
	// deliver a final after one.
	Errors() <-chan error

	// Close terminates the session, flushes pending audio, and releases
	// all associated resources. After Close returns, the Finals and Errors
	// channels will be closed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// StartStream opens a new utterance-recognition session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns
	// the handle and must call Close when done.
	//
	// Returns ErrUnavailable (possibly wrapped) when the capability cannot
	// be provided on this platform, and other errors for transient session
	// setup failures.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
