// Package capture wraps a streaming speech recognizer in the start/stop
// lifecycle a recitation session needs: begin listening for one utterance,
// surface the final transcript, and report errors without failing the
// session.
//
// At most one underlying recognition instance is live per Capture; Start
// discards any previous instance before opening a new one. Stop requests
// cessation but is not guaranteed to be synchronous — a final result may
// still arrive after Stop returns. Capability-unavailable and
// mid-recognition errors both leave the capture not-listening and are
// reported through Events.OnError; neither is fatal to the caller.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/qariapp/murajaah/pkg/recognizer"
)

// DefaultLocale is the IETF language tag used for recitation capture.
// Fixed per deployment, not re-derived at runtime.
const DefaultLocale = "ar-SA"

// Session is the capture contract consumed by the recitation controller.
// Implementations must be safe for concurrent use.
type Session interface {
	// Start begins listening for a single utterance. If the speech
	// capability is unavailable it fails silently: IsListening stays
	// false and the condition is logged and reported via OnError.
	Start()

	// Stop requests cessation of the current recognition instance.
	// Not guaranteed to be synchronous; see the package comment.
	Stop()

	// Reset clears the last transcript without affecting listening state.
	Reset()

	// IsListening reports whether a recognition instance is live.
	IsListening() bool

	// Transcript returns the most recent final transcript, or "".
	Transcript() string
}

// Events holds the observable side effects of a Capture. Any field may be
// nil. Callbacks are invoked without internal locks held, so they may call
// back into the Capture.
type Events struct {
	OnListeningStarted func()
	OnTranscript       func(text string)
	OnListeningEnded   func()
	OnError            func(err error)
}

// Option configures a Capture during construction.
type Option func(*Capture)

// WithLocale overrides the recognition language tag. Default: DefaultLocale.
func WithLocale(tag string) Option {
	return func(c *Capture) { c.cfg.Language = tag }
}

// WithSampleRate overrides the capture sample rate in Hz. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(c *Capture) { c.cfg.SampleRate = rate }
}

// Capture implements [Session] over a recognizer.Provider.
type Capture struct {
	provider recognizer.Provider
	events   Events
	cfg      recognizer.StreamConfig

	mu sync.Mutex
	// gen is bumped by every Start and Stop. A dial in flight records the
	// generation it belongs to and discards its handle if a later Start or
	// Stop bumped it meanwhile, so a stopped capture never ends up with a
	// live recognition instance.
	gen        uint64
	handle     recognizer.SessionHandle // nil when not listening
	listening  bool
	transcript string
}

// Compile-time interface check.
var _ Session = (*Capture)(nil)

// New creates a Capture reading utterances from provider and reporting
// through events.
func New(provider recognizer.Provider, events Events, opts ...Option) *Capture {
	c := &Capture{
		provider: provider,
		events:   events,
		cfg: recognizer.StreamConfig{
			SampleRate: 16000,
			Channels:   1,
			Language:   DefaultLocale,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start begins listening. Any previously live recognition instance is
// stopped and discarded first.
func (c *Capture) Start() {
	c.mu.Lock()
	if prev := c.handle; prev != nil {
		c.handle = nil
		c.listening = false
		go prev.Close()
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	handle, err := c.provider.StartStream(context.Background(), c.cfg)
	if err != nil {
		if errors.Is(err, recognizer.ErrUnavailable) {
			slog.Warn("capture: speech capability unavailable", "err", err)
		} else {
			slog.Warn("capture: failed to start recognition", "err", err)
		}
		c.fireError(err)
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		// A Stop or newer Start arrived while dialing; this instance must
		// not outlive it.
		c.mu.Unlock()
		go handle.Close()
		return
	}
	c.handle = handle
	c.listening = true
	c.mu.Unlock()

	if c.events.OnListeningStarted != nil {
		c.events.OnListeningStarted()
	}

	go c.consume(handle)
}

// Stop requests cessation of the current recognition instance. Safe to call
// when not listening.
func (c *Capture) Stop() {
	c.mu.Lock()
	c.gen++
	handle := c.handle
	wasListening := c.listening
	c.handle = nil
	c.listening = false
	c.mu.Unlock()

	if handle != nil {
		go handle.Close()
	}
	if wasListening && c.events.OnListeningEnded != nil {
		c.events.OnListeningEnded()
	}
}

// Reset clears the last transcript without affecting listening state.
func (c *Capture) Reset() {
	c.mu.Lock()
	c.transcript = ""
	c.mu.Unlock()
}

// IsListening reports whether a recognition instance is live.
func (c *Capture) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Transcript returns the most recent final transcript.
func (c *Capture) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// SendAudio forwards a PCM chunk to the live recognition instance. It is a
// no-op returning nil when not listening, so audio pumps need not
// synchronise with the listening lifecycle.
func (c *Capture) SendAudio(chunk []byte) error {
	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()
	if handle == nil {
		return nil
	}
	return handle.SendAudio(chunk)
}

// consume drains one recognition instance. The engine runs single-utterance
// mode, so the first final is authoritative: it ends the listening state
// before OnTranscript fires, matching the controller's expectation that a
// transcript arrives only once listening has ceased.
func (c *Capture) consume(handle recognizer.SessionHandle) {
	finals := handle.Finals()
	errs := handle.Errors()

	for finals != nil || errs != nil {
		select {
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if t.Text == "" {
				continue
			}
			if !c.endUtterance(handle, t.Text) {
				// A newer instance replaced this one; drop the stale final.
				continue
			}
			if c.events.OnListeningEnded != nil {
				c.events.OnListeningEnded()
			}
			if c.events.OnTranscript != nil {
				c.events.OnTranscript(t.Text)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if !c.detach(handle) {
				continue
			}
			slog.Warn("capture: recognition error", "err", err)
			if c.events.OnListeningEnded != nil {
				c.events.OnListeningEnded()
			}
			c.fireError(err)
		}
	}

	// Stream ended without a final (silence, engine close). If this handle
	// is still current, surface the end of listening.
	if c.detach(handle) {
		if c.events.OnListeningEnded != nil {
			c.events.OnListeningEnded()
		}
	}
}

// endUtterance records the transcript and ends listening, provided handle is
// still the current instance. Returns false for stale handles.
func (c *Capture) endUtterance(handle recognizer.SessionHandle, text string) bool {
	c.mu.Lock()
	if c.handle != handle {
		c.mu.Unlock()
		return false
	}
	c.handle = nil
	c.listening = false
	c.transcript = text
	c.mu.Unlock()

	go handle.Close()
	return true
}

// detach clears listening state if handle is still current. Returns false
// for stale handles.
func (c *Capture) detach(handle recognizer.SessionHandle) bool {
	c.mu.Lock()
	if c.handle != handle {
		c.mu.Unlock()
		return false
	}
	c.handle = nil
	c.listening = false
	c.mu.Unlock()

	go handle.Close()
	return true
}

// fireError reports err through OnError if set.
func (c *Capture) fireError(err error) {
	if c.events.OnError != nil {
		c.events.OnError(err)
	}
}
