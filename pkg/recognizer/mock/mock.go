// Package mock provides test doubles for the recognizer interfaces.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/qariapp/murajaah/pkg/recognizer"
)

// Provider is a scriptable recognizer.Provider for tests.
type Provider struct {
	mu sync.Mutex

	// StartErr, when non-nil, is returned by StartStream.
	StartErr error

	// Sessions records every handle opened, in order.
	Sessions []*Session

	// StartCalls counts StartStream invocations.
	StartCalls int

	// LastConfig is the StreamConfig of the most recent StartStream call.
	LastConfig recognizer.StreamConfig
}

var _ recognizer.Provider = (*Provider)(nil)

// StartStream returns a fresh scripted Session, or StartErr if set.
func (p *Provider) StartStream(_ context.Context, cfg recognizer.StreamConfig) (recognizer.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.StartCalls++
	p.LastConfig = cfg
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := NewSession()
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// LastSession returns the most recently opened session, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Session is a scriptable recognizer.SessionHandle. Tests push transcripts
// and errors with EmitFinal and EmitError.
type Session struct {
	mu     sync.Mutex
	finals chan recognizer.Transcript
	errs   chan error
	closed bool

	// Audio collects chunks passed to SendAudio.
	Audio [][]byte
}

var _ recognizer.SessionHandle = (*Session)(nil)

// NewSession returns an open scripted session.
func NewSession() *Session {
	return &Session{
		finals: make(chan recognizer.Transcript, 8),
		errs:   make(chan error, 8),
	}
}

// SendAudio records the chunk. Returns an error after Close.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	s.Audio = append(s.Audio, chunk)
	return nil
}

// Finals returns the scripted finals channel.
func (s *Session) Finals() <-chan recognizer.Transcript { return s.finals }

// Errors returns the scripted errors channel.
func (s *Session) Errors() <-chan error { return s.errs }

// Close closes both event channels. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.finals)
		close(s.errs)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// EmitFinal delivers a final transcript to the session's consumer.
// No-op if the session is closed.
func (s *Session) EmitFinal(text string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.finals <- recognizer.Transcript{Text: text, Confidence: confidence}
}

// EmitError delivers a mid-recognition error to the session's consumer.
// No-op if the session is closed.
func (s *Session) EmitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.errs <- err
}
