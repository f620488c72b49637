package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/qariapp/murajaah/internal/capture"
	"github.com/qariapp/murajaah/internal/observe"
	"github.com/qariapp/murajaah/internal/passage"
	"github.com/qariapp/murajaah/internal/playback"
	"github.com/qariapp/murajaah/internal/progress"
	"github.com/qariapp/murajaah/internal/recite"
	"github.com/qariapp/murajaah/internal/verify"
	"github.com/qariapp/murajaah/pkg/recognizer"
)

// Sentinel errors returned by Manager operations.
var (
	// ErrUnknownPassage means the requested passage ID is not defined.
	ErrUnknownPassage = errors.New("app: unknown passage")

	// ErrUnknownPhase means the passage has no phase with that label.
	ErrUnknownPhase = errors.New("app: unknown phase")

	// ErrNoSession means the learner has no session.
	ErrNoSession = errors.New("app: no session for learner")
)

// SessionInfo holds metadata about a learner's session.
type SessionInfo struct {
	LearnerID  string    `json:"learner_id"`
	PassageID  string    `json:"passage_id"`
	PhaseLabel string    `json:"phase_label"`
	VerseCount int       `json:"verse_count"`
	StartedAt  time.Time `json:"started_at"`
}

// learnerSession pairs a recitation controller with the capture it feeds
// audio into.
type learnerSession struct {
	info       SessionInfo
	controller *recite.Controller
	capture    *capture.Capture
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	// Passages is the loaded passage definition set.
	Passages *passage.File

	// Recognizer supplies speech recognition streams for every session.
	Recognizer recognizer.Provider

	// Store receives phase-completion records.
	Store progress.Store

	// Scorer decides whether attempts are accepted.
	Scorer *verify.Scorer

	// Resolver maps verses to reference audio URLs.
	Resolver *playback.Resolver

	// Sink receives streamed reference audio. Nil discards it, which is
	// only useful in tests.
	Sink playback.Sink

	// HTTPClient fetches reference audio. Nil uses a default client.
	HTTPClient *http.Client

	// Locale and SampleRate configure recognition streams. Zero values
	// take the capture package defaults.
	Locale     string
	SampleRate int

	// Delays overrides the session loop pauses. Zero fields take defaults.
	Delays recite.Delays

	// Metrics records session telemetry. May be nil.
	Metrics *observe.Metrics

	// OnChange, when set, receives every state change of every session.
	OnChange func(learnerID string, snap recite.Snapshot)
}

func (cfg ManagerConfig) validate() error {
	var errs []error
	if cfg.Passages == nil {
		errs = append(errs, errors.New("app: passages are required"))
	}
	if cfg.Recognizer == nil {
		errs = append(errs, errors.New("app: recognizer is required"))
	}
	if cfg.Store == nil {
		errs = append(errs, errors.New("app: progress store is required"))
	}
	if cfg.Scorer == nil {
		errs = append(errs, errors.New("app: scorer is required"))
	}
	if cfg.Resolver == nil {
		errs = append(errs, errors.New("app: audio resolver is required"))
	}
	return errors.Join(errs...)
}

// Manager owns one recitation session per learner. Beginning a phase for a
// learner who already has a session implicitly stops and replaces it. All
// exported methods are safe for concurrent use.
type Manager struct {
	cfg ManagerConfig

	// beginMu serializes session replacement so two concurrent Begins for
	// the same learner cannot each stop the other's survivor.
	beginMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]*learnerSession
}

// NewManager creates a Manager over the given dependencies.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Sink == nil {
		cfg.Sink = discardSink{}
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*learnerSession),
	}, nil
}

// Begin starts a recitation session for the learner over the named phase of
// a passage. An existing session for the same learner is stopped before the
// replacement starts, so the learner never has two live sessions at once.
// Validation failures happen before the prior session is touched, so a
// rejected Begin leaves it running.
func (m *Manager) Begin(learnerID, passageID, phaseLabel string) error {
	if learnerID == "" {
		return errors.New("app: learner id is required")
	}

	p := m.cfg.Passages.ByID(passageID)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrUnknownPassage, passageID)
	}
	phase, ok := findPhase(p, phaseLabel)
	if !ok {
		return fmt.Errorf("%w: passage %q has no phase %q", ErrUnknownPhase, passageID, phaseLabel)
	}

	sess, err := m.buildSession(learnerID, p, phase)
	if err != nil {
		return err
	}

	m.beginMu.Lock()
	defer m.beginMu.Unlock()

	m.mu.Lock()
	prev := m.sessions[learnerID]
	delete(m.sessions, learnerID)
	m.mu.Unlock()
	if prev != nil {
		prev.controller.Stop()
		slog.Info("replaced active session",
			"learner", learnerID,
			"previous_passage", prev.info.PassageID,
			"previous_phase", prev.info.PhaseLabel,
		)
	}

	if err := sess.controller.Begin(phase.Verses); err != nil {
		return fmt.Errorf("app: begin session: %w", err)
	}

	m.mu.Lock()
	m.sessions[learnerID] = sess
	m.mu.Unlock()
	return nil
}

// buildSession constructs the controller and collaborators for one session.
func (m *Manager) buildSession(learnerID string, p *passage.Passage, phase passage.Phase) (*learnerSession, error) {
	sess := &learnerSession{
		info: SessionInfo{
			LearnerID:  learnerID,
			PassageID:  p.ID,
			PhaseLabel: phase.Label,
			VerseCount: len(phase.Verses),
			StartedAt:  time.Now(),
		},
	}

	var captureOpts []capture.Option
	if m.cfg.Locale != "" {
		captureOpts = append(captureOpts, capture.WithLocale(m.cfg.Locale))
	}
	if m.cfg.SampleRate > 0 {
		captureOpts = append(captureOpts, capture.WithSampleRate(m.cfg.SampleRate))
	}

	ctrl, err := recite.New(recite.Config{
		Passage:    p,
		PhaseLabel: phase.Label,
		LearnerID:  learnerID,
		Scorer:     m.cfg.Scorer,
		Progress:   m.cfg.Store,
		Resolve:    m.cfg.Resolver.Resolve,
		NewPlayer: func(ev playback.Events) playback.Player {
			return playback.NewHTTPPlayer(m.cfg.HTTPClient, m.cfg.Sink, ev)
		},
		NewCapture: func(ev capture.Events) capture.Session {
			sess.capture = capture.New(m.cfg.Recognizer, ev, captureOpts...)
			return sess.capture
		},
		Delays:  m.cfg.Delays,
		Metrics: m.cfg.Metrics,
		OnChange: func(snap recite.Snapshot) {
			if m.cfg.OnChange != nil {
				m.cfg.OnChange(learnerID, snap)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("app: build session: %w", err)
	}
	sess.controller = ctrl
	return sess, nil
}

// Stop ends the learner's session and removes it. Returns ErrNoSession when
// the learner has none.
func (m *Manager) Stop(learnerID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[learnerID]
	delete(m.sessions, learnerID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSession, learnerID)
	}
	sess.controller.Stop()
	return nil
}

// RetryPlayback retries the current verse's reference audio after a playback
// failure. Returns ErrNoSession when the learner has no session.
func (m *Manager) RetryPlayback(learnerID string) error {
	sess, ok := m.lookup(learnerID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSession, learnerID)
	}
	sess.controller.RetryPlayback()
	return nil
}

// Status returns the learner's session metadata and current state.
func (m *Manager) Status(learnerID string) (SessionInfo, recite.Snapshot, error) {
	sess, ok := m.lookup(learnerID)
	if !ok {
		return SessionInfo{}, recite.Snapshot{}, fmt.Errorf("%w: %q", ErrNoSession, learnerID)
	}
	return sess.info, sess.controller.Snapshot(), nil
}

// SendAudio forwards a PCM chunk from the learner's microphone into their
// live recognition stream. A chunk arriving outside a listening window is
// silently dropped.
func (m *Manager) SendAudio(learnerID string, chunk []byte) error {
	sess, ok := m.lookup(learnerID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSession, learnerID)
	}
	if err := sess.capture.SendAudio(chunk); err != nil {
		return fmt.Errorf("app: send audio: %w", err)
	}
	return nil
}

// Sessions lists metadata for every tracked session.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SessionInfo, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.info)
	}
	return out
}

// StopAll ends every session; used during shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*learnerSession)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.controller.Stop()
	}
	if len(sessions) > 0 {
		slog.Info("stopped all sessions", "count", len(sessions))
	}
}

func (m *Manager) lookup(learnerID string) (*learnerSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[learnerID]
	return sess, ok
}

// findPhase locates a phase by label.
func findPhase(p *passage.Passage, label string) (passage.Phase, bool) {
	for _, ph := range p.Phases {
		if ph.Label == label {
			return ph, true
		}
	}
	return passage.Phase{}, false
}

// discardSink drops reference audio bytes. The hosting layer normally
// replaces it with a sink wired to the learner's device or web client.
type discardSink struct{}

func (discardSink) Write(p []byte) (int, error) { return len(p), nil }
