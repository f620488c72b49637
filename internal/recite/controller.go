// Package recite drives a phrase-by-phrase recitation session: play the
// reference audio for a verse, listen for the learner's attempt, score it,
// then advance to the next verse or retry the same one.
//
// The controller is an explicit finite-state machine. While a session is
// active it moves Playing → Listening → (scored) → Playing | Listening |
// Completed; Idle is represented by an inactive controller. All suspension
// happens through cancelable timers owned by the controller, so Stop from
// any state leaves no pending effect behind: timers scheduled before Stop
// are canceled, and any that already fired become no-ops through an epoch
// check.
//
// Rejected attempts retry the same verse without replaying the reference
// audio, with no cap on attempts. Recognition errors are treated like
// silence: listening restarts after the same settle delay used after
// playback. Playback errors surface as a visible error state and never
// auto-advance; the learner retries via RetryPlayback.
package recite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/qariapp/murajaah/internal/capture"
	"github.com/qariapp/murajaah/internal/observe"
	"github.com/qariapp/murajaah/internal/passage"
	"github.com/qariapp/murajaah/internal/playback"
	"github.com/qariapp/murajaah/internal/progress"
	"github.com/qariapp/murajaah/internal/verify"
)

// Step is the controller's position in the play→listen→score loop.
type Step int

const (
	// StepPlaying means the reference audio for the current verse is
	// playing (or failed to play and awaits a retry).
	StepPlaying Step = iota

	// StepListening means the capture session is live or about to be,
	// awaiting the learner's attempt.
	StepListening

	// StepCompleted means every verse of the phase was accepted. Terminal
	// until the next Begin.
	StepCompleted
)

// String returns the step name for logs.
func (s Step) String() string {
	switch s {
	case StepPlaying:
		return "playing"
	case StepListening:
		return "listening"
	case StepCompleted:
		return "completed"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Feedback is the verdict on the most recent attempt.
type Feedback int

const (
	FeedbackNone Feedback = iota
	FeedbackCorrect
	FeedbackIncorrect
)

// String returns the feedback name for logs.
func (f Feedback) String() string {
	switch f {
	case FeedbackNone:
		return "none"
	case FeedbackCorrect:
		return "correct"
	case FeedbackIncorrect:
		return "incorrect"
	default:
		return fmt.Sprintf("feedback(%d)", int(f))
	}
}

// Default session delays.
const (
	// defaultSettleDelay separates playback (or a retry) from the start of
	// listening, so the microphone does not capture the playback tail.
	defaultSettleDelay = 800 * time.Millisecond

	// defaultCorrectDelay lets the learner read positive feedback before
	// the session advances.
	defaultCorrectDelay = 3000 * time.Millisecond

	// defaultAdvanceDelay is the short gap before the next verse plays.
	defaultAdvanceDelay = 500 * time.Millisecond

	// defaultIncorrectDelay lets the learner read the diagnostic before
	// listening restarts.
	defaultIncorrectDelay = 6000 * time.Millisecond
)

// Delays groups the fixed pauses of the session loop. Zero fields take the
// package defaults.
type Delays struct {
	Settle    time.Duration
	Correct   time.Duration
	Advance   time.Duration
	Incorrect time.Duration
}

func (d Delays) withDefaults() Delays {
	if d.Settle <= 0 {
		d.Settle = defaultSettleDelay
	}
	if d.Correct <= 0 {
		d.Correct = defaultCorrectDelay
	}
	if d.Advance <= 0 {
		d.Advance = defaultAdvanceDelay
	}
	if d.Incorrect <= 0 {
		d.Incorrect = defaultIncorrectDelay
	}
	return d
}

// Snapshot is a point-in-time copy of the session state, safe to hand to a
// UI layer.
type Snapshot struct {
	Active          bool
	Step            Step
	VerseIndex      int
	VerseCount      int
	CurrentVerseID  int // 0 when no verse is current
	Feedback        Feedback
	FeedbackVisible bool
	LastTranscript  string
	Diagnostic      string
	PlaybackFailed  bool
}

// Sentinel errors returned by Begin.
var (
	// ErrNoVerses means Begin was called with an empty verse list.
	ErrNoVerses = errors.New("recite: empty verse list")

	// ErrUnknownVerse means a verse id is not part of the passage.
	ErrUnknownVerse = errors.New("recite: verse not in passage")
)

// Config configures a [Controller]. The player and capture session are
// built through factories so the controller can wire its own event
// callbacks into them.
type Config struct {
	// Passage supplies the verse texts scored against.
	Passage *passage.Passage

	// PhaseLabel identifies the phase being recited; written to the
	// progress store on completion.
	PhaseLabel string

	// LearnerID identifies the learner; written to the progress store on
	// completion.
	LearnerID string

	// Scorer decides whether an attempt is accepted.
	Scorer *verify.Scorer

	// Progress receives the phase-completed event.
	Progress progress.Store

	// Resolve maps a verse to its reference audio locations.
	Resolve func(passageID string, verseID int) (playback.Locator, error)

	// NewPlayer builds the audio player with the controller's callbacks.
	NewPlayer func(playback.Events) playback.Player

	// NewCapture builds the capture session with the controller's
	// callbacks.
	NewCapture func(capture.Events) capture.Session

	// Scheduler drives the session delays. Nil means wall clock.
	Scheduler Scheduler

	// Delays overrides the session pauses. Zero fields take defaults.
	Delays Delays

	// Metrics records session telemetry. May be nil.
	Metrics *observe.Metrics

	// OnChange is called with a fresh Snapshot after every state change,
	// outside the controller's lock. May be nil.
	OnChange func(Snapshot)
}

func (cfg Config) validate() error {
	var errs []error
	if cfg.Passage == nil {
		errs = append(errs, errors.New("recite: passage is required"))
	}
	if cfg.PhaseLabel == "" {
		errs = append(errs, errors.New("recite: phase label is required"))
	}
	if cfg.LearnerID == "" {
		errs = append(errs, errors.New("recite: learner id is required"))
	}
	if cfg.Scorer == nil {
		errs = append(errs, errors.New("recite: scorer is required"))
	}
	if cfg.Progress == nil {
		errs = append(errs, errors.New("recite: progress store is required"))
	}
	if cfg.Resolve == nil {
		errs = append(errs, errors.New("recite: resolve func is required"))
	}
	if cfg.NewPlayer == nil {
		errs = append(errs, errors.New("recite: player factory is required"))
	}
	if cfg.NewCapture == nil {
		errs = append(errs, errors.New("recite: capture factory is required"))
	}
	return errors.Join(errs...)
}

// Controller owns one recitation session at a time. All methods are safe
// for concurrent use; collaborator callbacks may arrive from any goroutine.
type Controller struct {
	cfg       Config
	delays    Delays
	scheduler Scheduler
	player    playback.Player
	capture   capture.Session

	mu sync.Mutex
	// epoch is bumped whenever the session is (re)started or stopped; a
	// timer callback from an older epoch must not act.
	epoch uint64
	// timer is the single pending delay; the loop never has more than one
	// conceptually outstanding. Scheduling replaces and stops the previous
	// one so fired timers don't accumulate over a long session.
	timer Timer

	active          bool
	step            Step
	verses          []int
	verseIndex      int
	feedback        Feedback
	feedbackVisible bool
	lastTranscript  string
	diagnostic      string
	playbackFailed  bool
	listenStarted   time.Time
}

// New creates a Controller. The player and capture session are constructed
// immediately via the config factories.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:       cfg,
		delays:    cfg.Delays.withDefaults(),
		scheduler: cfg.Scheduler,
		step:      StepPlaying,
	}
	if c.scheduler == nil {
		c.scheduler = NewScheduler()
	}

	c.player = cfg.NewPlayer(playback.Events{
		OnEnded: c.handlePlaybackEnded,
		OnError: c.handlePlaybackError,
	})
	c.capture = cfg.NewCapture(capture.Events{
		OnTranscript: c.handleTranscript,
		OnError:      c.handleCaptureError,
	})
	return c, nil
}

// Begin starts a session over the given ordered verse ids. A session
// already in progress is implicitly stopped first. The verse list must be
// non-empty and every id must exist in the passage; otherwise Begin returns
// an error without touching existing session state.
func (c *Controller) Begin(verseIDs []int) error {
	if len(verseIDs) == 0 {
		return ErrNoVerses
	}
	for _, id := range verseIDs {
		if _, ok := c.cfg.Passage.Verse(id); !ok {
			return fmt.Errorf("%w: id %d", ErrUnknownVerse, id)
		}
	}

	c.mu.Lock()
	wasActive := c.active
	c.resetLocked()
	c.active = true
	c.step = StepPlaying
	c.verses = slices.Clone(verseIDs)
	c.mu.Unlock()

	c.capture.Stop()
	c.capture.Reset()
	c.player.Stop()

	if !wasActive && c.cfg.Metrics != nil {
		c.cfg.Metrics.ActiveSessions.Add(context.Background(), 1)
	}
	slog.Info("recitation session started",
		"learner", c.cfg.LearnerID,
		"passage", c.cfg.Passage.ID,
		"phase", c.cfg.PhaseLabel,
		"verses", len(verseIDs),
	)

	c.playCurrent()
	c.notify()
	return nil
}

// Stop ends the session from any state: cancels pending timers, stops
// playback and capture, and resets all session fields. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	wasActive := c.active
	c.resetLocked()
	c.mu.Unlock()

	c.capture.Stop()
	c.capture.Reset()
	c.player.Stop()

	if wasActive {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
		}
		slog.Info("recitation session stopped",
			"learner", c.cfg.LearnerID,
			"passage", c.cfg.Passage.ID,
			"phase", c.cfg.PhaseLabel,
		)
	}
	c.notify()
}

// RetryPlayback replays the current verse after a playback failure. No-op
// unless the session is in the visible playback-error state.
func (c *Controller) RetryPlayback() {
	c.mu.Lock()
	ok := c.active && c.step == StepPlaying && c.playbackFailed
	c.mu.Unlock()
	if !ok {
		return
	}
	c.playCurrent()
	c.notify()
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Active:          c.active,
		Step:            c.step,
		VerseIndex:      c.verseIndex,
		VerseCount:      len(c.verses),
		Feedback:        c.feedback,
		FeedbackVisible: c.feedbackVisible,
		LastTranscript:  c.lastTranscript,
		Diagnostic:      c.diagnostic,
		PlaybackFailed:  c.playbackFailed,
	}
	if c.active && c.verseIndex < len(c.verses) {
		s.CurrentVerseID = c.verses[c.verseIndex]
	}
	return s
}

// resetLocked clears all session state and invalidates pending timers.
// Caller holds c.mu.
func (c *Controller) resetLocked() {
	c.epoch++
	c.cancelTimerLocked()
	c.active = false
	c.step = StepPlaying
	c.verses = nil
	c.verseIndex = 0
	c.feedback = FeedbackNone
	c.feedbackVisible = false
	c.lastTranscript = ""
	c.diagnostic = ""
	c.playbackFailed = false
	c.listenStarted = time.Time{}
}

func (c *Controller) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// scheduleLocked arranges for f to run after d, unless the session is
// stopped or restarted first. Caller holds c.mu; f runs without it.
func (c *Controller) scheduleLocked(d time.Duration, f func()) {
	c.cancelTimerLocked()
	e := c.epoch
	c.timer = c.scheduler.AfterFunc(d, func() {
		c.mu.Lock()
		stale := c.epoch != e
		c.mu.Unlock()
		if stale {
			return
		}
		f()
	})
}

// playCurrent resolves and plays the reference audio for the current verse.
func (c *Controller) playCurrent() {
	c.mu.Lock()
	if !c.active || c.step != StepPlaying || c.verseIndex >= len(c.verses) {
		c.mu.Unlock()
		return
	}
	verseID := c.verses[c.verseIndex]
	c.playbackFailed = false
	c.mu.Unlock()

	loc, err := c.cfg.Resolve(c.cfg.Passage.ID, verseID)
	if err != nil {
		c.handlePlaybackError(playback.Locator{PassageID: c.cfg.Passage.ID, VerseID: verseID},
			fmt.Errorf("recite: resolve audio: %w", err))
		return
	}
	c.player.Play(context.Background(), loc)
}

// handlePlaybackEnded transitions Playing → Listening and schedules the
// capture start after the settle delay.
func (c *Controller) handlePlaybackEnded(loc playback.Locator) {
	c.mu.Lock()
	if !c.active || c.step != StepPlaying {
		c.mu.Unlock()
		return
	}
	c.step = StepListening
	c.scheduleLocked(c.delays.Settle, c.startListening)
	c.mu.Unlock()

	slog.Debug("reference audio ended", "verse", loc.VerseID)
	c.notify()
}

// handlePlaybackError surfaces a visible error state. The session never
// advances past a verse it could not play.
func (c *Controller) handlePlaybackError(loc playback.Locator, err error) {
	c.mu.Lock()
	if !c.active || c.step != StepPlaying {
		c.mu.Unlock()
		return
	}
	c.playbackFailed = true
	c.mu.Unlock()

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordPlaybackError(context.Background(), c.cfg.Passage.ID)
	}
	slog.Error("reference audio playback failed", "verse", loc.VerseID, "err", err)
	c.notify()
}

// startListening fires after the settle delay and opens the capture session.
func (c *Controller) startListening() {
	c.mu.Lock()
	if !c.active || c.step != StepListening || c.feedbackVisible {
		c.mu.Unlock()
		return
	}
	c.listenStarted = time.Now()
	c.mu.Unlock()

	c.capture.Start()
}

// handleTranscript scores a final transcript. The capture session ends
// listening before delivering a final, so a transcript arriving while
// still listening belongs to a replaced instance and is ignored.
func (c *Controller) handleTranscript(text string) {
	c.mu.Lock()
	if !c.active || c.step != StepListening || c.feedbackVisible || text == "" {
		c.mu.Unlock()
		return
	}
	if c.capture.IsListening() {
		c.mu.Unlock()
		return
	}
	verseID := c.verses[c.verseIndex]
	started := c.listenStarted
	c.mu.Unlock()

	verse, _ := c.cfg.Passage.Verse(verseID)
	res := c.cfg.Scorer.Score(text, verse.Text)

	c.mu.Lock()
	if !c.active || c.step != StepListening || c.feedbackVisible {
		c.mu.Unlock()
		return
	}
	c.lastTranscript = text
	c.feedbackVisible = true
	if res.Accepted {
		c.feedback = FeedbackCorrect
		c.diagnostic = ""
		c.scheduleLocked(c.delays.Correct, c.advance)
	} else {
		c.feedback = FeedbackIncorrect
		c.diagnostic = res.Diagnostic
		c.scheduleLocked(c.delays.Incorrect, c.retryListen)
	}
	c.mu.Unlock()

	c.capture.Stop()
	if res.Accepted {
		c.capture.Reset()
	}

	if c.cfg.Metrics != nil && !started.IsZero() {
		c.cfg.Metrics.RecordAttempt(context.Background(), time.Since(started).Seconds(), res.Accepted)
	}
	slog.Info("attempt scored",
		"verse", verseID,
		"accepted", res.Accepted,
		"accuracy", res.Accuracy,
		"similarity", res.Similarity,
		"matched", res.MatchedWords,
		"total", res.TotalWords,
	)
	c.notify()
}

// handleCaptureError treats a recognition failure like silence: listening
// restarts after the settle delay. Never reaches Completed.
func (c *Controller) handleCaptureError(err error) {
	c.mu.Lock()
	if !c.active || c.step != StepListening || c.feedbackVisible {
		c.mu.Unlock()
		return
	}
	c.scheduleLocked(c.delays.Settle, c.startListening)
	c.mu.Unlock()

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordRecognitionError(context.Background())
	}
	slog.Warn("recognition error, retrying listen", "err", err)
}

// advance fires after the correct-feedback delay: moves to the next verse,
// or completes the phase when none remain.
func (c *Controller) advance() {
	c.mu.Lock()
	if !c.active || c.step != StepListening {
		c.mu.Unlock()
		return
	}
	c.verseIndex++
	c.feedback = FeedbackNone
	c.feedbackVisible = false
	c.lastTranscript = ""
	c.diagnostic = ""

	if c.verseIndex < len(c.verses) {
		c.step = StepPlaying
		c.scheduleLocked(c.delays.Advance, c.playCurrent)
		c.mu.Unlock()
		c.notify()
		return
	}

	// Whole phase accepted.
	c.epoch++
	c.cancelTimerLocked()
	c.active = false
	c.step = StepCompleted
	c.verseIndex = 0
	c.verses = nil
	c.mu.Unlock()

	c.capture.Stop()
	c.capture.Reset()
	c.player.Stop()

	if c.cfg.Metrics != nil {
		ctx := context.Background()
		c.cfg.Metrics.ActiveSessions.Add(ctx, -1)
		c.cfg.Metrics.RecordPhaseCompleted(ctx, c.cfg.Passage.ID, c.cfg.PhaseLabel)
	}
	slog.Info("phase completed",
		"learner", c.cfg.LearnerID,
		"passage", c.cfg.Passage.ID,
		"phase", c.cfg.PhaseLabel,
	)
	go c.persistCompletion()
	c.notify()
}

// retryListen fires after the incorrect-feedback delay: clears the verdict
// and re-enters listening for the same verse, without replaying the
// reference audio.
func (c *Controller) retryListen() {
	c.mu.Lock()
	if !c.active || c.step != StepListening {
		c.mu.Unlock()
		return
	}
	c.feedback = FeedbackNone
	c.feedbackVisible = false
	c.lastTranscript = ""
	c.diagnostic = ""
	c.scheduleLocked(c.delays.Settle, c.startListening)
	c.mu.Unlock()

	c.capture.Reset()
	c.notify()
}

// persistCompletion writes the phase-completed event to the progress store.
func (c *Controller) persistCompletion() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.cfg.Progress.MarkPhaseCompleted(ctx, c.cfg.LearnerID, c.cfg.Passage.ID, c.cfg.PhaseLabel)
	if err != nil {
		slog.Error("failed to persist phase completion",
			"learner", c.cfg.LearnerID,
			"passage", c.cfg.Passage.ID,
			"phase", c.cfg.PhaseLabel,
			"err", err,
		)
	}
}

// notify delivers a fresh snapshot to the OnChange callback.
func (c *Controller) notify() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(c.Snapshot())
	}
}
