// Package app wires the murajaah subsystems into a running application:
// passage definitions, the progress store backend, the accuracy scorer, the
// audio resolver, and the per-learner session manager.
//
// New performs all initialisation synchronously and Shutdown tears it down
// in reverse order. For testing, inject doubles via functional options
// (WithStore, WithPassages, etc.); when an option is not provided, New
// creates the real implementation from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qariapp/murajaah/internal/config"
	"github.com/qariapp/murajaah/internal/health"
	"github.com/qariapp/murajaah/internal/observe"
	"github.com/qariapp/murajaah/internal/passage"
	"github.com/qariapp/murajaah/internal/playback"
	"github.com/qariapp/murajaah/internal/progress"
	"github.com/qariapp/murajaah/internal/recite"
	"github.com/qariapp/murajaah/internal/verify"
	"github.com/qariapp/murajaah/pkg/recognizer"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	recognizer recognizer.Provider

	passages *passage.File
	store    progress.Store
	scorer   *verify.Scorer
	resolver *playback.Resolver
	metrics  *observe.Metrics
	sink     playback.Sink
	client   *http.Client
	observer func(learnerID string, snap recite.Snapshot)
	sessions *Manager
	health   *health.Handler

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a progress store instead of creating one from config.
func WithStore(s progress.Store) Option {
	return func(a *App) { a.store = s }
}

// WithPassages injects passage definitions instead of loading them from the
// configured file.
func WithPassages(f *passage.File) Option {
	return func(a *App) { a.passages = f }
}

// WithSink directs streamed reference audio into sink.
func WithSink(s playback.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithHTTPClient injects the client used to fetch reference audio.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.client = c }
}

// WithMetrics injects a metrics set instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithSessionObserver registers a callback receiving every session state
// change, keyed by learner.
func WithSessionObserver(fn func(learnerID string, snap recite.Snapshot)) Option {
	return func(a *App) { a.observer = fn }
}

// New creates an App by wiring all subsystems together. The recognizer
// provider comes from main (created via the config registry).
func New(ctx context.Context, cfg *config.Config, rec recognizer.Provider, opts ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		recognizer: rec,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initPassages(); err != nil {
		return nil, fmt.Errorf("app: init passages: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initScorer()
	a.resolver = playback.NewResolver(cfg.Audio.BaseURLs)
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	mgr, err := NewManager(ManagerConfig{
		Passages:   a.passages,
		Recognizer: a.recognizer,
		Store:      a.store,
		Scorer:     a.scorer,
		Resolver:   a.resolver,
		Sink:       a.sink,
		HTTPClient: a.client,
		Locale:     cfg.Recognizer.Locale,
		SampleRate: cfg.Recognizer.SampleRate,
		Delays: recite.Delays{
			Settle:    cfg.Session.SettleDelay.Std(),
			Correct:   cfg.Session.CorrectDelay.Std(),
			Advance:   cfg.Session.AdvanceDelay.Std(),
			Incorrect: cfg.Session.IncorrectDelay.Std(),
		},
		Metrics:  a.metrics,
		OnChange: a.observer,
	})
	if err != nil {
		return nil, err
	}
	a.sessions = mgr

	a.initHealth()
	return a, nil
}

// Sessions returns the per-learner session manager.
func (a *App) Sessions() *Manager { return a.sessions }

// Passages returns the loaded passage definitions.
func (a *App) Passages() *passage.File { return a.passages }

// Progress returns the progress store.
func (a *App) Progress() progress.Store { return a.store }

// Health returns the liveness/readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// initPassages loads passage definitions from the configured file unless
// they were injected.
func (a *App) initPassages() error {
	if a.passages != nil {
		return nil
	}
	if a.cfg.Passages.Path == "" {
		return fmt.Errorf("passages.path is required when passages are not injected")
	}
	pf, err := passage.Load(a.cfg.Passages.Path)
	if err != nil {
		return err
	}
	a.passages = pf
	slog.Info("loaded passage definitions", "path", a.cfg.Passages.Path, "count", len(pf.Passages))
	return nil
}

// initStore builds the configured progress store backend unless one was
// injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	switch a.cfg.Storage.Backend {
	case config.StorageMemory, "":
		a.store = progress.NewMemStore()

	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, a.cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		store := progress.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})

	case config.StorageRedis:
		store, err := progress.NewRedisStore(a.cfg.Storage.RedisURI)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)

	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}

	slog.Info("progress store ready", "backend", a.cfg.Storage.Backend)
	return nil
}

// initScorer builds the accuracy scorer from config, keeping package
// defaults for unset fields.
func (a *App) initScorer() {
	sc := a.cfg.Scorer

	var opts []verify.Option
	if sc.AcceptThreshold > 0 {
		opts = append(opts, verify.WithAcceptThreshold(sc.AcceptThreshold))
	}
	if sc.MinCandidateLen > 0 {
		opts = append(opts, verify.WithMinCandidateLen(sc.MinCandidateLen))
	}
	if sc.MaxLenDelta > 0 {
		opts = append(opts, verify.WithMaxLenDelta(sc.MaxLenDelta))
	}
	if sc.PrefixLen > 0 {
		opts = append(opts, verify.WithPrefixLen(sc.PrefixLen))
	}
	if sc.DiagnosticCap > 0 {
		opts = append(opts, verify.WithDiagnosticCap(sc.DiagnosticCap))
	}
	a.scorer = verify.NewScorer(opts...)
}

// initHealth registers readiness checks for stores that expose one.
func (a *App) initHealth() {
	var checkers []health.Checker
	if p, ok := a.store.(health.Pinger); ok {
		checkers = append(checkers, health.PingChecker("progress-store", p))
	}
	a.health = health.New(checkers...)
}

// Shutdown stops every session and tears down subsystems in reverse-init
// order. It respects the context deadline: if ctx expires before all
// closers finish, the remainder are skipped and the context error returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.sessions.StopAll()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
