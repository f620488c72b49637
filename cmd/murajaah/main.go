// Command murajaah runs the recitation practice server: it serves the
// session API, streams reference audio, scores attempts against passage
// definitions, and records phase completions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/qariapp/murajaah/internal/api"
	"github.com/qariapp/murajaah/internal/app"
	"github.com/qariapp/murajaah/internal/config"
	"github.com/qariapp/murajaah/internal/observe"
	"github.com/qariapp/murajaah/internal/resilience"
	"github.com/qariapp/murajaah/pkg/recognizer"
	"github.com/qariapp/murajaah/pkg/recognizer/deepgram"
	recmock "github.com/qariapp/murajaah/pkg/recognizer/mock"
)

// shutdownTimeout bounds graceful teardown after a stop signal.
const shutdownTimeout = 15 * time.Second

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "murajaah: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "murajaah: %v\n", err)
		}
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("murajaah starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"recognizer", cfg.Recognizer.Name,
		"storage", cfg.Storage.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerRecognizers(reg)

	rec, err := reg.CreateRecognizer(cfg.Recognizer)
	if err != nil {
		slog.Error("failed to create recognizer", "name", cfg.Recognizer.Name, "err", err)
		return 1
	}
	guarded := resilience.GuardProvider(rec, resilience.BreakerConfig{Name: cfg.Recognizer.Name})
	slog.Info("recognizer ready", "name", cfg.Recognizer.Name, "model", cfg.Recognizer.Model)

	application, err := app.New(ctx, cfg, guarded)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	mux := http.NewServeMux()
	api.NewServer(application.Sessions(), application.Passages(), application.Progress()).Register(mux)
	application.Health().Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready", "addr", cfg.Server.ListenAddr)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		return application.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerRecognizers wires the built-in recognizer factories into reg.
func registerRecognizers(reg *config.Registry) {
	reg.RegisterRecognizer("deepgram", func(entry config.ProviderEntry) (recognizer.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Locale != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Locale))
		}
		if entry.SampleRate > 0 {
			opts = append(opts, deepgram.WithSampleRate(entry.SampleRate))
		}
		return deepgram.New(entry.APIKey, opts...), nil
	})

	// mock recognizes nothing; useful for wiring checks without an API key.
	reg.RegisterRecognizer("mock", func(config.ProviderEntry) (recognizer.Provider, error) {
		return &recmock.Provider{}, nil
	})
}
