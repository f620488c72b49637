package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidRecognizerNames lists known recognizer provider names. Used by
// [Validate] to warn about unrecognised names.
var ValidRecognizerNames = []string{"deepgram", "mock"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields callers almost never want empty.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageMemory
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Recognizer
	if cfg.Recognizer.Name != "" && !slices.Contains(ValidRecognizerNames, cfg.Recognizer.Name) {
		slog.Warn("unknown recognizer name — may be a typo or third-party provider",
			"name", cfg.Recognizer.Name,
			"known", ValidRecognizerNames,
		)
	}
	if cfg.Recognizer.Name == "deepgram" && cfg.Recognizer.APIKey == "" {
		errs = append(errs, errors.New("recognizer.api_key is required when recognizer.name is deepgram"))
	}
	if cfg.Recognizer.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("recognizer.sample_rate %d is negative", cfg.Recognizer.SampleRate))
	}

	// Scorer
	if t := cfg.Scorer.AcceptThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("scorer.accept_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Scorer.MinCandidateLen < 0 {
		errs = append(errs, fmt.Errorf("scorer.min_candidate_len %d is negative", cfg.Scorer.MinCandidateLen))
	}
	if cfg.Scorer.MaxLenDelta < 0 {
		errs = append(errs, fmt.Errorf("scorer.max_len_delta %d is negative", cfg.Scorer.MaxLenDelta))
	}
	if cfg.Scorer.PrefixLen < 0 {
		errs = append(errs, fmt.Errorf("scorer.prefix_len %d is negative", cfg.Scorer.PrefixLen))
	}
	if cfg.Scorer.DiagnosticCap < 0 {
		errs = append(errs, fmt.Errorf("scorer.diagnostic_cap %d is negative", cfg.Scorer.DiagnosticCap))
	}

	// Session
	for _, d := range []struct {
		name string
		d    Duration
	}{
		{"session.settle_delay", cfg.Session.SettleDelay},
		{"session.correct_delay", cfg.Session.CorrectDelay},
		{"session.advance_delay", cfg.Session.AdvanceDelay},
		{"session.incorrect_delay", cfg.Session.IncorrectDelay},
	} {
		if d.d < 0 {
			errs = append(errs, fmt.Errorf("%s %v is negative", d.name, d.d.Std()))
		}
	}

	// Storage
	if !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, postgres, redis", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StoragePostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.backend is postgres"))
	}
	if cfg.Storage.Backend == StorageRedis && cfg.Storage.RedisURI == "" {
		errs = append(errs, errors.New("storage.redis_uri is required when storage.backend is redis"))
	}
	if cfg.Storage.Backend == StorageMemory {
		slog.Warn("storage.backend is memory; phase completions will not survive restarts")
	}

	// Passages
	if cfg.Passages.Path == "" {
		slog.Warn("passages.path is empty; no passages will be available until one is configured")
	}

	return errors.Join(errs...)
}
