package config

import (
	"strings"
	"testing"
	"time"
)

const fullConfig = `
server:
  listen_addr: ":9090"
  log_level: debug
recognizer:
  name: deepgram
  api_key: dg-secret
  model: nova-3
  locale: ar-SA
  sample_rate: 16000
scorer:
  accept_threshold: 0.5
  min_candidate_len: 5
  max_len_delta: 2
  prefix_len: 3
  diagnostic_cap: 5
session:
  settle_delay: 800ms
  correct_delay: 3s
  advance_delay: 500ms
  incorrect_delay: 6s
audio:
  base_urls:
    - https://audio.example.com/alafasy
passages:
  path: passages.yaml
storage:
  backend: postgres
  postgres_dsn: postgres://localhost:5432/murajaah
`

func TestLoadFromReaderFullConfig(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(fullConfig))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Recognizer.Name != "deepgram" || cfg.Recognizer.APIKey != "dg-secret" {
		t.Errorf("Recognizer = %+v", cfg.Recognizer)
	}
	if cfg.Scorer.AcceptThreshold != 0.5 {
		t.Errorf("AcceptThreshold = %v", cfg.Scorer.AcceptThreshold)
	}
	if got := cfg.Session.SettleDelay.Std(); got != 800*time.Millisecond {
		t.Errorf("SettleDelay = %v", got)
	}
	if got := cfg.Session.IncorrectDelay.Std(); got != 6*time.Second {
		t.Errorf("IncorrectDelay = %v", got)
	}
	if cfg.Storage.Backend != StoragePostgres {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
}

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
recognizer:
  name: mock
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("default LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Storage.Backend != StorageMemory {
		t.Errorf("default Backend = %q", cfg.Storage.Backend)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
server:
  listen_addr: ":8080"
  max_connections: 100
`))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: verbose\n",
			want: "log_level",
		},
		{
			name: "deepgram without api key",
			yaml: "recognizer:\n  name: deepgram\n",
			want: "api_key",
		},
		{
			name: "threshold above one",
			yaml: "scorer:\n  accept_threshold: 1.5\n",
			want: "accept_threshold",
		},
		{
			name: "negative delay",
			yaml: "session:\n  settle_delay: -1s\n",
			want: "settle_delay",
		},
		{
			name: "bad storage backend",
			yaml: "storage:\n  backend: sqlite\n",
			want: "storage.backend",
		},
		{
			name: "postgres without dsn",
			yaml: "storage:\n  backend: postgres\n",
			want: "postgres_dsn",
		},
		{
			name: "redis without uri",
			yaml: "storage:\n  backend: redis\n",
			want: "redis_uri",
		},
		{
			name: "tls missing key",
			yaml: "server:\n  tls:\n    cert_file: cert.pem\n",
			want: "tls",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateJoinsAllFailures(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
server:
  log_level: loud
scorer:
  accept_threshold: 2.0
storage:
  backend: postgres
`))
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"log_level", "accept_threshold", "postgres_dsn"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q missing %q", err, want)
		}
	}
}

func TestDurationBadValueRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("session:\n  settle_delay: soon\n"))
	if err == nil {
		t.Fatal("unparseable duration accepted")
	}
}

func TestLogLevelLevel(t *testing.T) {
	if LogDebug.Level() >= LogInfo.Level() {
		t.Error("debug should be below info")
	}
	if LogLevel("bogus").Level() != LogInfo.Level() {
		t.Error("unknown level should map to info")
	}
}
