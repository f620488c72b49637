package deepgram

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/qariapp/murajaah/pkg/recognizer"
)

func TestStartStreamWithoutAPIKey(t *testing.T) {
	t.Parallel()

	p := New("")
	_, err := p.StartStream(context.Background(), recognizer.StreamConfig{})
	if !errors.Is(err, recognizer.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	p := New("key", WithModel("base"), WithLanguage("ar"))
	raw, err := p.buildURL(recognizer.StreamConfig{SampleRate: 16000, Channels: 1, Language: "ar-SA"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse built URL: %v", err)
	}
	q := u.Query()

	tests := []struct{ key, want string }{
		{"model", "base"},
		{"language", "ar-SA"}, // stream config overrides provider default
		{"sample_rate", "16000"},
		{"channels", "1"},
		{"interim_results", "false"},
	}
	for _, tt := range tests {
		if got := q.Get(tt.key); got != tt.want {
			t.Errorf("query %s = %q, want %q", tt.key, got, tt.want)
		}
	}
	if q.Get("endpointing") == "" {
		t.Error("endpointing not set; single-utterance capture requires it")
	}
	if !strings.HasPrefix(raw, "wss://") {
		t.Errorf("unexpected scheme in %q", raw)
	}
}

func TestBuildURLDefaults(t *testing.T) {
	t.Parallel()

	p := New("key")
	raw, err := p.buildURL(recognizer.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	q, _ := url.Parse(raw)
	if got := q.Query().Get("language"); got != "ar" {
		t.Errorf("default language = %q, want ar", got)
	}
	if got := q.Query().Get("sample_rate"); got != "16000" {
		t.Errorf("default sample_rate = %q, want 16000", got)
	}
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  string
		wantText string
		wantOK   bool
	}{
		{
			name:     "final result",
			payload:  `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"قل اعوذ","confidence":0.93}]}}`,
			wantText: "قل اعوذ",
			wantOK:   true,
		},
		{
			name:    "interim ignored",
			payload: `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"قل"}]}}`,
			wantOK:  false,
		},
		{
			name:    "empty transcript ignored",
			payload: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
			wantOK:  false,
		},
		{
			name:    "metadata ignored",
			payload: `{"type":"Metadata"}`,
			wantOK:  false,
		},
		{
			name:    "malformed json ignored",
			payload: `{not json`,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseResponse([]byte(tt.payload))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Text != tt.wantText {
				t.Errorf("text = %q, want %q", got.Text, tt.wantText)
			}
		})
	}
}
