package config

import (
	"errors"
	"testing"

	"github.com/qariapp/murajaah/pkg/recognizer"
	recmock "github.com/qariapp/murajaah/pkg/recognizer/mock"
)

func TestRegistryCreateRecognizer(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	var gotEntry ProviderEntry
	r.RegisterRecognizer("mock", func(entry ProviderEntry) (recognizer.Provider, error) {
		gotEntry = entry
		return &recmock.Provider{}, nil
	})

	p, err := r.CreateRecognizer(ProviderEntry{Name: "mock", Locale: "ar-SA"})
	if err != nil {
		t.Fatalf("CreateRecognizer: %v", err)
	}
	if p == nil {
		t.Fatal("nil provider")
	}
	if gotEntry.Locale != "ar-SA" {
		t.Errorf("factory entry = %+v", gotEntry)
	}
}

func TestRegistryUnregisteredName(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	_, err := r.CreateRecognizer(ProviderEntry{Name: "whisper"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	r.RegisterRecognizer("mock", func(ProviderEntry) (recognizer.Provider, error) {
		t.Error("overwritten factory called")
		return nil, nil
	})
	r.RegisterRecognizer("mock", func(ProviderEntry) (recognizer.Provider, error) {
		return &recmock.Provider{}, nil
	})

	if _, err := r.CreateRecognizer(ProviderEntry{Name: "mock"}); err != nil {
		t.Fatalf("CreateRecognizer: %v", err)
	}
}
