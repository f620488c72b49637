package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qariapp/murajaah/pkg/recognizer"
	recmock "github.com/qariapp/murajaah/pkg/recognizer/mock"
)

func TestGuardedProviderForwardsStreams(t *testing.T) {
	t.Parallel()
	inner := &recmock.Provider{}
	g := GuardProvider(inner, BreakerConfig{Name: "recognizer"})

	h, err := g.StartStream(context.Background(), recognizer.StreamConfig{Language: "ar-SA"})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if h == nil {
		t.Fatal("nil handle")
	}
	if inner.LastConfig.Language != "ar-SA" {
		t.Errorf("config not forwarded: %+v", inner.LastConfig)
	}
}

func TestGuardedProviderFailsFastWhenOpen(t *testing.T) {
	t.Parallel()
	inner := &recmock.Provider{StartErr: errors.New("dial tcp: connection refused")}
	g := GuardProvider(inner, BreakerConfig{Name: "recognizer", MaxFailures: 2, Cooldown: time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := g.StartStream(context.Background(), recognizer.StreamConfig{}); err == nil {
			t.Fatalf("call %d succeeded", i)
		}
	}
	if g.BreakerState() != StateOpen {
		t.Fatalf("state = %v, want open", g.BreakerState())
	}

	callsBefore := inner.StartCalls
	_, err := g.StartStream(context.Background(), recognizer.StreamConfig{})
	if !errors.Is(err, recognizer.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if inner.StartCalls != callsBefore {
		t.Error("inner provider dialed while breaker open")
	}
}

func TestGuardedProviderRecovers(t *testing.T) {
	t.Parallel()
	inner := &recmock.Provider{StartErr: errors.New("down")}
	g := GuardProvider(inner, BreakerConfig{Name: "recognizer", MaxFailures: 1, Cooldown: time.Millisecond, ProbeBudget: 1})

	if _, err := g.StartStream(context.Background(), recognizer.StreamConfig{}); err == nil {
		t.Fatal("start succeeded against down backend")
	}
	time.Sleep(5 * time.Millisecond)

	inner.StartErr = nil
	if _, err := g.StartStream(context.Background(), recognizer.StreamConfig{}); err != nil {
		t.Fatalf("probe StartStream: %v", err)
	}
	if g.BreakerState() != StateClosed {
		t.Errorf("state = %v, want closed", g.BreakerState())
	}
}
