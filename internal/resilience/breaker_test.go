package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func TestBreakerDefaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test"})

	if b.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", b.maxFailures)
	}
	if b.cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", b.cooldown)
	}
	if b.probeBudget != 3 {
		t.Errorf("probeBudget = %d, want 3", b.probeBudget)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v", b.State())
	}
}

func TestBreakerClosedForwardsCalls(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test"})

	called := false
	if err := b.Do(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !called {
		t.Error("fn not called")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3, Cooldown: time.Hour})

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	calls := 0
	if err := b.Do(func() error { calls++; return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if calls != 0 {
		t.Error("fn called while open")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2})

	b.Do(func() error { return errBackend })
	b.Do(func() error { return nil })
	b.Do(func() error { return errBackend })

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, Cooldown: time.Millisecond, ProbeBudget: 2})

	b.Do(func() error { return errBackend })
	time.Sleep(5 * time.Millisecond)

	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, Cooldown: time.Millisecond, ProbeBudget: 2})

	b.Do(func() error { return errBackend })
	time.Sleep(5 * time.Millisecond)

	if err := b.Do(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("probe err = %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, Cooldown: time.Hour})

	b.Do(func() error { return errBackend })
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state after reset = %v, want closed", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("Do after reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("%d.String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
