package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/qariapp/murajaah/pkg/recognizer"
)

// GuardedProvider wraps a [recognizer.Provider] with a [Breaker]. When the
// breaker is open, StartStream fails fast with an error wrapping
// [recognizer.ErrUnavailable], which capture sessions already treat as a
// non-fatal "speech unavailable" condition.
type GuardedProvider struct {
	inner   recognizer.Provider
	breaker *Breaker
}

// Compile-time interface check.
var _ recognizer.Provider = (*GuardedProvider)(nil)

// GuardProvider wraps inner with a breaker configured by cfg.
func GuardProvider(inner recognizer.Provider, cfg BreakerConfig) *GuardedProvider {
	return &GuardedProvider{
		inner:   inner,
		breaker: NewBreaker(cfg),
	}
}

// StartStream opens a recognition stream through the breaker.
func (g *GuardedProvider) StartStream(ctx context.Context, cfg recognizer.StreamConfig) (recognizer.SessionHandle, error) {
	var handle recognizer.SessionHandle
	err := g.breaker.Do(func() error {
		h, err := g.inner.StartStream(ctx, cfg)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	if errors.Is(err, ErrBreakerOpen) {
		return nil, fmt.Errorf("resilience: %w: %w", recognizer.ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// BreakerState reports the wrapped breaker's current state.
func (g *GuardedProvider) BreakerState() State {
	return g.breaker.State()
}
