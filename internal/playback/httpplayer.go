package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// fetchTimeout bounds the download of a single candidate source.
const fetchTimeout = 30 * time.Second

// Sink consumes decoded/encoded audio bytes for output. The hosting layer
// supplies one wired to its audio device or web client.
type Sink interface {
	io.Writer
}

// HTTPPlayer is a [Player] that fetches reference audio over HTTP and
// streams it into a Sink. Candidate URLs from the locator are tried in
// order; OnError fires only after every source failed.
//
// One playback is in flight at a time; Play cancels any previous one.
type HTTPPlayer struct {
	client *http.Client
	sink   Sink
	events Events

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Compile-time interface check.
var _ Player = (*HTTPPlayer)(nil)

// NewHTTPPlayer creates an HTTPPlayer writing audio to sink and reporting
// through events. A nil client uses a default with a fetch timeout.
func NewHTTPPlayer(client *http.Client, sink Sink, events Events) *HTTPPlayer {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &HTTPPlayer{client: client, sink: sink, events: events}
}

// Play starts fetching and streaming the locator's audio in the background.
func (p *HTTPPlayer) Play(ctx context.Context, loc Locator) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	playCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(playCtx, cancel, loc)
}

// Stop cancels any in-progress playback.
func (p *HTTPPlayer) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
}

// run tries each candidate source until one streams to completion.
func (p *HTTPPlayer) run(ctx context.Context, cancel context.CancelFunc, loc Locator) {
	defer cancel()

	var errs []error
	for _, u := range loc.URLs {
		if ctx.Err() != nil {
			return
		}
		err := p.fetch(ctx, u)
		if err == nil {
			if p.events.OnEnded != nil {
				p.events.OnEnded(loc)
			}
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Warn("playback: source failed", "url", u, "err", err)
		errs = append(errs, err)
	}

	if p.events.OnError != nil {
		p.events.OnError(loc, fmt.Errorf("playback: all sources failed: %w", errors.Join(errs...)))
	}
}

// fetch downloads one source into the sink.
func (p *HTTPPlayer) fetch(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	if _, err := io.Copy(p.sink, resp.Body); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	return nil
}
