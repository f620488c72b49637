package playback

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

// syncBuffer is a goroutine-safe Sink for tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHTTPPlayerPlaysFirstSource(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	sink := &syncBuffer{}
	ended := make(chan Locator, 1)
	p := NewHTTPPlayer(srv.Client(), sink, Events{
		OnEnded: func(loc Locator) { ended <- loc },
	})

	loc := Locator{PassageID: "114", VerseID: 1, URLs: []string{srv.URL + "/114001.mp3"}}
	p.Play(context.Background(), loc)

	select {
	case got := <-ended:
		if got.VerseID != 1 {
			t.Errorf("OnEnded locator = %+v", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for OnEnded")
	}
	if sink.String() != "audio-bytes" {
		t.Errorf("sink received %q", sink.String())
	}
}

func TestHTTPPlayerFallsBackAcrossSources(t *testing.T) {
	t.Parallel()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("mirror-audio"))
	}))
	defer good.Close()

	sink := &syncBuffer{}
	ended := make(chan Locator, 1)
	p := NewHTTPPlayer(nil, sink, Events{
		OnEnded: func(loc Locator) { ended <- loc },
	})

	loc := Locator{URLs: []string{bad.URL + "/a.mp3", good.URL + "/a.mp3"}}
	p.Play(context.Background(), loc)

	select {
	case <-ended:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for fallback playback")
	}
	if sink.String() != "mirror-audio" {
		t.Errorf("sink received %q", sink.String())
	}
}

func TestHTTPPlayerReportsErrorWhenAllSourcesFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	errs := make(chan error, 1)
	p := NewHTTPPlayer(srv.Client(), &syncBuffer{}, Events{
		OnError: func(_ Locator, err error) { errs <- err },
	})

	p.Play(context.Background(), Locator{URLs: []string{srv.URL + "/a.mp3", srv.URL + "/b.mp3"}})

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("nil error reported")
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for OnError")
	}
}

func TestHTTPPlayerStopSuppressesCallbacks(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()
	defer close(release)

	ended := make(chan Locator, 1)
	errs := make(chan error, 1)
	p := NewHTTPPlayer(srv.Client(), &syncBuffer{}, Events{
		OnEnded: func(loc Locator) { ended <- loc },
		OnError: func(_ Locator, err error) { errs <- err },
	})

	p.Play(context.Background(), Locator{URLs: []string{srv.URL + "/a.mp3"}})
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	select {
	case <-ended:
		t.Fatal("OnEnded fired after Stop")
	case err := <-errs:
		t.Fatalf("OnError fired after Stop: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}
