package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestConcurrencyMiddleware_RejectsWhenSendSlotsAreBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once

	// handler que segura a vaga (envio de e-mail lento) até liberarmos.
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedOnce.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusAccepted)
	})

	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Max:            1,
		AcquireTimeout: 25 * time.Millisecond,
	})(next)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r1 := httptest.NewRequest(http.MethodPost, "http://example/api/booking", nil)
		w1 := httptest.NewRecorder()
		h.ServeHTTP(w1, r1)
		if w1.Code != http.StatusAccepted {
			t.Errorf("expected first request 202, got %d", w1.Code)
		}
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		close(release)
		wg.Wait()
		t.Fatalf("timeout waiting first request to start")
	}

	// a segunda roda no próprio goroutine do teste e falha por timeout
	r2 := httptest.NewRequest(http.MethodPost, "http://example/api/booking", nil)
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r2)

	close(release)
	wg.Wait()

	if w2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected second request 503, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After=1, got %q", got)
	}
}

func TestConcurrencyMiddleware_DisabledPassesThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	h := ConcurrencyMiddleware(ConcurrencyOptions{Max: 0})(next)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example/", nil))

	if !called {
		t.Fatalf("expected next handler to be called")
	}
}
