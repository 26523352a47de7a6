package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/faramesh/faracore-go/core"
)

func flakyHandler(calls *int32, failStatuses ...int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		if int(n) <= len(failStatuses) {
			w.WriteHeader(failStatuses[n-1])
			json.NewEncoder(w).Encode(map[string]string{"detail": "transient"})
			return
		}
		json.NewEncoder(w).Encode(core.Action{ID: "a1", Status: core.StatusAllowed})
	})
}

func TestRetry_RecoversFromTransientServerErrors(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, flakyHandler(&calls, 500, 503), func(cfg *Config) {
		cfg.MaxRetries = 3
	})

	a, err := c.Get(context.Background(), "a1")
	if err != nil {
		t.Fatalf("get after transient failures: %v", err)
	}
	if a.ID != "a1" {
		t.Fatalf("id = %q, want a1", a.ID)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("server saw %d calls, want 3", got)
	}
}

func TestRetry_ExhaustionSurfacesLastError(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, flakyHandler(&calls, 500, 500, 500, 500, 500), func(cfg *Config) {
		cfg.MaxRetries = 2
	})

	_, err := c.Get(context.Background(), "a1")
	if core.KindOf(err) != core.KindServer {
		t.Fatalf("kind = %v, want SERVER (err: %v)", core.KindOf(err), err)
	}
	// first attempt + 2 retries
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("server saw %d calls, want 3", got)
	}
}

func TestRetry_AuthErrorsNeverRetried(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, flakyHandler(&calls, 401, 401, 401), func(cfg *Config) {
		cfg.MaxRetries = 5
	})

	_, err := c.Get(context.Background(), "a1")
	if core.KindOf(err) != core.KindAuth {
		t.Fatalf("kind = %v, want AUTH", core.KindOf(err))
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("server saw %d calls, want exactly 1", got)
	}
}

func TestRetry_NotFoundNotRetried(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, flakyHandler(&calls, 404, 404), func(cfg *Config) {
		cfg.MaxRetries = 3
	})

	_, err := c.Get(context.Background(), "a1")
	if core.KindOf(err) != core.KindNotFound {
		t.Fatalf("kind = %v, want NOT_FOUND", core.KindOf(err))
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("server saw %d calls, want exactly 1", got)
	}
}

func TestRetry_429IsRetryable(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, flakyHandler(&calls, 429), func(cfg *Config) {
		cfg.MaxRetries = 2
	})

	if _, err := c.Get(context.Background(), "a1"); err != nil {
		t.Fatalf("get after 429: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("server saw %d calls, want 2", got)
	}
}

func TestRetry_ZeroMaxRetriesMeansSingleAttempt(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, flakyHandler(&calls, 500), func(cfg *Config) {
		cfg.MaxRetries = 0
	})

	_, err := c.Get(context.Background(), "a1")
	if core.KindOf(err) != core.KindServer {
		t.Fatalf("kind = %v, want SERVER", core.KindOf(err))
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("server saw %d calls, want exactly 1", got)
	}
}

func TestRetry_ExponentialBackoffLowerBound(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, flakyHandler(&calls, 500, 500), func(cfg *Config) {
		cfg.MaxRetries = 2
		cfg.RetryBackoff = 20 * time.Millisecond
	})

	start := time.Now()
	if _, err := c.Get(context.Background(), "a1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	// sleeps: 20ms after attempt 0, 40ms after attempt 1
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Fatalf("elapsed %v, want at least 60ms of backoff", elapsed)
	}
}

func TestRetry_ContextCancelStopsRetrying(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, flakyHandler(&calls, 500, 500, 500, 500), func(cfg *Config) {
		cfg.MaxRetries = 10
		cfg.RetryBackoff = 50 * time.Millisecond
	})

	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()

	if _, err := c.Get(ctx, "a1"); err == nil {
		t.Fatal("expected error after context cancellation")
	}
	if got := atomic.LoadInt32(&calls); got >= 5 {
		t.Fatalf("server saw %d calls, cancellation should have cut the loop short", got)
	}
}
