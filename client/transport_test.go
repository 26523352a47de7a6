package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/faramesh/faracore-go/core"
)

func asCoreError(err error, target **core.Error) bool {
	return errors.As(err, target)
}

func asBatchError(err error, target **core.BatchError) bool {
	return errors.As(err, target)
}

func newTestClient(t *testing.T, handler http.Handler, mutate func(*Config)) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := Config{
		BaseURL:      srv.URL,
		Token:        "test-token",
		Timeout:      2 * time.Second,
		MaxRetries:   0,
		RetryBackoff: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, nil), srv
}

func TestTransport_SetsAuthHeader(t *testing.T) {
	var gotAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(core.Action{ID: "a1", Status: core.StatusAllowed})
	}), nil)

	if _, err := c.Get(context.Background(), "a1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("authorization header = %q, want Bearer test-token", gotAuth)
	}
}

func TestTransport_NoTokenNoHeader(t *testing.T) {
	var present bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["Authorization"]
		json.NewEncoder(w).Encode(core.Action{ID: "a1", Status: core.StatusAllowed})
	}), func(cfg *Config) { cfg.Token = "" })

	if _, err := c.Get(context.Background(), "a1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if present {
		t.Fatal("authorization header sent without a configured token")
	}
}

func TestTransport_TimeoutMapsToKindTimeout(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}), func(cfg *Config) { cfg.Timeout = 20 * time.Millisecond })

	_, err := c.Get(context.Background(), "a1")
	if core.KindOf(err) != core.KindTimeout {
		t.Fatalf("kind = %v, want TIMEOUT (err: %v)", core.KindOf(err), err)
	}
}

func TestTransport_ConnectionRefusedMapsToKindConnection(t *testing.T) {
	c := New(Config{
		BaseURL: "http://127.0.0.1:1", // nothing listens here
		Timeout: time.Second,
	}, nil)

	_, err := c.Get(context.Background(), "a1")
	if core.KindOf(err) != core.KindConnection {
		t.Fatalf("kind = %v, want CONNECTION (err: %v)", core.KindOf(err), err)
	}
}

func TestTransport_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   core.Kind
	}{
		{401, core.KindAuth},
		{404, core.KindNotFound},
		{422, core.KindValidation},
		{400, core.KindConflict},
		{409, core.KindConflict},
		{500, core.KindServer},
		{503, core.KindServer},
	}
	for _, tc := range cases {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			json.NewEncoder(w).Encode(map[string]string{"detail": "boom"})
		}), nil)

		_, err := c.Get(context.Background(), "a1")
		if core.KindOf(err) != tc.want {
			t.Errorf("status %d: kind = %v, want %v", tc.status, core.KindOf(err), tc.want)
		}
		var ce *core.Error
		if !asCoreError(err, &ce) || ce.Status != tc.status {
			t.Errorf("status %d: error did not preserve the HTTP status: %v", tc.status, err)
		}
	}
}

func TestTransport_DetailInMessage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Action not found"})
	}), nil)

	_, err := c.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *core.Error
	if !asCoreError(err, &ce) {
		t.Fatalf("not a typed error: %v", err)
	}
	if want := "Action not found on /v1/actions/missing"; ce.Message != want {
		t.Fatalf("message = %q, want %q", ce.Message, want)
	}
}

func TestTransport_CallbackPanicDoesNotFailRequest(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(core.Action{ID: "a1", Status: core.StatusAllowed})
	}), func(cfg *Config) {
		cfg.OnRequestEnd = func(string, string, int, time.Duration) { panic("callback bug") }
	})

	if _, err := c.Get(context.Background(), "a1"); err != nil {
		t.Fatalf("panicking callback changed the outcome: %v", err)
	}
}

func TestTransport_Callbacks(t *testing.T) {
	var starts, ends int
	var endStatus int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(core.Action{ID: "a1", Status: core.StatusAllowed})
	}), func(cfg *Config) {
		cfg.OnRequestStart = func(method, path string) { starts++ }
		cfg.OnRequestEnd = func(method, path string, status int, elapsed time.Duration) {
			ends++
			endStatus = status
		}
	})

	if _, err := c.Get(context.Background(), "a1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if starts != 1 || ends != 1 {
		t.Fatalf("starts=%d ends=%d, want 1/1", starts, ends)
	}
	if endStatus != 200 {
		t.Fatalf("end status = %d, want 200", endStatus)
	}
}
