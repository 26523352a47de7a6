package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/faramesh/faracore-go/core"
	"github.com/faramesh/faracore-go/observability"
)

// transport issues exactly one HTTP request per send call. Retry decisions
// belong to the layer above; auth and timeout handling live here.
type transport struct {
	cfg   Config
	httpc *http.Client
	log   *zap.Logger
}

func newTransport(cfg Config, log *zap.Logger) *transport {
	return &transport{cfg: cfg, httpc: &http.Client{}, log: log}
}

func (t *transport) send(ctx context.Context, method, path string, body interface{}, query url.Values, header http.Header) (json.RawMessage, error) {
	u := strings.TrimRight(t.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, core.Errorf(core.KindValidation, "encode request body: %v", err)
		}
		rd = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, core.Errorf(core.KindValidation, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	t.guard(func() {
		if t.cfg.OnRequestStart != nil {
			t.cfg.OnRequestStart(method, path)
		}
	})

	start := time.Now()
	resp, err := t.httpc.Do(req)
	if err != nil {
		cerr := t.classify(err)
		t.finish(method, path, 0, time.Since(start), cerr)
		return nil, cerr
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if readErr != nil {
		cerr := t.classify(readErr)
		t.finish(method, path, resp.StatusCode, elapsed, cerr)
		return nil, cerr
	}

	if resp.StatusCode >= 400 {
		herr := errorFromResponse(resp.StatusCode, raw, path)
		t.finish(method, path, resp.StatusCode, elapsed, herr)
		return nil, herr
	}

	t.finish(method, path, resp.StatusCode, elapsed, nil)
	return raw, nil
}

// finish records metrics, logs and fires the end/error callbacks. Status is 0
// when no response was received.
func (t *transport) finish(method, path string, status int, elapsed time.Duration, reqErr error) {
	observability.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	observability.RequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())

	if reqErr != nil {
		t.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.Error(reqErr),
		)
		t.guard(func() {
			if t.cfg.OnError != nil {
				t.cfg.OnError(reqErr)
			}
		})
	} else {
		t.log.Debug("request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
		)
	}

	t.guard(func() {
		if t.cfg.OnRequestEnd != nil {
			t.cfg.OnRequestEnd(method, path, status, elapsed)
		}
	})
}

// guard keeps callback panics away from the request outcome.
func (t *transport) guard(f func()) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Warn("lifecycle callback panicked", zap.Any("panic", r))
		}
	}()
	f()
}

// classify maps a transport-level failure: deadline expiry is a Timeout,
// everything else that produced no response is a Connection error.
func (t *transport) classify(err error) *core.Error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &core.Error{
			Kind:    core.KindTimeout,
			Message: fmt.Sprintf("request timed out after %s", t.cfg.Timeout),
			Cause:   err,
		}
	}
	return &core.Error{
		Kind:    core.KindConnection,
		Message: fmt.Sprintf("failed to connect to %s", t.cfg.BaseURL),
		Cause:   err,
	}
}

// errorFromResponse maps a non-2xx response to its taxonomy kind.
func errorFromResponse(status int, body []byte, path string) *core.Error {
	detail := parseDetail(body)
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &core.Error{
		Kind:    core.KindForStatus(status),
		Status:  status,
		Message: fmt.Sprintf("%s on %s", detail, path),
	}
}

// parseDetail extracts the governor's {"detail": ...} error payload. The
// detail is a string except for 422, where FastAPI-style validators send a
// structured list.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}
	return string(envelope.Detail)
}
