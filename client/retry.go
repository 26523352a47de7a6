package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"

	"github.com/faramesh/faracore-go/core"
	"github.com/faramesh/faracore-go/observability"
)

// execute runs a request through the retry policy: MaxRetries additional
// attempts after the first, sleeping backoff*2^n between attempts, no jitter.
// Auth failures and other non-retryable outcomes surface immediately.
func (c *Client) execute(ctx context.Context, method, path string, body interface{}, query url.Values, header http.Header) (json.RawMessage, error) {
	var raw json.RawMessage

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.MaxRetries)+1),
		retry.Delay(c.cfg.RetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(c.retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			observability.RetriesTotal.WithLabelValues(method, path).Inc()
			c.log.Warn("retrying request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)

	err := r.Do(func() error {
		var sendErr error
		raw, sendErr = c.tr.send(ctx, method, path, body, query, header)
		return sendErr
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// retryable reports whether a failed attempt may be tried again. Auth errors
// never are. Transport-level failures and the configured status codes are.
func (c *Client) retryable(err error) bool {
	switch core.KindOf(err) {
	case core.KindAuth:
		return false
	case core.KindConnection, core.KindTimeout:
		return true
	}
	var ce *core.Error
	if !errors.As(err, &ce) {
		return false
	}
	for _, s := range c.cfg.RetryableStatuses {
		if ce.Status == s {
			return true
		}
	}
	return ce.Status >= 500
}
