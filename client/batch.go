package client

import (
	"context"

	"go.uber.org/zap"

	"github.com/faramesh/faracore-go/core"
)

// SubmitAll submits each request in order and keeps going past failures.
// When some items fail, the successes are returned alongside a BatchError
// carrying the per-item failures; with no failures the error is nil.
func (c *Client) SubmitAll(ctx context.Context, reqs []SubmitRequest) ([]core.Action, error) {
	var (
		successes []core.Action
		failures  []core.BatchItemError
	)
	for i, req := range reqs {
		a, err := c.Submit(ctx, req)
		if err != nil {
			c.log.Warn("batch item failed",
				zap.Int("index", i),
				zap.String("tool", req.Tool),
				zap.Error(err),
			)
			failures = append(failures, core.BatchItemError{Index: i, Err: err})
			continue
		}
		successes = append(successes, a)
	}
	if len(failures) > 0 {
		return successes, &core.BatchError{Successes: successes, Items: failures}
	}
	return successes, nil
}
