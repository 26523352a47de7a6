package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/faramesh/faracore-go/core"
	"github.com/faramesh/faracore-go/observability"
)

// WaitOptions tune the polling loops. Zero values take the documented
// defaults: 1s poll interval, 60s overall timeout.
type WaitOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration

	// SubmitAndWait only.
	RequireApproval bool // block through pending_approval instead of failing fast
	AutoStart       bool // call Start once the action becomes startable
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	return o
}

// WaitForCompletion polls until the action reaches a terminal state. A denial
// observed mid-wait surfaces as KindDenied; running out of time surfaces as
// KindTimeout carrying the last observed status.
func (c *Client) WaitForCompletion(ctx context.Context, id string, opts WaitOptions) (core.Action, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)
	last := core.Status("unknown")

	for {
		a, err := c.Get(ctx, id)
		if err != nil {
			return core.Action{}, err
		}
		last = a.Status
		if a.IsTerminal() {
			return a, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return core.Action{}, core.Errorf(core.KindTimeout,
				"action %s did not complete within %s (status: %s)", id, opts.Timeout, last)
		}
		wait := opts.PollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return core.Action{}, waitCancelErr(ctx)
		case <-time.After(wait):
		}
	}
}

// waitCancelErr maps a poll loop's context failure: a caller deadline is a
// Timeout like our own, an explicit cancel is a Connection error.
func waitCancelErr(ctx context.Context) *core.Error {
	kind := core.KindConnection
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = core.KindTimeout
	}
	return &core.Error{
		Kind:    kind,
		Message: "wait cancelled",
		Cause:   ctx.Err(),
	}
}

// BlockUntilApproved polls a pending_approval action until a human resolves
// it, returning the approved record or KindDenied.
func (c *Client) BlockUntilApproved(ctx context.Context, id string, opts WaitOptions) (core.Action, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)

	for {
		a, err := c.Get(ctx, id)
		if err != nil {
			return core.Action{}, err
		}
		if a.Status != core.StatusPendingApproval {
			return a, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return core.Action{}, core.Errorf(core.KindTimeout,
				"action %s was not approved within %s", id, opts.Timeout)
		}
		wait := opts.PollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return core.Action{}, waitCancelErr(ctx)
		case <-time.After(wait):
		}
	}
}

// SubmitAndWait is the one-call happy path: submit, ride out an approval gate
// if RequireApproval is set, optionally auto-start, then wait for a terminal
// state.
func (c *Client) SubmitAndWait(ctx context.Context, req SubmitRequest, opts WaitOptions) (core.Action, error) {
	opts = opts.withDefaults()

	a, err := c.Submit(ctx, req)
	if err != nil {
		return a, err
	}
	log := observability.ActionLogger(c.log, a.ID, req.Tool, req.Operation)

	if a.Status == core.StatusPendingApproval {
		if !opts.RequireApproval {
			return a, core.Errorf(core.KindConflict,
				"action %s requires approval; set RequireApproval to block on it", a.ID)
		}
		log.Info("waiting for approval")
		a, err = c.BlockUntilApproved(ctx, a.ID, opts)
		if err != nil {
			return core.Action{}, err
		}
	}

	if opts.AutoStart && a.Startable() {
		a, err = c.Start(ctx, a.ID)
		if err != nil {
			return core.Action{}, err
		}
		log.Info("action started", zap.String("status", string(a.Status)))
	}

	if a.IsTerminal() {
		return a, nil
	}
	return c.WaitForCompletion(ctx, a.ID, opts)
}
