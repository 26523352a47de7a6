package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/faramesh/faracore-go/core"
)

// Client talks to a FaraCore governor over HTTP. Safe for concurrent use.
type Client struct {
	cfg Config
	tr  *transport
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		tr:  newTransport(cfg, log),
		log: log,
	}
}

// SubmitRequest describes an action to be submitted for governance.
type SubmitRequest struct {
	AgentID   string                 `json:"agent_id"`
	Tool      string                 `json:"tool"`
	Operation string                 `json:"operation"`
	Params    map[string]interface{} `json:"params"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

func (r *SubmitRequest) validate() error {
	if r.AgentID == "" {
		return core.NewError(core.KindValidation, "agent_id is required")
	}
	if r.Tool == "" {
		return core.NewError(core.KindValidation, "tool is required")
	}
	if r.Operation == "" {
		return core.NewError(core.KindValidation, "operation is required")
	}
	return nil
}

// Submit sends one action for a policy decision. The same idempotency key is
// reused across retry attempts, so a retried submit never double-creates.
// Returns KindDenied when the governor decided deny.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (core.Action, error) {
	if err := req.validate(); err != nil {
		return core.Action{}, err
	}
	if req.Params == nil {
		req.Params = map[string]interface{}{}
	}

	header := http.Header{}
	header.Set("Idempotency-Key", core.NewID())

	raw, err := c.execute(ctx, http.MethodPost, "/v1/actions", req, nil, header)
	if err != nil {
		return core.Action{}, err
	}
	a, err := decodeAction(raw)
	if err != nil {
		return core.Action{}, err
	}
	if err := assertSubmitDecision(a); err != nil {
		return a, err
	}
	return a, nil
}

// Get fetches the current record of one action.
// A record the governor has denied comes back as a KindDenied error.
func (c *Client) Get(ctx context.Context, id string) (core.Action, error) {
	if id == "" {
		return core.Action{}, core.NewError(core.KindValidation, "action id is required")
	}
	raw, err := c.execute(ctx, http.MethodGet, "/v1/actions/"+id, nil, nil, nil)
	if err != nil {
		return core.Action{}, err
	}
	a, err := decodeAction(raw)
	if err != nil {
		return core.Action{}, err
	}
	if err := assertDecision(a); err != nil {
		return a, err
	}
	return a, nil
}

// ListOptions filter the action listing. Zero values mean "no filter".
type ListOptions struct {
	Limit   int
	Offset  int
	AgentID string
	Tool    string
	Status  core.Status
}

// List fetches actions, newest first. Accepts both a bare array body and an
// {"actions": [...]} envelope; an envelope carrying its own deny decision is
// surfaced as KindDenied.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]core.Action, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.AgentID != "" {
		q.Set("agent_id", opts.AgentID)
	}
	if opts.Tool != "" {
		q.Set("tool", opts.Tool)
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}

	raw, err := c.execute(ctx, http.MethodGet, "/v1/actions", nil, q, nil)
	if err != nil {
		return nil, err
	}

	var actions []core.Action
	if err := json.Unmarshal(raw, &actions); err == nil {
		return actions, nil
	}

	var envelope struct {
		Actions  []core.Action `json:"actions"`
		Decision core.Decision `json:"decision"`
		Reason   string        `json:"reason"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, core.Errorf(core.KindServer, "decode list response: %v", err)
	}
	if envelope.Decision == core.DecisionDeny {
		return nil, &core.Error{
			Kind:    core.KindDenied,
			Message: deniedMessage(envelope.Reason),
			Reason:  envelope.Reason,
		}
	}
	return envelope.Actions, nil
}

// Approve resolves a pending approval. With an empty token the client fetches
// the action and uses its own approval token, covering the operator-is-owner
// flow. The optional reason is recorded on the action.
func (c *Client) Approve(ctx context.Context, id, token, reason string) (core.Action, error) {
	return c.resolve(ctx, id, token, reason, true)
}

// Deny resolves a pending approval negatively. Empty-token handling matches
// Approve.
func (c *Client) Deny(ctx context.Context, id, token, reason string) (core.Action, error) {
	return c.resolve(ctx, id, token, reason, false)
}

type approvalBody struct {
	Token   string `json:"token"`
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

func (c *Client) resolve(ctx context.Context, id, token, reason string, approve bool) (core.Action, error) {
	if id == "" {
		return core.Action{}, core.NewError(core.KindValidation, "action id is required")
	}
	if token == "" {
		current, err := c.Get(ctx, id)
		if err != nil {
			return core.Action{}, err
		}
		if current.Status != core.StatusPendingApproval {
			return core.Action{}, core.Errorf(core.KindConflict,
				"action %s is %s, not pending approval", id, current.Status)
		}
		token = current.ApprovalToken
	}

	body := approvalBody{Token: token, Approve: approve, Reason: reason}
	raw, err := c.execute(ctx, http.MethodPost, "/v1/actions/"+id+"/approval", body, nil, nil)
	if err != nil {
		return core.Action{}, reclassifyStaleToken(err)
	}
	return decodeAction(raw)
}

// Start marks an allowed or approved action as executing. The governor answers
// 400 when the action is not startable, which maps to KindConflict.
func (c *Client) Start(ctx context.Context, id string) (core.Action, error) {
	if id == "" {
		return core.Action{}, core.NewError(core.KindValidation, "action id is required")
	}
	raw, err := c.execute(ctx, http.MethodPost, "/v1/actions/"+id+"/start", nil, nil, nil)
	if err != nil {
		return core.Action{}, err
	}
	return decodeAction(raw)
}

// Replay resubmits a terminal action as a fresh one, carrying a back-pointer
// to the original in its context.
func (c *Client) Replay(ctx context.Context, id string) (core.Action, error) {
	original, err := c.Get(ctx, id)
	if err != nil {
		if core.KindOf(err) != core.KindDenied {
			return core.Action{}, err
		}
		// A denied record is still replayable; refetch without the assertion.
		original, err = c.fetchRaw(ctx, id)
		if err != nil {
			return core.Action{}, err
		}
	}
	if !original.IsTerminal() {
		return core.Action{}, core.Errorf(core.KindConflict,
			"action %s is %s; only finished actions can be replayed", id, original.Status)
	}

	replayCtx := map[string]interface{}{}
	for k, v := range original.Context {
		replayCtx[k] = v
	}
	replayCtx["replayed_from"] = original.ID
	replayCtx["replay"] = true

	return c.Submit(ctx, SubmitRequest{
		AgentID:   original.AgentID,
		Tool:      original.Tool,
		Operation: original.Operation,
		Params:    original.Params,
		Context:   replayCtx,
	})
}

// fetchRaw is Get without the decision assertion.
func (c *Client) fetchRaw(ctx context.Context, id string) (core.Action, error) {
	raw, err := c.execute(ctx, http.MethodGet, "/v1/actions/"+id, nil, nil, nil)
	if err != nil {
		return core.Action{}, err
	}
	return decodeAction(raw)
}

// Events returns the audit trail of an action, oldest first.
func (c *Client) Events(ctx context.Context, id string) ([]core.ActionEvent, error) {
	if id == "" {
		return nil, core.NewError(core.KindValidation, "action id is required")
	}
	raw, err := c.execute(ctx, http.MethodGet, "/v1/actions/"+id+"/events", nil, nil, nil)
	if err != nil {
		return nil, err
	}

	var events []core.ActionEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		var envelope struct {
			Events []core.ActionEvent `json:"events"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, core.Errorf(core.KindServer, "decode events response: %v", err)
		}
		events = envelope.Events
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// PolicyInfo reports which policy file the governor is currently enforcing.
func (c *Client) PolicyInfo(ctx context.Context) (core.PolicyInfo, error) {
	raw, err := c.execute(ctx, http.MethodGet, "/v1/policy/info", nil, nil, nil)
	if err != nil {
		return core.PolicyInfo{}, err
	}
	var info core.PolicyInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return core.PolicyInfo{}, core.Errorf(core.KindServer, "decode policy info: %v", err)
	}
	return info, nil
}

func decodeAction(raw json.RawMessage) (core.Action, error) {
	var a core.Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return core.Action{}, core.Errorf(core.KindServer, "decode action response: %v", err)
	}
	return a, nil
}

// assertDecision converts a well-formed but denied record into the error the
// caller actually has to handle.
func assertDecision(a core.Action) error {
	if a.Status == core.StatusDenied || a.Decision == core.DecisionDeny {
		return &core.Error{
			Kind:    core.KindDenied,
			Message: deniedMessage(a.Reason),
			Reason:  a.Reason,
		}
	}
	return nil
}

// assertSubmitDecision is the submit-time variant: a deny decision that is
// waiting on human approval is not yet a denial.
func assertSubmitDecision(a core.Action) error {
	if a.Status == core.StatusDenied {
		return &core.Error{
			Kind:    core.KindDenied,
			Message: deniedMessage(a.Reason),
			Reason:  a.Reason,
		}
	}
	if a.Decision == core.DecisionDeny && a.Status != core.StatusPendingApproval {
		return &core.Error{
			Kind:    core.KindDenied,
			Message: deniedMessage(a.Reason),
			Reason:  a.Reason,
		}
	}
	return nil
}

func deniedMessage(reason string) string {
	if reason == "" {
		return "action denied by policy"
	}
	return fmt.Sprintf("action denied by policy: %s", reason)
}

// reclassifyStaleToken turns the governor's 401 for a wrong approval token
// into a Conflict. The credential on the request was fine; the token the
// caller presented no longer matches, usually because the action was already
// resolved.
func reclassifyStaleToken(err error) error {
	var ce *core.Error
	if errors.As(err, &ce) && ce.Kind == core.KindAuth && ce.Status == 401 {
		return &core.Error{
			Kind:    core.KindConflict,
			Status:  ce.Status,
			Message: ce.Message,
			Cause:   ce,
		}
	}
	return err
}
