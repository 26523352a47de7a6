// Package governortest provides an in-memory governor speaking the real HTTP
// and SSE surface, for exercising the client without a live deployment.
package governortest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/faramesh/faracore-go/core"
)

// Rule is a policy stub entry matched by tool (and optionally operation).
type Rule struct {
	Tool      string
	Operation string // empty matches any operation
	Decision  core.Decision
	Reason    string
	RiskLevel core.RiskLevel
}

// Governor is the fake. All exported methods are safe for concurrent use.
type Governor struct {
	mu       sync.Mutex
	actions  map[string]*core.Action
	events   map[string][]core.ActionEvent
	order    []string // submission order, oldest first
	idem     map[string]string
	rules    []Rule
	token    string
	failNext int // force 5xx on the next N requests

	// CompleteAfter finishes started actions (executing -> succeeded) after
	// the given delay. Zero leaves them executing.
	CompleteAfter time.Duration

	subsMu sync.Mutex
	subs   map[int]chan sseFrame
	nextID int

	srv *httptest.Server
}

type sseFrame struct {
	event  string
	action core.Action
}

func New() *Governor {
	g := &Governor{
		actions: make(map[string]*core.Action),
		events:  make(map[string][]core.ActionEvent),
		idem:    make(map[string]string),
		subs:    make(map[int]chan sseFrame),
	}
	g.srv = httptest.NewServer(g.router())
	return g
}

func (g *Governor) URL() string { return g.srv.URL }

func (g *Governor) Close() {
	g.srv.Close()
	g.subsMu.Lock()
	for id, ch := range g.subs {
		close(ch)
		delete(g.subs, id)
	}
	g.subsMu.Unlock()
}

// RequireToken makes every endpoint demand this bearer token.
func (g *Governor) RequireToken(token string) {
	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
}

// AddRule appends a policy stub rule. First match wins; no match allows.
func (g *Governor) AddRule(r Rule) {
	g.mu.Lock()
	g.rules = append(g.rules, r)
	g.mu.Unlock()
}

// FailNext makes the next n requests answer 503 before the handler runs.
func (g *Governor) FailNext(n int) {
	g.mu.Lock()
	g.failNext = n
	g.mu.Unlock()
}

// SetStatus moves an action to the given status and broadcasts the update.
func (g *Governor) SetStatus(id string, status core.Status) {
	g.mu.Lock()
	a, ok := g.actions[id]
	if !ok {
		g.mu.Unlock()
		return
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	g.appendEventLocked(id, "status."+string(status), nil)
	snapshot := *a
	g.mu.Unlock()
	g.broadcast("action.updated", snapshot)
}

// Action returns a copy of the stored record.
func (g *Governor) Action(id string) (core.Action, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.actions[id]
	if !ok {
		return core.Action{}, false
	}
	return *a, true
}

func (g *Governor) router() chi.Router {
	r := chi.NewRouter()
	r.Use(g.gate)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/actions", g.submit)
		r.Get("/actions", g.list)
		r.Get("/actions/{id}", g.get)
		r.Post("/actions/{id}/approval", g.approval)
		r.Post("/actions/{id}/start", g.start)
		r.Get("/actions/{id}/events", g.actionEvents)
		r.Get("/policy/info", g.policyInfo)
		r.Get("/events", g.sse)
	})
	return r
}

// gate enforces auth and the forced-failure counter.
func (g *Governor) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		if g.failNext > 0 {
			g.failNext--
			g.mu.Unlock()
			writeDetail(w, http.StatusServiceUnavailable, "governor unavailable")
			return
		}
		token := g.token
		g.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeDetail(w, http.StatusUnauthorized, "Invalid or missing authorization")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type submitBody struct {
	AgentID   string                 `json:"agent_id"`
	Tool      string                 `json:"tool"`
	Operation string                 `json:"operation"`
	Params    map[string]interface{} `json:"params"`
	Context   map[string]interface{} `json:"context"`
}

func (g *Governor) submit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed request body")
		return
	}
	if body.AgentID == "" || body.Tool == "" || body.Operation == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "agent_id, tool and operation are required")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		raw, _ := json.Marshal(body)
		key = core.ComputeRequestHash(raw, r.Method, r.URL.Path)
	}

	g.mu.Lock()
	if id, seen := g.idem[key]; seen {
		snapshot := *g.actions[id]
		g.mu.Unlock()
		writeJSON(w, http.StatusOK, snapshot)
		return
	}

	decision, reason, risk := g.decideLocked(body.Tool, body.Operation)
	now := time.Now().UTC()
	a := &core.Action{
		ID:        core.NewID(),
		AgentID:   body.AgentID,
		Tool:      body.Tool,
		Operation: body.Operation,
		Params:    orEmpty(body.Params),
		Context:   orEmpty(body.Context),
		Decision:  decision,
		Reason:    reason,
		RiskLevel: risk,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch decision {
	case core.DecisionDeny:
		a.Status = core.StatusDenied
	case core.DecisionRequireApproval:
		a.Status = core.StatusPendingApproval
		a.ApprovalToken = "tok-" + core.NewID()
	default:
		a.Status = core.StatusAllowed
	}

	g.actions[a.ID] = a
	g.order = append(g.order, a.ID)
	g.idem[key] = a.ID
	g.appendEventLocked(a.ID, "submitted", map[string]string{"agent_id": a.AgentID})
	g.appendEventLocked(a.ID, "decided", map[string]string{"decision": string(decision)})
	snapshot := *a
	g.mu.Unlock()

	g.broadcast("action.created", snapshot)
	writeJSON(w, http.StatusCreated, snapshot)
}

func (g *Governor) decideLocked(tool, operation string) (core.Decision, string, core.RiskLevel) {
	for _, rule := range g.rules {
		if rule.Tool != tool {
			continue
		}
		if rule.Operation != "" && rule.Operation != operation {
			continue
		}
		risk := rule.RiskLevel
		if risk == "" {
			risk = core.RiskMedium
		}
		return rule.Decision, rule.Reason, risk
	}
	return core.DecisionAllow, "no matching rule", core.RiskLow
}

func (g *Governor) get(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	a, ok := g.actions[chi.URLParam(r, "id")]
	if !ok {
		g.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Action not found")
		return
	}
	snapshot := *a
	g.mu.Unlock()
	writeJSON(w, http.StatusOK, snapshot)
}

func (g *Governor) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	g.mu.Lock()
	out := make([]core.Action, 0, len(g.order))
	// newest first
	for i := len(g.order) - 1; i >= 0; i-- {
		a := g.actions[g.order[i]]
		if v := q.Get("agent_id"); v != "" && a.AgentID != v {
			continue
		}
		if v := q.Get("tool"); v != "" && a.Tool != v {
			continue
		}
		if v := q.Get("status"); v != "" && string(a.Status) != v {
			continue
		}
		out = append(out, *a)
	}
	g.mu.Unlock()

	if offset > 0 {
		if offset > len(out) {
			offset = len(out)
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Governor) approval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token   string `json:"token"`
		Approve bool   `json:"approve"`
		Reason  string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	g.mu.Lock()
	a, ok := g.actions[chi.URLParam(r, "id")]
	if !ok {
		g.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Action not found")
		return
	}
	if a.Status != core.StatusPendingApproval {
		g.mu.Unlock()
		writeDetail(w, http.StatusBadRequest,
			fmt.Sprintf("Action is %s, not pending approval", a.Status))
		return
	}
	if body.Token != a.ApprovalToken {
		g.mu.Unlock()
		writeDetail(w, http.StatusUnauthorized, "Invalid approval token")
		return
	}

	if body.Approve {
		a.Status = core.StatusApproved
		g.appendEventLocked(a.ID, "approved", nil)
	} else {
		a.Status = core.StatusDenied
		a.Reason = body.Reason
		if a.Reason == "" {
			a.Reason = "denied by approver"
		}
		g.appendEventLocked(a.ID, "denied", nil)
	}
	a.ApprovalToken = ""
	a.UpdatedAt = time.Now().UTC()
	snapshot := *a
	g.mu.Unlock()

	g.broadcast("action.updated", snapshot)
	writeJSON(w, http.StatusOK, snapshot)
}

func (g *Governor) start(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	a, ok := g.actions[chi.URLParam(r, "id")]
	if !ok {
		g.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Action not found")
		return
	}
	if !a.Startable() {
		g.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Action is not executable")
		return
	}
	a.Status = core.StatusExecuting
	a.UpdatedAt = time.Now().UTC()
	g.appendEventLocked(a.ID, "started", nil)
	snapshot := *a
	complete := g.CompleteAfter
	g.mu.Unlock()

	g.broadcast("action.updated", snapshot)
	if complete > 0 {
		id := snapshot.ID
		time.AfterFunc(complete, func() {
			g.SetStatus(id, core.StatusSucceeded)
		})
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (g *Governor) actionEvents(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	evs, ok := g.events[chi.URLParam(r, "id")]
	if !ok {
		if _, exists := g.actions[chi.URLParam(r, "id")]; !exists {
			g.mu.Unlock()
			writeDetail(w, http.StatusNotFound, "Action not found")
			return
		}
	}
	out := append([]core.ActionEvent(nil), evs...)
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}

func (g *Governor) policyInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.PolicyInfo{
		PolicyFile:    "policy.yaml",
		PolicyPath:    "/etc/faracore/policy.yaml",
		Exists:        true,
		PolicyVersion: "test",
	})
}

func (g *Governor) sse(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ch := make(chan sseFrame, 64)
	g.subsMu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = ch
	g.subsMu.Unlock()
	defer func() {
		g.subsMu.Lock()
		if _, still := g.subs[id]; still {
			delete(g.subs, id)
			close(ch)
		}
		g.subsMu.Unlock()
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			// unnamed frame, {type, data} envelope in the data payload
			b, _ := json.Marshal(map[string]interface{}{
				"type": frame.event,
				"data": frame.action,
			})
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}

func (g *Governor) broadcast(event string, a core.Action) {
	g.subsMu.Lock()
	for _, ch := range g.subs {
		select {
		case ch <- sseFrame{event: event, action: a}:
		default:
		}
	}
	g.subsMu.Unlock()
}

func (g *Governor) appendEventLocked(actionID, eventType string, meta interface{}) {
	var raw json.RawMessage
	if meta != nil {
		raw, _ = json.Marshal(meta)
	}
	g.events[actionID] = append(g.events[actionID], core.ActionEvent{
		ID:        core.NewID(),
		ActionID:  actionID,
		EventType: eventType,
		Meta:      raw,
		CreatedAt: time.Now().UTC(),
	})
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
