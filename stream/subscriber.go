// Package stream maintains a live push subscription to the governor's event
// feed and forwards every received action record into a sink. The sink's
// ordering guard decides what sticks; the subscriber only delivers.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/faramesh/faracore-go/core"
	"github.com/faramesh/faracore-go/observability"
)

// Sink receives every action record observed on the stream.
type Sink interface {
	Upsert(core.Action) bool
}

// OnReconnect runs after each successful (re)connect, before events flow.
// Typical use: a full poll to close the gap the outage opened.
type OnReconnect func(ctx context.Context) error

// Options configure a Subscriber. Zero values take defaults.
type Options struct {
	BaseURL        string
	Token          string
	ReconnectDelay time.Duration // default 5s, fixed delay, no backoff
	OnReconnect    OnReconnect
	Logger         *zap.Logger
}

// Subscriber holds one SSE subscription to /v1/events. Start it once; it
// reconnects on every failure until Close or context cancellation.
type Subscriber struct {
	opts Options
	sink Sink
	log  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func New(opts Options, sink Sink) *Subscriber {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{opts: opts, sink: sink, log: log}
}

// Start launches the subscription loop. Calling Start on a running
// subscriber is a no-op.
func (s *Subscriber) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Close tears the subscription down and waits for the loop to exit.
// Idempotent: closing twice, or closing a never-started subscriber, is safe.
func (s *Subscriber) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.started = false
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run reconnects forever with a fixed delay. Any exit from consume, clean or
// not, goes back through the same delay; there is no failure budget.
func (s *Subscriber) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer observability.StreamConnected.Set(0)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.consume(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("event stream lost", zap.Error(err))
		}
		observability.StreamConnected.Set(0)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.ReconnectDelay):
		}
	}
}

// consume opens one SSE connection and processes frames until it breaks.
func (s *Subscriber) consume(ctx context.Context) error {
	u := strings.TrimRight(s.opts.BaseURL, "/") + "/v1/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.Token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.Errorf(core.KindConnection, "event stream returned status %d", resp.StatusCode)
	}

	observability.StreamConnected.Set(1)
	observability.StreamReconnectsTotal.Inc()
	s.log.Info("event stream connected")

	if s.opts.OnReconnect != nil {
		if err := s.opts.OnReconnect(ctx); err != nil {
			s.log.Warn("reconnect sync failed", zap.Error(err))
		}
	}

	var eventType string
	var data strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				s.dispatch(eventType, data.String())
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		}
	}
	return scanner.Err()
}

type frameEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// dispatch decodes one frame and forwards the record. The governor sends
// unnamed frames whose data is a {type, data} envelope wrapping the action;
// named action.* frames carrying a bare record are accepted too. Malformed
// frames are dropped; the stream stays up.
func (s *Subscriber) dispatch(eventType, payload string) {
	record := json.RawMessage(payload)
	if eventType == "" || eventType == "message" {
		var env frameEnvelope
		if err := json.Unmarshal([]byte(payload), &env); err == nil && env.Type != "" {
			eventType = env.Type
			record = env.Data
		} else if eventType == "" {
			eventType = "message"
		}
	}
	observability.StreamEventsTotal.WithLabelValues(eventType).Inc()

	switch eventType {
	case "action.created", "action.updated", "message":
		var a core.Action
		if err := json.Unmarshal(record, &a); err != nil || a.ID == "" {
			observability.StreamDecodeErrorsTotal.Inc()
			s.log.Warn("dropping malformed event frame",
				zap.String("event", eventType), zap.Error(err))
			return
		}
		s.sink.Upsert(a)
		s.log.Debug("event applied",
			zap.String("event", eventType),
			zap.String("action_id", a.ID),
			zap.String("status", string(a.Status)),
		)
	default:
		s.log.Debug("ignoring event", zap.String("event", eventType))
	}
}
