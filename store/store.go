// Package store keeps the client-side mirror of governor actions. Records
// arrive from two competing sources (poll responses and push events) and are
// reconciled by id with an ordering guard on updated_at.
package store

import (
	"sort"
	"sync"

	"github.com/faramesh/faracore-go/core"
	"github.com/faramesh/faracore-go/observability"
)

// Store is an in-memory, id-keyed action mirror. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	actions    map[string]core.Action
	subs       map[int]chan core.Action
	nextSub    int
	staleDrops int64

	// strict drops any incoming record not strictly newer than the current
	// one, so a stale poll result can never roll back a push update.
	strict bool
}

// New returns a store with the ordering guard on. An incoming record with
// updated_at at or before the current record's is dropped.
func New() *Store {
	return &Store{
		actions: make(map[string]core.Action),
		subs:    make(map[int]chan core.Action),
		strict:  true,
	}
}

// NewLastWriteWins returns a store without the ordering guard: every incoming
// record replaces the current one. Only suitable when a single source feeds
// the store.
func NewLastWriteWins() *Store {
	s := New()
	s.strict = false
	return s
}

// Upsert merges one incoming record. Returns true when the record was
// accepted, false when the ordering guard dropped it as stale. Whole-record
// replacement only; fields are never merged across records.
func (s *Store) Upsert(incoming core.Action) bool {
	if incoming.ID == "" {
		return false
	}

	s.mu.Lock()
	current, exists := s.actions[incoming.ID]
	if exists && s.strict && !incoming.UpdatedAt.After(current.UpdatedAt) {
		s.staleDrops++
		s.mu.Unlock()
		observability.StoreStaleDropsTotal.Inc()
		return false
	}
	s.actions[incoming.ID] = incoming
	size := len(s.actions)
	// Notify under the lock so a concurrent cancel cannot close a channel
	// mid-send. Sends are non-blocking; a slow subscriber loses updates
	// rather than stalling the merge path.
	for _, ch := range s.subs {
		select {
		case ch <- incoming:
		default:
		}
	}
	s.mu.Unlock()

	observability.StoreUpsertsTotal.Inc()
	observability.StoreActions.Set(float64(size))
	return true
}

// UpsertAll reconciles a full poll response, returning how many records were
// accepted.
func (s *Store) UpsertAll(actions []core.Action) int {
	accepted := 0
	for _, a := range actions {
		if s.Upsert(a) {
			accepted++
		}
	}
	return accepted
}

// Get returns the current record for id.
func (s *Store) Get(id string) (core.Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	return a, ok
}

// All returns every tracked action, newest submissions first.
func (s *Store) All() []core.Action {
	s.mu.RLock()
	out := make([]core.Action, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of tracked actions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actions)
}

// StaleDrops returns how many upserts the ordering guard has rejected.
func (s *Store) StaleDrops() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staleDrops
}

// Subscribe registers for accepted upserts. The returned cancel func
// unregisters and closes the channel; cancelling twice is safe.
func (s *Store) Subscribe(buffer int) (<-chan core.Action, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan core.Action, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
