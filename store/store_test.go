package store

import (
	"testing"
	"time"

	"github.com/faramesh/faracore-go/core"
)

func action(id string, status core.Status, updated time.Time) core.Action {
	return core.Action{
		ID:        id,
		Status:    status,
		CreatedAt: updated.Add(-time.Minute),
		UpdatedAt: updated,
	}
}

func TestUpsert_InsertAndReplace(t *testing.T) {
	s := New()
	now := time.Now().UTC()

	if !s.Upsert(action("a1", core.StatusExecuting, now)) {
		t.Fatal("insert rejected")
	}
	if !s.Upsert(action("a1", core.StatusSucceeded, now.Add(time.Second))) {
		t.Fatal("newer record rejected")
	}

	got, ok := s.Get("a1")
	if !ok || got.Status != core.StatusSucceeded {
		t.Fatalf("got %+v, want succeeded", got)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestUpsert_StaleDropped(t *testing.T) {
	s := New()
	now := time.Now().UTC()

	s.Upsert(action("a1", core.StatusSucceeded, now))
	if s.Upsert(action("a1", core.StatusExecuting, now.Add(-time.Second))) {
		t.Fatal("stale record accepted")
	}

	got, _ := s.Get("a1")
	if got.Status != core.StatusSucceeded {
		t.Fatalf("stale record rolled back the state to %v", got.Status)
	}
	if s.StaleDrops() != 1 {
		t.Fatalf("stale drops = %d, want 1", s.StaleDrops())
	}
}

func TestUpsert_EqualTimestampDropped(t *testing.T) {
	s := New()
	now := time.Now().UTC()

	s.Upsert(action("a1", core.StatusExecuting, now))
	if s.Upsert(action("a1", core.StatusExecuting, now)) {
		t.Fatal("record with equal updated_at accepted under strict ordering")
	}
}

func TestUpsert_EmptyIDRejected(t *testing.T) {
	s := New()
	if s.Upsert(core.Action{}) {
		t.Fatal("record without id accepted")
	}
}

func TestLastWriteWins_AcceptsStale(t *testing.T) {
	s := NewLastWriteWins()
	now := time.Now().UTC()

	s.Upsert(action("a1", core.StatusSucceeded, now))
	if !s.Upsert(action("a1", core.StatusExecuting, now.Add(-time.Second))) {
		t.Fatal("last-write-wins store dropped a record")
	}
	got, _ := s.Get("a1")
	if got.Status != core.StatusExecuting {
		t.Fatalf("status = %v, want executing", got.Status)
	}
}

func TestUpsertAll_CountsAccepted(t *testing.T) {
	s := New()
	now := time.Now().UTC()
	s.Upsert(action("a1", core.StatusSucceeded, now))

	accepted := s.UpsertAll([]core.Action{
		action("a1", core.StatusExecuting, now.Add(-time.Second)), // stale
		action("a2", core.StatusAllowed, now),
		action("a3", core.StatusPendingApproval, now),
	})
	if accepted != 2 {
		t.Fatalf("accepted = %d, want 2", accepted)
	}
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
}

func TestAll_NewestFirst(t *testing.T) {
	s := New()
	now := time.Now().UTC()
	s.Upsert(core.Action{ID: "old", CreatedAt: now.Add(-time.Hour), UpdatedAt: now})
	s.Upsert(core.Action{ID: "new", CreatedAt: now, UpdatedAt: now})

	all := s.All()
	if len(all) != 2 || all[0].ID != "new" || all[1].ID != "old" {
		t.Fatalf("order = %v, want [new old]", []string{all[0].ID, all[1].ID})
	}
}

func TestSubscribe_ReceivesAcceptedUpserts(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe(4)
	defer cancel()

	now := time.Now().UTC()
	s.Upsert(action("a1", core.StatusExecuting, now))
	s.Upsert(action("a1", core.StatusExecuting, now)) // stale, no notification
	s.Upsert(action("a1", core.StatusSucceeded, now.Add(time.Second)))

	var got []core.Status
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case a := <-ch:
			got = append(got, a.Status)
		case <-timeout:
			t.Fatalf("received %v, want 2 notifications", got)
		}
	}
	if got[0] != core.StatusExecuting || got[1] != core.StatusSucceeded {
		t.Fatalf("notifications = %v", got)
	}
	select {
	case a := <-ch:
		t.Fatalf("unexpected extra notification: %+v", a)
	default:
	}
}

func TestSubscribe_CancelIdempotent(t *testing.T) {
	s := New()
	_, cancel := s.Subscribe(1)
	cancel()
	cancel() // must not panic

	// further upserts must not touch the cancelled subscriber
	s.Upsert(action("a1", core.StatusAllowed, time.Now().UTC()))
}

func TestUpsert_ConcurrentWriters(t *testing.T) {
	s := New()
	base := time.Now().UTC()
	done := make(chan struct{})

	for w := 0; w < 4; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				s.Upsert(action("a1", core.StatusExecuting, base.Add(time.Duration(w*100+i)*time.Millisecond)))
			}
		}(w)
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	got, ok := s.Get("a1")
	if !ok {
		t.Fatal("record lost")
	}
	// the record with the largest updated_at must have won
	want := base.Add(399 * time.Millisecond)
	if !got.UpdatedAt.Equal(want) {
		t.Fatalf("updated_at = %v, want %v", got.UpdatedAt, want)
	}
}
