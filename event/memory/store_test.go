package memory

import (
	"context"
	"testing"
	"time"

	"github.com/lirancohen/dirigent/event"
)

func TestPutAssignsIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()

	e := &event.Event{Backend: "b", Object: "o", Action: "a", Status: "s"}
	id, rev, err := s.Put(ctx, e)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if id == "" || e.ID != id {
		t.Errorf("Put() id = %q, event ID = %q; want matching non-empty", id, e.ID)
	}
	if rev != "1" {
		t.Errorf("Put() rev = %q, want %q", rev, "1")
	}

	// Updating in place bumps the revision, keeps the identity.
	e.Error = "boom"
	id2, rev2, err := s.Put(ctx, e)
	if err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	if id2 != id {
		t.Errorf("second Put() id = %q, want %q", id2, id)
	}
	if rev2 != "2" {
		t.Errorf("second Put() rev = %q, want %q", rev2, "2")
	}
}

func TestGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	e := &event.Event{Backend: "b", Object: "o", Action: "a", Status: "s"}
	if _, _, err := s.Put(ctx, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Backend != "b" {
		t.Errorf("Get() backend = %q, want %q", got.Backend, "b")
	}

	// Mutating the returned copy must not affect the store.
	got.Backend = "mutated"
	again, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Backend != "b" {
		t.Errorf("stored event mutated through returned copy")
	}

	if _, err := s.Get(ctx, "missing"); err != event.ErrNotFound {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPending(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	due := &event.Event{Backend: "b", Object: "o", Action: "a", Status: "s", When: now.Add(-time.Minute)}
	future := &event.Event{Backend: "b", Object: "o", Action: "a", Status: "s", When: now.Add(time.Hour)}
	immediate := &event.Event{Backend: "b", Object: "o", Action: "a", Status: "s"}
	done := &event.Event{Backend: "b", Object: "o", Action: "a", Status: "s", When: now.Add(-time.Hour), Processed: now}

	for _, e := range []*event.Event{due, future, immediate, done} {
		if _, _, err := s.Put(ctx, e); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	pending, err := s.Pending(ctx, now)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Pending() returned %d events, want 1", len(pending))
	}
	if pending[0].ID != due.ID {
		t.Errorf("Pending() returned %q, want %q", pending[0].ID, due.ID)
	}
}
