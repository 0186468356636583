// Package memory provides an in-memory implementation of event.Store.
// This implementation is suitable for testing and development.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lirancohen/dirigent/event"
)

// Store is a thread-safe in-memory implementation of event.Store.
// The zero value is ready for use.
type Store struct {
	mu     sync.RWMutex
	events map[string]event.Event // id -> latest document
	revs   map[string]int64       // id -> revision counter
}

// New creates a new in-memory event store.
func New() *Store {
	return &Store{
		events: make(map[string]event.Event),
		revs:   make(map[string]int64),
	}
}

// Put persists the event, assigning an ID on first write and bumping
// the revision on every write. Last write wins.
func (s *Store) Put(ctx context.Context, e *event.Event) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.events == nil {
		s.events = make(map[string]event.Event)
	}
	if s.revs == nil {
		s.revs = make(map[string]int64)
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	s.revs[e.ID]++
	e.Rev = strconv.FormatInt(s.revs[e.ID], 10)
	s.events[e.ID] = *e

	return e.ID, e.Rev, nil
}

// Get retrieves an event by ID.
// Returns event.ErrNotFound if no such event exists.
func (s *Store) Get(ctx context.Context, id string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, event.ErrNotFound
	}

	// Return a copy to prevent external modification
	return &e, nil
}

// Pending retrieves all unprocessed events with a When at or before until.
func (s *Store) Pending(ctx context.Context, until time.Time) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := []*event.Event{}
	for _, e := range s.events {
		if e.When.IsZero() || e.When.After(until) {
			continue
		}
		if !e.Processed.IsZero() {
			continue
		}
		e := e
		due = append(due, &e)
	}
	return due, nil
}
