// Package memory provides an in-memory implementation of casefile.Store.
// This implementation is suitable for testing and development, seeded
// through PutRule and SetMuteList.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/lirancohen/dirigent/casefile"
)

// Store is a thread-safe in-memory implementation of casefile.Store.
// The zero value is ready for use.
type Store struct {
	mu    sync.RWMutex
	rules map[string]casefile.Rule
	mute  casefile.MuteList
}

// New creates a new in-memory case file store.
func New() *Store {
	return &Store{rules: make(map[string]casefile.Rule)}
}

// PutRule adds or replaces a case file, keyed by its EventName.
func (s *Store) PutRule(r *casefile.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rules == nil {
		s.rules = make(map[string]casefile.Rule)
	}
	s.rules[r.EventName] = *r
}

// SetMuteList replaces the mute list document.
func (s *Store) SetMuteList(m *casefile.MuteList) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m == nil {
		s.mute = casefile.MuteList{}
		return
	}
	s.mute = *m
}

// GetRule retrieves the case file for an event name.
// Returns casefile.ErrRuleNotFound if none is defined.
func (s *Store) GetRule(ctx context.Context, eventName string) (*casefile.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[eventName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", casefile.ErrRuleNotFound, eventName)
	}
	return &r, nil
}

// MuteList retrieves the mute list document.
func (s *Store) MuteList(ctx context.Context) (*casefile.MuteList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.mute
	return &m, nil
}
