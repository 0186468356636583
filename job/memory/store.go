// Package memory provides an in-memory implementation of job.Store
// with registrable secondary indexes. This implementation is suitable
// for testing and development.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/lirancohen/dirigent/job"
)

// ViewFunc maps a job to its secondary index key. Returning false
// excludes the job from the view.
type ViewFunc func(*job.Job) (key string, ok bool)

// Store is a thread-safe in-memory implementation of job.Store.
// The zero value is ready for use.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]job.Job
	revs  map[string]int64
	views map[string]ViewFunc
}

// New creates a new in-memory job store.
func New() *Store {
	return &Store{
		jobs:  make(map[string]job.Job),
		revs:  make(map[string]int64),
		views: make(map[string]ViewFunc),
	}
}

// RegisterView defines a named secondary index.
func (s *Store) RegisterView(name string, fn ViewFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.views == nil {
		s.views = make(map[string]ViewFunc)
	}
	s.views[name] = fn
}

// Get retrieves a job by ID.
// Returns job.ErrNotFound if no such job exists.
func (s *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}

	// Return a copy to prevent external modification
	return &j, nil
}

// Put persists the job, bumping its revision. Last write wins.
func (s *Store) Put(ctx context.Context, j *job.Job) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobs == nil {
		s.jobs = make(map[string]job.Job)
	}
	if s.revs == nil {
		s.revs = make(map[string]int64)
	}

	if j.ID == "" {
		return "", "", fmt.Errorf("put job: empty id")
	}

	s.revs[j.ID]++
	j.Rev = strconv.FormatInt(s.revs[j.ID], 10)
	s.jobs[j.ID] = *j

	return j.ID, j.Rev, nil
}

// Query retrieves a job through a named secondary index.
func (s *Store) Query(ctx context.Context, view, key string) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fn, ok := s.views[view]
	if !ok {
		return nil, fmt.Errorf("%w: %s", job.ErrNoSuchView, view)
	}

	for _, j := range s.jobs {
		j := j
		if k, ok := fn(&j); ok && k == key {
			return &j, nil
		}
	}
	return nil, job.ErrNotFound
}
