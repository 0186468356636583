package job

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested job does not exist.
var ErrNotFound = errors.New("job not found")

// ErrNoSuchView indicates a rule referenced an undefined job index.
var ErrNoSuchView = errors.New("no such job view")

// Store defines the interface for job persistence with secondary
// indexes. Implementations must be safe for concurrent use; writes are
// last-write-wins.
type Store interface {
	// Get retrieves a job by ID.
	// Returns ErrNotFound if no such job exists.
	Get(ctx context.Context, id string) (*Job, error)

	// Put persists the job, bumping its revision. The revision is
	// written back onto the job and returned.
	Put(ctx context.Context, j *Job) (id, rev string, err error)

	// Query retrieves a job through a named secondary index.
	// Returns ErrNoSuchView for undefined views and ErrNotFound when
	// no job matches the key.
	Query(ctx context.Context, view, key string) (*Job, error)
}
