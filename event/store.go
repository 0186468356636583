package event

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested event does not exist.
var ErrNotFound = errors.New("event not found")

// Store defines the interface for event persistence.
// Implementations must be safe for concurrent use. Writes are
// last-write-wins; the engine relies on document-level semantics,
// not transactions.
type Store interface {
	// Put persists the event. A new event (empty ID) is assigned an
	// identity; an existing one is updated in place. The assigned ID
	// and revision are written back onto the event and returned.
	Put(ctx context.Context, e *Event) (id, rev string, err error)

	// Get retrieves an event by ID.
	// Returns ErrNotFound if no such event exists.
	Get(ctx context.Context, id string) (*Event, error)

	// Pending retrieves all unprocessed events whose When lies in
	// (0, until], with full documents. Returns an empty slice when
	// none are due.
	Pending(ctx context.Context, until time.Time) ([]*Event, error)
}
