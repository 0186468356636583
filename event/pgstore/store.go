// Package pgstore provides a PostgreSQL-based event store implementation.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lirancohen/dirigent/event"
)

// Schema is the DDL for the events table. Apply it once at deploy time,
// or through CreateSchema for tests and development.
const Schema = `
CREATE TABLE IF NOT EXISTS dirigent_events (
	id TEXT PRIMARY KEY,
	rev BIGINT NOT NULL DEFAULT 1,
	backend TEXT NOT NULL,
	object TEXT NOT NULL,
	action TEXT NOT NULL,
	status TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	when_at TIMESTAMPTZ,
	parsed JSONB,
	raw TEXT,
	job_id TEXT,
	processed TIMESTAMPTZ,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_dirigent_events_when ON dirigent_events (when_at)
	WHERE when_at IS NOT NULL AND processed IS NULL;
`

// Store implements event.Store with PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL event store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateSchema applies the events table DDL.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create events schema: %w", err)
	}
	return nil
}

// Put persists the event. New events (empty ID) are assigned a UUID and
// revision 1; existing events are updated in place with the revision
// bumped. Writes are last-write-wins.
func (s *Store) Put(ctx context.Context, e *event.Event) (string, string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	var rev int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO dirigent_events
			(id, backend, object, action, status, timestamp, when_at, parsed, raw, job_id, processed, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			rev = dirigent_events.rev + 1,
			backend = EXCLUDED.backend,
			object = EXCLUDED.object,
			action = EXCLUDED.action,
			status = EXCLUDED.status,
			timestamp = EXCLUDED.timestamp,
			when_at = EXCLUDED.when_at,
			parsed = EXCLUDED.parsed,
			raw = EXCLUDED.raw,
			job_id = EXCLUDED.job_id,
			processed = EXCLUDED.processed,
			error = EXCLUDED.error
		RETURNING rev
	`, e.ID, e.Backend, e.Object, e.Action, e.Status, e.Timestamp,
		nullTime(e.When), e.Parsed, nullString(e.Raw), nullString(e.JobID),
		nullTime(e.Processed), nullString(e.Error)).Scan(&rev)
	if err != nil {
		return "", "", fmt.Errorf("put event: %w", err)
	}

	e.Rev = strconv.FormatInt(rev, 10)
	return e.ID, e.Rev, nil
}

// Get retrieves an event by ID.
// Returns event.ErrNotFound if no such event exists.
func (s *Store) Get(ctx context.Context, id string) (*event.Event, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, rev, backend, object, action, status, timestamp, when_at,
		       parsed, raw, job_id, processed, error
		FROM dirigent_events
		WHERE id = $1
	`, id)

	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, event.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// Pending retrieves all unprocessed events with a When at or before until,
// ordered by When. Returns an empty slice when none are due.
func (s *Store) Pending(ctx context.Context, until time.Time) ([]*event.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, rev, backend, object, action, status, timestamp, when_at,
		       parsed, raw, job_id, processed, error
		FROM dirigent_events
		WHERE when_at IS NOT NULL AND when_at <= $1 AND processed IS NULL
		ORDER BY when_at
	`, until)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	due := []*event.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		due = append(due, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending events: %w", err)
	}
	return due, nil
}

// scanEvent reads one event row from either a Row or Rows.
func scanEvent(row pgx.Row) (*event.Event, error) {
	var (
		e         event.Event
		rev       int64
		whenAt    *time.Time
		raw       *string
		jobID     *string
		processed *time.Time
		errField  *string
	)

	err := row.Scan(&e.ID, &rev, &e.Backend, &e.Object, &e.Action, &e.Status,
		&e.Timestamp, &whenAt, &e.Parsed, &raw, &jobID, &processed, &errField)
	if err != nil {
		return nil, err
	}

	e.Type = event.DocType
	e.Rev = strconv.FormatInt(rev, 10)
	if whenAt != nil {
		e.When = *whenAt
	}
	if raw != nil {
		e.Raw = *raw
	}
	if jobID != nil {
		e.JobID = *jobID
	}
	if processed != nil {
		e.Processed = *processed
	}
	if errField != nil {
		e.Error = *errField
	}
	return &e, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
