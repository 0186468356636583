// Package event provides the event documents and storage interface for
// Dirigent's event-driven dispatch model.
package event

import (
	"strings"
	"time"
)

// DocType tags event documents in the store.
const DocType = "event"

// Event represents a single external occurrence requiring action.
// Events are persisted before dispatch and updated in place as the
// dispatcher records their outcome.
type Event struct {
	// ID is the store-assigned identifier. Immutable once assigned.
	ID string `json:"_id,omitempty"`

	// Rev is the store revision, carried so the dispatcher can
	// update in place without a re-read.
	Rev string `json:"_rev,omitempty"`

	// Type is the document type tag (always "event").
	Type string `json:"type"`

	// Backend, Object, Action and Status jointly form the event's name.
	// All four are mandatory on ingestion.
	Backend string `json:"backend"`
	Object  string `json:"object"`
	Action  string `json:"action"`
	Status  string `json:"status"`

	// Timestamp records when the event was ingested.
	Timestamp time.Time `json:"timestamp"`

	// When is an optional not-before execution time. The dispatcher
	// defers events whose When is still in the future; the scheduler
	// re-surfaces them once it elapses.
	When time.Time `json:"when,omitempty"`

	// Parsed is the structured payload, if any.
	Parsed map[string]any `json:"parsed,omitempty"`

	// Raw is the unstructured payload, if any.
	Raw string `json:"raw,omitempty"`

	// JobID links the event to a workflow job for restart/stop actions.
	JobID string `json:"job_id,omitempty"`

	// Processed is set once an action completed successfully.
	// A processed event is never re-executed.
	Processed time.Time `json:"processed,omitempty"`

	// Error holds the last failure. Cleared on retry.
	Error string `json:"error,omitempty"`
}

// Name joins backend, object, action and status with the given separator.
// Use "_" for rule lookups and "." for metric namespaces.
func (e *Event) Name(sep string) string {
	return strings.Join([]string{e.Backend, e.Object, e.Action, e.Status}, sep)
}

// Due reports whether the event may execute at the given time.
// Events without a When are always due.
func (e *Event) Due(now time.Time) bool {
	return e.When.IsZero() || !e.When.After(now)
}

// Field resolves a named field of the event to a string, for rule-driven
// job lookups (rule key -> event field -> index key). Known document
// fields are resolved first, then the parsed payload.
func (e *Event) Field(name string) (string, bool) {
	switch name {
	case "backend":
		return e.Backend, true
	case "object":
		return e.Object, true
	case "action":
		return e.Action, true
	case "status":
		return e.Status, true
	case "job_id":
		return e.JobID, e.JobID != ""
	case "raw":
		return e.Raw, e.Raw != ""
	}
	if v, ok := e.Parsed[name]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}
