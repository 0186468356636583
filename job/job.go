// Package job provides workflow job documents and the controller that
// creates, resumes and stops them. Jobs are the unit of mutual
// exclusion: concurrent mutation of one job is serialized through the
// lock service, while distinct jobs proceed fully concurrently.
package job

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocType tags job documents in the store.
const DocType = "job"

// Status is the persisted state of a job.
type Status string

const (
	// StatusNew indicates the job was created but no worker has
	// picked it up yet.
	StatusNew Status = "new"

	// StatusPending indicates the job is in flight between workers.
	StatusPending Status = "pending"

	// StatusDone indicates the job finished. Terminal unless a rule
	// forces reopening.
	StatusDone Status = "done"

	// StatusFailed indicates the job terminated with an error.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Meta is the routing and bookkeeping half of a job message envelope.
type Meta struct {
	// ID is the job id the envelope belongs to.
	ID string `json:"id,omitempty"`

	// Platform routes the job to a worker platform.
	Platform string `json:"platform,omitempty"`

	// User is the requesting user, if any.
	User string `json:"user,omitempty"`

	// Lang is the reply language.
	Lang string `json:"lang,omitempty"`

	// EventID records which event the job is currently waiting on.
	// Any event whose id does not match is rejected rather than
	// allowed to mutate the job.
	EventID string `json:"event_id,omitempty"`

	// Workflow is the workflow name the job executes.
	Workflow string `json:"workflow,omitempty"`

	// WaitFor marks what the job is suspended on, cleared on resume.
	WaitFor string `json:"wait_for,omitempty"`

	// CreatedBy is the id of the job that caused this one, for causal
	// chain tracking.
	CreatedBy string `json:"created_by,omitempty"`

	// Log is the ordered sequence of worker names the job visited.
	Log []string `json:"log,omitempty"`
}

// Data is the payload half of a job message envelope.
type Data struct {
	// Command is the workflow command to run.
	Command string `json:"command,omitempty"`

	// Options parameterize the command. Also the dedup key material
	// for job creation.
	Options map[string]any `json:"options,omitempty"`

	// Response accumulates worker and event results.
	Response map[string]any `json:"response,omitempty"`
}

// Message is the envelope workers pass around on the workflow queue.
type Message struct {
	Meta Meta `json:"meta"`
	Data Data `json:"data"`

	// Status is a transient in-envelope status, cleared before the
	// persisted job status is updated.
	Status string `json:"status,omitempty"`

	// Error is a transient in-envelope error, cleared on resume.
	Error string `json:"error,omitempty"`
}

// Tree returns the message as a generic nested-map document, for
// condition path resolution.
func (m *Message) Tree() (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return doc, nil
}

// Job represents one in-flight or completed workflow instance.
type Job struct {
	// ID is a content hash for newly created jobs (see DedupID) and
	// the store-assigned id thereafter.
	ID string `json:"_id,omitempty"`

	// Rev is the store revision.
	Rev string `json:"_rev,omitempty"`

	// Type is the document type tag (always "job").
	Type string `json:"type"`

	// Created and Updated are document timestamps.
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	// Status is the persisted job state.
	Status Status `json:"status"`

	// Platform routes the job to a worker platform.
	Platform string `json:"platform,omitempty"`

	// Message is the job's current envelope.
	Message Message `json:"message"`
}

// LockKey derives the mutual exclusion key for this job's message.
func (j *Job) LockKey() string {
	id := j.Message.Meta.ID
	if id == "" {
		id = j.ID
	}
	return "job:" + id
}
