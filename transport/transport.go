// Package transport defines the message boundary of the engine:
// JSON frames delivered at-least-once to named queues. Delivery order
// across workers is not guaranteed; consumers must tolerate duplicates.
package transport

import (
	"context"
	"encoding/json"
)

// Commands recognized on the engine's own inbound queue.
const (
	// CmdEventAdd ingests a new event from an external producer.
	CmdEventAdd = "event_add"

	// CmdEventExec executes a previously persisted event.
	CmdEventExec = "event_exec"

	// CmdEventsTrigger runs a scheduler poll for due events.
	CmdEventsTrigger = "events_trigger"
)

// QueueWorkflow is the queue workflow workers consume job envelopes from.
const QueueWorkflow = "workflow"

// Command is the frame shape for engine commands:
// { "data": { "command": ..., "options": ... } }.
type Command struct {
	Data CommandData `json:"data"`
}

// CommandData carries the command name and its options.
type CommandData struct {
	Command string         `json:"command"`
	Options map[string]any `json:"options,omitempty"`
}

// NewCommand builds a command frame.
func NewCommand(command string, options map[string]any) Command {
	return Command{Data: CommandData{Command: command, Options: options}}
}

// Publisher delivers a JSON-serializable payload to a named queue.
// Publishing is at-least-once; implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

// Handler consumes frames delivered from a queue. A non-nil error
// requests re-delivery; poison frames should be logged and dropped
// by returning nil.
type Handler interface {
	HandleFrame(ctx context.Context, queue string, payload json.RawMessage) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, queue string, payload json.RawMessage) error

// HandleFrame implements Handler.
func (f HandlerFunc) HandleFrame(ctx context.Context, queue string, payload json.RawMessage) error {
	return f(ctx, queue, payload)
}
