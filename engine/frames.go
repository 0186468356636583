package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lirancohen/dirigent/event"
	"github.com/lirancohen/dirigent/transport"
)

// HandleFrame consumes one command frame from the engine's inbound
// queue. It implements transport.Handler. Malformed or unknown frames
// are logged and dropped: re-delivering a poison frame cannot fix it.
func (e *Engine) HandleFrame(ctx context.Context, queue string, payload json.RawMessage) error {
	var cmd transport.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		e.logger.Warn("dropping undecodable frame", "queue", queue, "error", err)
		return nil
	}

	switch cmd.Data.Command {
	case transport.CmdEventAdd:
		return e.handleEventAdd(ctx, cmd.Data.Options)
	case transport.CmdEventExec:
		return e.handleEventExec(ctx, cmd.Data.Options)
	case transport.CmdEventsTrigger:
		return e.handleEventsTrigger(ctx, cmd.Data.Options)
	default:
		e.logger.Warn("dropping unknown command", "queue", queue, "command", cmd.Data.Command)
		return nil
	}
}

// handleEventAdd ingests an event, acknowledges the caller on its reply
// queue, and only then dispatches the event in-process. The synchronous
// acknowledgment is decoupled from the asynchronous action execution
// that follows it.
func (e *Engine) handleEventAdd(ctx context.Context, opts map[string]any) error {
	reply := stringOpt(opts, "reply")
	delete(opts, "reply")

	ev, err := e.AddEvent(ctx, opts)

	if reply != "" {
		ack := map[string]any{}
		if err != nil {
			ack["error"] = err.Error()
		} else {
			ack["event_id"] = ev.ID
		}
		cmd := transport.NewCommand("event_added", ack)
		if perr := e.publisher.Publish(ctx, reply, cmd); perr != nil {
			e.logger.Warn("event_add reply failed", "reply", reply, "error", perr)
		}
	}

	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			// Caller's fault; nothing was persisted, nothing to retry.
			e.logger.Info("event rejected", "error", err)
			return nil
		}
		return err
	}

	return e.ExecEvent(ctx, ev)
}

// handleEventExec loads a persisted event and dispatches it.
func (e *Engine) handleEventExec(ctx context.Context, opts map[string]any) error {
	id := stringOpt(opts, "event_id")
	if id == "" {
		e.logger.Warn("event_exec without event_id")
		return nil
	}

	ev, err := e.events.Get(ctx, id)
	if errors.Is(err, event.ErrNotFound) {
		e.logger.Warn("event_exec for unknown event", "eventID", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load event %s: %w", id, err)
	}

	if !ev.Processed.IsZero() {
		// At-least-once delivery: a processed event is never
		// re-executed.
		e.logger.Debug("event already processed", "eventID", id)
		return nil
	}

	// Retry attempt: clear the previous failure before re-dispatch.
	ev.Error = ""

	return e.ExecEvent(ctx, ev)
}

// handleEventsTrigger runs a scheduler poll with an optional explicit
// cutoff, defaulting to the current time.
func (e *Engine) handleEventsTrigger(ctx context.Context, opts map[string]any) error {
	until := timeOpt(opts, "when")
	if until.IsZero() {
		until = e.now()
	}

	_, err := e.EnqueueDue(ctx, until)
	return err
}
