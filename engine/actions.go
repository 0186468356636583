package engine

import (
	"context"
	"fmt"

	"github.com/lirancohen/dirigent/casefile"
	"github.com/lirancohen/dirigent/event"
	"github.com/lirancohen/dirigent/transport"
)

// runAction invokes one action variant with (event, rule) and returns
// its "processed" signal. The variant set is closed: names from
// operator-owned rule documents that parse to ActionUnsupported are a
// data-driven error path, not a dispatch failure.
func (e *Engine) runAction(ctx context.Context, kind casefile.ActionType, ev *event.Event, rule *casefile.Rule) bool {
	switch kind {
	case casefile.ActionBackendCall:
		return e.backendCall(ctx, ev)
	case casefile.ActionNotification:
		return e.notification(ctx, ev, rule)
	case casefile.ActionStartWorkflow:
		return e.startWorkflow(ctx, ev, rule)
	case casefile.ActionRestartWorkflow:
		return e.jobs.RestartWorkflow(ctx, ev, rule, false)
	case casefile.ActionStopWorkflow:
		return e.jobs.StopWorkflow(ctx, ev, rule)
	case casefile.ActionUnsupported:
		ev.Error = fmt.Sprintf("unknown action_type: %q", rule.Action.Type)
		e.logger.Error("unknown action type", "eventID", ev.ID, "actionType", rule.Action.Type)
		return false
	default:
		// Unreachable: ParseActionType maps every name into the set.
		ev.Error = fmt.Sprintf("unknown action_type: %q", rule.Action.Type)
		return false
	}
}

// backendCall publishes a command frame to the queue named on the
// event. Backend calls must never be retried or looped: a missing or
// mistyped field records a distinct error but the action still counts
// as processed, and no fallback is ever invoked for it.
func (e *Engine) backendCall(ctx context.Context, ev *event.Event) bool {
	queue, _ := ev.Parsed["queue"].(string)
	if queue == "" {
		ev.Error = "backend_call: queue is missing"
		return true
	}
	command, _ := ev.Parsed["command"].(string)
	if command == "" {
		ev.Error = "backend_call: command is missing"
		return true
	}
	data, ok := ev.Parsed["data"].(map[string]any)
	if !ok {
		ev.Error = "backend_call: data is missing or not a map"
		return true
	}

	cmd := transport.NewCommand(command, data)
	if err := e.publisher.Publish(ctx, queue, cmd); err != nil {
		ev.Error = fmt.Sprintf("backend_call: publish to %q: %s", queue, err)
		return true
	}

	e.logger.Info("backend call published", "eventID", ev.ID, "queue", queue, "command", command)
	return true
}

// notification resolves the rule's transport by name and sends a
// formatted message through the notification collaborator. Only the
// hipchat transport is supported; anything else records an error and
// leaves the event unprocessed so a fallback may take over.
func (e *Engine) notification(ctx context.Context, ev *event.Event, rule *casefile.Rule) bool {
	switch rule.Action.Transport {
	case "hipchat":
		if e.notifier == nil {
			ev.Error = "notification: no notifier configured"
			return false
		}

		text := ev.Raw
		if s, ok := ev.Parsed["message"].(string); ok && s != "" {
			text = s
		}
		msg := e.eventText(ev, ev.Name("_"), text)

		if err := e.notifier.Notify(ctx, msg, rule.Action.Room, rule.Action.Severity); err != nil {
			ev.Error = fmt.Sprintf("notification: %s", err)
			return false
		}
		e.logger.Info("notification sent", "eventID", ev.ID, "room", rule.Action.Room)
		return true

	case "":
		ev.Error = "notification: transport is missing"
		return false

	default:
		ev.Error = fmt.Sprintf("notification: unsupported transport %q", rule.Action.Transport)
		return false
	}
}

// startWorkflow resolves the rule's workflow template and starts a new
// job through the controller. Fire-and-forget: once the template
// resolves, the event counts as processed regardless of downstream
// outcome.
func (e *Engine) startWorkflow(ctx context.Context, ev *event.Event, rule *casefile.Rule) bool {
	tmpl, ok := e.workflows[rule.Action.Workflow]
	if !ok {
		ev.Error = fmt.Sprintf("start_workflow: unknown workflow %q", rule.Action.Workflow)
		return false
	}

	if err := e.jobs.StartWorkflow(ctx, rule.Action.Workflow, tmpl.Platform, tmpl.User, tmpl.Options); err != nil {
		e.logger.Error("workflow start failed", "eventID", ev.ID, "workflow", rule.Action.Workflow, "error", err)
	}
	return true
}
