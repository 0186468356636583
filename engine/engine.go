// Package engine implements Dirigent's dispatch core: event ingestion,
// the rule-driven action dispatcher, and the scheduler poll that
// re-surfaces time-deferred events.
//
// The engine keeps processing other events when one fails: business
// failures are recorded as data (the error field on the event or job)
// rather than raised across component boundaries. Only infrastructure
// failures (a store that cannot be reached) surface as Go errors.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lirancohen/dirigent/casefile"
	"github.com/lirancohen/dirigent/event"
	"github.com/lirancohen/dirigent/job"
	"github.com/lirancohen/dirigent/notify"
	"github.com/lirancohen/dirigent/transport"
)

// Engine is the dispatch core. Create one per worker process with New.
type Engine struct {
	events    event.Store
	rules     casefile.Store
	jobs      *job.Controller
	publisher transport.Publisher
	queue     string
	workflows map[string]WorkflowTemplate
	notifier  notify.Notifier
	grapher   notify.Grapher
	logger    Logger
	now       func() time.Time
}

// New creates an Engine with the given configuration.
// Returns an error if required collaborators are missing.
func New(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()

	return &Engine{
		events:    cfg.Events,
		rules:     cfg.Rules,
		jobs:      cfg.Jobs,
		publisher: cfg.Publisher,
		queue:     cfg.Queue,
		workflows: cfg.Workflows,
		notifier:  cfg.Notifier,
		grapher:   cfg.Grapher,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Queue returns the engine's inbound command queue name.
func (e *Engine) Queue() string {
	return e.queue
}

// AddEvent validates and persists a new event from raw frame options.
// Returns a ValidationError naming every missing mandatory field, in
// which case nothing is persisted. Store failures are returned wrapped;
// the event is not processed further. On success the persisted event is
// returned carrying its assigned id and revision, so the dispatcher can
// update it in place without a re-read.
func (e *Engine) AddEvent(ctx context.Context, opts map[string]any) (*event.Event, error) {
	var missing []string
	for _, field := range []string{"backend", "object", "action", "status"} {
		if s, _ := opts[field].(string); s == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	ev := &event.Event{
		Type:    event.DocType,
		Backend: opts["backend"].(string),
		Object:  opts["object"].(string),
		Action:  opts["action"].(string),
		Status:  opts["status"].(string),
		Raw:     stringOpt(opts, "raw"),
		JobID:   stringOpt(opts, "job_id"),
	}
	if parsed, ok := opts["parsed"].(map[string]any); ok {
		ev.Parsed = parsed
	}
	ev.Timestamp = timeOpt(opts, "timestamp")
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	ev.When = timeOpt(opts, "when")

	if _, _, err := e.events.Put(ctx, ev); err != nil {
		return nil, fmt.Errorf("put event: %w", err)
	}

	e.graphBestEffort(ctx, ev.Name("."), "new", 1)
	e.logger.Info("event added", "eventID", ev.ID, "event", ev.Name("_"))

	return ev, nil
}

// ExecEvent runs the dispatch state machine for one event:
// rule lookup, mute check, action invocation with optional fallback,
// and outcome recording. Business failures land on ev.Error and are
// persisted; the returned error is reserved for infrastructure
// failures while recording the outcome.
func (e *Engine) ExecEvent(ctx context.Context, ev *event.Event) error {
	// Direct calls without going through ingestion are disallowed.
	if ev.ID == "" {
		e.logger.Warn("dropping event without identity", "event", ev.Name("_"))
		return nil
	}

	now := e.now()
	if !ev.Due(now) {
		// Deferred; the scheduler re-surfaces it once When elapses.
		e.logger.Debug("event deferred", "eventID", ev.ID, "when", ev.When)
		return nil
	}

	name := ev.Name("_")

	// Operator kill-switch, independent of rule definitions.
	mute, err := e.rules.MuteList(ctx)
	if err != nil {
		return fmt.Errorf("load mute list: %w", err)
	}
	if mute.Muted(name) {
		e.logger.Info("event muted", "eventID", ev.ID, "event", name)
		return nil
	}

	rule, err := e.rules.GetRule(ctx, name)
	if err != nil {
		if !errors.Is(err, casefile.ErrRuleNotFound) {
			return fmt.Errorf("look up case file: %w", err)
		}
		// An undefined rule is a terminal failure, not retried.
		ev.Error = err.Error()
		e.notifyBestEffort(ctx, e.eventText(ev, name, ev.Error), "", "")
		if _, _, perr := e.events.Put(ctx, ev); perr != nil {
			return fmt.Errorf("persist event error: %w", perr)
		}
		e.logger.Error("no case file", "eventID", ev.ID, "event", name)
		return nil
	}

	processed := e.runAction(ctx, casefile.ParseActionType(rule.Action.Type), ev, rule)
	if !processed && rule.Action.FallbackType != "" {
		e.logger.Debug("invoking fallback action", "eventID", ev.ID, "fallback", rule.Action.FallbackType)
		processed = e.runAction(ctx, casefile.ParseActionType(rule.Action.FallbackType), ev, rule)
	}

	if ev.Error != "" {
		e.notifyBestEffort(ctx, e.eventText(ev, name, ev.Error), rule.Action.Room, rule.Action.Severity)
		e.graphBestEffort(ctx, ev.Name("."), "failed", 1)
	}

	if !processed {
		// Not marked processed: the event stays visible for manual
		// or scheduled re-inspection.
		if ev.Error != "" {
			if _, _, err := e.events.Put(ctx, ev); err != nil {
				return fmt.Errorf("persist event error: %w", err)
			}
		}
		return nil
	}

	ev.Processed = e.now()
	if _, _, err := e.events.Put(ctx, ev); err != nil {
		return fmt.Errorf("persist processed event: %w", err)
	}
	if ev.Error == "" {
		e.graphBestEffort(ctx, ev.Name("."), "done", 1)
	}

	e.logger.Info("event processed", "eventID", ev.ID, "event", name, "error", ev.Error)
	return nil
}

// PendingEvents queries the store for events whose not-before time has
// elapsed by until.
func (e *Engine) PendingEvents(ctx context.Context, until time.Time) ([]*event.Event, error) {
	return e.events.Pending(ctx, until)
}

// EnqueueDue re-enqueues every due event as an event_exec command on
// the engine's own queue, so any available worker can execute it.
// Returns the number of events enqueued; none due is not an error.
func (e *Engine) EnqueueDue(ctx context.Context, until time.Time) (int, error) {
	due, err := e.PendingEvents(ctx, until)
	if err != nil {
		return 0, fmt.Errorf("query pending events: %w", err)
	}
	if len(due) == 0 {
		e.logger.Debug("no events due", "until", until)
		return 0, nil
	}

	for _, ev := range due {
		cmd := transport.NewCommand(transport.CmdEventExec, map[string]any{"event_id": ev.ID})
		if err := e.publisher.Publish(ctx, e.queue, cmd); err != nil {
			return 0, fmt.Errorf("enqueue event %s: %w", ev.ID, err)
		}
	}

	e.logger.Info("due events enqueued", "count", len(due), "until", until)
	return len(due), nil
}

// eventText formats an operator-facing message about an event.
func (e *Engine) eventText(ev *event.Event, name, text string) string {
	return fmt.Sprintf("event %s (%s): %s", ev.ID, name, text)
}

// stringOpt reads a string option, empty when absent or mistyped.
func stringOpt(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// timeOpt reads a time option: RFC 3339 strings and unix-seconds
// numbers are accepted, anything else yields the zero time.
func timeOpt(opts map[string]any, key string) time.Time {
	switch v := opts[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	case float64:
		if v > 0 {
			return time.Unix(int64(v), 0)
		}
	case int64:
		if v > 0 {
			return time.Unix(v, 0)
		}
	}
	return time.Time{}
}
