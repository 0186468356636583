package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lirancohen/dirigent/casefile"
	"github.com/lirancohen/dirigent/conditions"
	"github.com/lirancohen/dirigent/event"
	"github.com/lirancohen/dirigent/lock"
	"github.com/lirancohen/dirigent/transport"
)

// Caller errors returned by the Controller.
var (
	// ErrMissingPlatform indicates a payload without meta.platform.
	ErrMissingPlatform = errors.New("job: meta.platform is required")

	// ErrMissingWorkflowName indicates an empty workflow name.
	ErrMissingWorkflowName = errors.New("job: workflow name is required")
)

// Logger defines the logging interface for the controller.
// Implementations should be safe for concurrent use.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger is a Logger that discards all log messages.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures the Controller.
type Config struct {
	// Jobs is the job persistence layer.
	// Required.
	Jobs Store

	// Locker serializes job mutation across workers.
	// Required.
	Locker lock.Locker

	// Publisher delivers job envelopes to the workflow queue.
	// Required.
	Publisher transport.Publisher

	// Logger is the logging interface. If nil, a no-op logger is used.
	Logger Logger

	// Now is the clock. If nil, time.Now is used.
	Now func() time.Time
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Jobs == nil {
		return errors.New("job: Jobs store is required")
	}
	if c.Locker == nil {
		return errors.New("job: Locker is required")
	}
	if c.Publisher == nil {
		return errors.New("job: Publisher is required")
	}
	return nil
}

// withDefaults returns a copy of the config with default values applied.
func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// Controller implements job creation with dedup, locking, condition
// evaluation and status transitions.
type Controller struct {
	jobs      Store
	locker    lock.Locker
	publisher transport.Publisher
	logger    Logger
	now       func() time.Time

	mu        sync.RWMutex
	activeJob string
}

// NewController creates a Controller with the given configuration.
func NewController(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()

	return &Controller{
		jobs:      cfg.Jobs,
		locker:    cfg.Locker,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// SetActiveJob records the job currently being processed by this
// worker. Jobs started while it is set carry it as meta.created_by.
// A worker processes one job at a time; pass "" when done.
func (c *Controller) SetActiveJob(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeJob = id
}

// ActiveJob returns the id of the job currently being processed.
func (c *Controller) ActiveJob() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeJob
}

// CreateJob creates a job for the payload, or returns the existing one
// when an identical payload arrived within the same dedup window.
// Returns the job and whether it was a duplicate. No write is performed
// for duplicates.
func (c *Controller) CreateJob(ctx context.Context, msg *Message) (*Job, bool, error) {
	if msg == nil || msg.Meta.Platform == "" {
		return nil, false, ErrMissingPlatform
	}

	id := DedupID(msg.Data.Options, c.now())

	existing, err := c.jobs.Get(ctx, id)
	if err == nil {
		c.logger.Debug("duplicate job request", "jobID", id)
		return existing, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("check for duplicate job: %w", err)
	}

	now := c.now()
	j := &Job{
		ID:       id,
		Type:     DocType,
		Created:  now,
		Updated:  now,
		Status:   StatusNew,
		Platform: msg.Meta.Platform,
		Message:  *msg,
	}
	j.Message.Meta.ID = id

	if _, _, err := c.jobs.Put(ctx, j); err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}

	c.logger.Info("job created", "jobID", id, "platform", j.Platform)
	return j, false, nil
}

// StartWorkflow publishes a workflow start envelope to the workflow
// queue. The receiving workflow worker is responsible for creating the
// job; this side is fire-and-forget.
func (c *Controller) StartWorkflow(ctx context.Context, name, platform, user string, options map[string]any) error {
	if name == "" {
		return ErrMissingWorkflowName
	}
	if platform == "" {
		return ErrMissingPlatform
	}

	msg := Message{
		Meta: Meta{
			Platform:  platform,
			User:      user,
			Lang:      "en",
			Workflow:  name,
			CreatedBy: c.ActiveJob(),
		},
		Data: Data{
			Command: name,
			Options: options,
		},
	}

	if err := c.publisher.Publish(ctx, transport.QueueWorkflow, &msg); err != nil {
		return fmt.Errorf("publish workflow start: %w", err)
	}

	c.logger.Info("workflow start published", "workflow", name, "platform", platform)
	return nil
}

// RestartWorkflow resumes (or, with stopMode, terminates) the job an
// event targets. The boolean is the dispatcher's "processed" signal;
// failures are recorded on ev.Error rather than returned, so callers
// must check ev.Error independently to distinguish a clean no-op from a
// terminal error.
func (c *Controller) RestartWorkflow(ctx context.Context, ev *event.Event, rule *casefile.Rule, stopMode bool) bool {
	j := c.resolveJob(ctx, ev, rule)
	if j == nil {
		// resolveJob set ev.Error; lookup failure is terminal for
		// this event, there is no fallback from here.
		return false
	}

	// Only one worker may mutate a given job's envelope at a time.
	lockKey := j.LockKey()
	if err := c.locker.Acquire(ctx, lockKey); err != nil {
		// Retryable by re-delivery, or by the scheduler if the
		// event carries a when. Not recorded on the event.
		c.logger.Warn("job lock not acquired", "jobID", j.ID, "error", err)
		return false
	}
	handedOff := false
	defer func() {
		if handedOff {
			// The resuming worker takes over; the lock expires
			// by TTL rather than being released under it.
			return
		}
		if err := c.locker.Release(ctx, lockKey); err != nil {
			c.logger.Warn("job lock release failed", "jobID", j.ID, "error", err)
		}
	}()

	// A terminal job without reopen is already complete: absorb
	// duplicate resume events as an idempotent no-op.
	if j.Status.IsTerminal() && !rule.Action.Reopen {
		c.logger.Debug("job already complete", "jobID", j.ID, "status", j.Status.String(), "eventID", ev.ID)
		return true
	}

	// Hands-off rule: the job only answers to the event it is waiting
	// for. A mismatch is terminal for the offending event so it cannot
	// loop, but it is an error for operator visibility.
	if ev.JobID != "" && j.Message.Meta.EventID != "" && j.Message.Meta.EventID != ev.ID {
		ev.Error = "job was not waiting for this event"
		c.logger.Error("event rejected by job", "jobID", j.ID, "eventID", ev.ID, "waitingFor", j.Message.Meta.EventID)
		return true
	}

	// Clear any stale error before evaluating conditions.
	j.Message.Error = ""

	if !rule.Action.Conditions.Empty() {
		doc, err := j.Message.Tree()
		if err != nil {
			ev.Error = err.Error()
			return false
		}
		if err := conditions.Check(doc, rule.Action.Conditions); err != nil {
			// Business-rule mismatch: terminal for this event,
			// the job is left untouched.
			ev.Error = err.Error()
			c.logger.Info("conditions not met", "jobID", j.ID, "eventID", ev.ID, "error", err)
			return false
		}
	}

	c.mergeResponse(j, ev)
	j.Message.Meta.WaitFor = ""

	if rule.Action.Mode == casefile.ModeRestart {
		// Re-enter the prior stage rather than advancing.
		if n := len(j.Message.Meta.Log); n > 0 {
			j.Message.Meta.Log = j.Message.Meta.Log[:n-1]
		}
	}

	// Consume the wait marker: any later event carrying a job_id no
	// longer matches and is rejected by the hands-off rule above.
	j.Message.Meta.EventID = "processed"

	now := c.now()
	j.Updated = now

	if stopMode {
		j.Message.Error = terminalMessage(ev)
		j.Status = StatusDone
		if _, _, err := c.jobs.Put(ctx, j); err != nil {
			ev.Error = fmt.Sprintf("stop job %s: %s", j.ID, err)
			return false
		}
		c.logger.Info("job stopped", "jobID", j.ID, "eventID", ev.ID)
		return true
	}

	// The transient in-envelope status is cleared before the persisted
	// status is updated; the job is back in flight.
	j.Message.Status = ""
	j.Status = StatusPending

	if _, _, err := c.jobs.Put(ctx, j); err != nil {
		ev.Error = fmt.Sprintf("update job %s: %s", j.ID, err)
		return false
	}

	if err := c.publisher.Publish(ctx, transport.QueueWorkflow, &j.Message); err != nil {
		ev.Error = fmt.Sprintf("republish job %s: %s", j.ID, err)
		return false
	}
	handedOff = true

	c.logger.Info("job resumed", "jobID", j.ID, "eventID", ev.ID)
	return true
}

// StopWorkflow is RestartWorkflow in stop mode: the job is marked done
// with the event payload as its terminal message instead of being
// republished.
func (c *Controller) StopWorkflow(ctx context.Context, ev *event.Event, rule *casefile.Rule) bool {
	return c.RestartWorkflow(ctx, ev, rule, true)
}

// resolveJob finds the job an event targets, via the rule's indexed
// lookup when configured, else directly by the event's job id. Returns
// nil with ev.Error set when no job can be resolved.
func (c *Controller) resolveJob(ctx context.Context, ev *event.Event, rule *casefile.Rule) *Job {
	view, key := rule.Action.View, rule.Action.Key

	if view != "" && key != "" {
		value, ok := ev.Field(key)
		if !ok || value == "" {
			ev.Error = fmt.Sprintf("event field %q for view %q lookup is missing", key, view)
			return nil
		}
		j, err := c.jobs.Query(ctx, view, value)
		if err != nil {
			ev.Error = fmt.Sprintf("no job found via view %q with key %q: %s", view, value, err)
			return nil
		}
		return j
	}

	if ev.JobID != "" {
		j, err := c.jobs.Get(ctx, ev.JobID)
		if err != nil {
			ev.Error = fmt.Sprintf("no job found with id %q: %s", ev.JobID, err)
			return nil
		}
		return j
	}

	ev.Error = "no job lookup configured: need view and key on the case file, or job_id on the event"
	return nil
}

// mergeResponse folds the event's payload into the job's response.
func (c *Controller) mergeResponse(j *Job, ev *event.Event) {
	if len(ev.Parsed) == 0 && ev.Raw == "" {
		return
	}
	if j.Message.Data.Response == nil {
		j.Message.Data.Response = make(map[string]any)
	}
	for k, v := range ev.Parsed {
		j.Message.Data.Response[k] = v
	}
	if ev.Raw != "" {
		j.Message.Data.Response["raw"] = ev.Raw
	}
}

// terminalMessage renders the event payload as a job's terminal error
// message for stop mode.
func terminalMessage(ev *event.Event) string {
	if len(ev.Parsed) > 0 {
		if data, err := json.Marshal(ev.Parsed); err == nil {
			return string(data)
		}
	}
	if ev.Raw != "" {
		return ev.Raw
	}
	return "stopped by event " + ev.ID
}
