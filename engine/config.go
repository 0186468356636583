package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lirancohen/dirigent/casefile"
	"github.com/lirancohen/dirigent/event"
	"github.com/lirancohen/dirigent/job"
	"github.com/lirancohen/dirigent/notify"
	"github.com/lirancohen/dirigent/transport"
)

// DefaultQueue is the engine's own inbound command queue.
const DefaultQueue = "dirigent"

// Logger defines the logging interface for the engine.
// Implementations should be safe for concurrent use.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an informational message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}

// noopLogger is a Logger that discards all log messages.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SlogLogger adapts a *slog.Logger to the Logger interface. It also
// satisfies the identically shaped logger interfaces of the job
// controller and the transport adapters.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a Logger backed by the given slog logger.
// A nil logger uses slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn(msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, keysAndValues...)
}

// WorkflowTemplate is a known workflow start payload, keyed by workflow
// name in Config.Workflows.
type WorkflowTemplate struct {
	// Platform routes the started job to a worker platform.
	Platform string

	// User attributes the start, if any.
	User string

	// Options parameterize the workflow command.
	Options map[string]any
}

// Config configures the Engine. The engine is the explicit context
// object of the system: every collaborator is an injected capability,
// substitutable with fakes in tests.
type Config struct {
	// Events is the event persistence layer.
	// Required.
	Events event.Store

	// Rules is the case file and mute list source.
	// Required.
	Rules casefile.Store

	// Jobs is the workflow job controller.
	// Required.
	Jobs *job.Controller

	// Publisher delivers command frames and job envelopes.
	// Required.
	Publisher transport.Publisher

	// Queue is the engine's own inbound queue name, used when
	// re-enqueueing due events. If empty, DefaultQueue is used.
	Queue string

	// Workflows is the name-keyed table of known workflow templates
	// for the start_workflow action.
	Workflows map[string]WorkflowTemplate

	// Notifier is the optional alerting capability. Nil disables
	// notifications without affecting dispatch.
	Notifier notify.Notifier

	// Grapher is the optional metrics capability. Nil disables
	// metrics without affecting dispatch.
	Grapher notify.Grapher

	// Logger is the logging interface. If nil, a no-op logger is used.
	Logger Logger

	// Now is the clock. If nil, time.Now is used.
	Now func() time.Time
}

// Validate checks that the configuration is valid.
// Returns an error if any required fields are missing.
func (c *Config) Validate() error {
	if c.Events == nil {
		return errors.New("engine: Events store is required")
	}
	if c.Rules == nil {
		return errors.New("engine: Rules store is required")
	}
	if c.Jobs == nil {
		return errors.New("engine: Jobs controller is required")
	}
	if c.Publisher == nil {
		return errors.New("engine: Publisher is required")
	}
	return nil
}

// withDefaults returns a copy of the config with default values applied.
func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// notifyBestEffort sends through the notifier when one is configured.
// Failures are logged and otherwise ignored; alerting never blocks
// dispatch.
func (e *Engine) notifyBestEffort(ctx context.Context, text, room, severity string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, text, room, severity); err != nil {
		e.logger.Debug("notify failed", "error", err)
	}
}

// graphBestEffort records a metric point when a grapher is configured.
func (e *Engine) graphBestEffort(ctx context.Context, metric, state string, value float64) {
	if e.grapher == nil {
		return
	}
	if err := e.grapher.Graph(ctx, metric, state, value, ""); err != nil {
		e.logger.Debug("graph failed", "metric", metric, "error", err)
	}
}
