// Package riverqueue provides a durable transport.Publisher and frame
// consumer on the River job queue. Delivery is at-least-once and
// unordered across queues; handlers must tolerate duplicates.
package riverqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"

	"github.com/lirancohen/dirigent/transport"
)

// Default configuration values.
const (
	// DefaultMaxAttempts is how often a frame is re-delivered before
	// River discards it.
	DefaultMaxAttempts = 3

	// DefaultJobTimeout is the default timeout for handling one frame.
	DefaultJobTimeout = 30 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful
	// shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// Common errors returned by the Transport.
var (
	// ErrNotStarted indicates an operation was attempted before Start.
	ErrNotStarted = errors.New("transport not started")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("transport already started")
)

// Logger defines the logging interface for the transport.
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

// Config configures the Transport.
type Config struct {
	// Pool is the PostgreSQL connection pool.
	// Required.
	Pool *pgxpool.Pool

	// Handler consumes frames from the configured queues.
	// Optional: a nil Handler makes the transport publish-only.
	Handler transport.Handler

	// Queues maps consumed queue names to their worker counts.
	// A zero or negative count defaults to runtime.NumCPU().
	// Publishing is not restricted to these queues.
	Queues map[string]int

	// MaxAttempts caps frame re-delivery. If zero,
	// DefaultMaxAttempts is used.
	MaxAttempts int

	// JobTimeout is the maximum duration for handling one frame.
	// If zero, DefaultJobTimeout is used.
	JobTimeout time.Duration

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown. If zero, DefaultShutdownTimeout is used.
	ShutdownTimeout time.Duration

	// Logger is the logging interface. If nil, a no-op logger is used.
	Logger Logger
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Pool == nil {
		return errors.New("riverqueue: Pool is required")
	}
	if c.Handler == nil && len(c.Queues) > 0 {
		return errors.New("riverqueue: Handler is required when Queues are configured")
	}
	return nil
}

// withDefaults returns a copy of the config with default values applied.
func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return cfg
}

// Transport is a durable queue transport on River.
// It implements transport.Publisher.
type Transport struct {
	pool    *pgxpool.Pool
	handler transport.Handler
	logger  Logger
	config  Config

	client    *river.Client[pgx.Tx]
	started   bool
	consuming bool
	mu        sync.RWMutex
}

// New creates a Transport with the given configuration.
func New(config Config) (*Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()

	return &Transport{
		pool:    cfg.Pool,
		handler: cfg.Handler,
		logger:  cfg.Logger,
		config:  cfg,
	}, nil
}

// Migrate applies River's schema migrations to the pool's database.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}

// Start initializes the River client and, when queues are configured,
// begins consuming frames. Without queues the client is insert-only and
// is never started against the database: River rejects starting a
// client with no workers, and publishing does not need one.
// Must be called before Publish.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return ErrAlreadyStarted
	}

	riverCfg := &river.Config{
		JobTimeout:   t.config.JobTimeout,
		ErrorHandler: &errorHandler{logger: t.logger},
	}

	consuming := len(t.config.Queues) > 0
	if consuming {
		workers := river.NewWorkers()
		river.AddWorker(workers, &frameWorker{transport: t})
		riverCfg.Workers = workers

		riverCfg.Queues = make(map[string]river.QueueConfig, len(t.config.Queues))
		for queue, count := range t.config.Queues {
			if count <= 0 {
				count = runtime.NumCPU()
			}
			riverCfg.Queues[queue] = river.QueueConfig{MaxWorkers: count}
		}
	}

	client, err := river.NewClient(riverpgxv5.New(t.pool), riverCfg)
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}
	t.client = client

	if consuming {
		if err := t.client.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
	}

	t.started = true
	t.consuming = consuming
	t.logger.Info("transport started", "queues", len(t.config.Queues))

	return nil
}

// Stop gracefully shuts down the transport.
// Waits for in-flight frames up to ShutdownTimeout.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return nil
	}

	if t.consuming {
		shutdownCtx, cancel := context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()

		if err := t.client.Stop(shutdownCtx); err != nil {
			t.logger.Warn("river client stop error", "error", err)
		}
	}

	t.started = false
	t.consuming = false
	t.logger.Info("transport stopped")

	return nil
}

// Publish serializes the payload and inserts it as a durable frame job
// on the named queue. Queues do not need to be pre-declared for
// publishing; consumption happens wherever a worker pool has the queue
// configured.
func (t *Transport) Publish(ctx context.Context, queue string, payload any) error {
	t.mu.RLock()
	started := t.started
	t.mu.RUnlock()

	if !started {
		return ErrNotStarted
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	_, err = t.client.Insert(ctx, FrameJobArgs{Queue: queue, Payload: data}, &river.InsertOpts{
		Queue:       queue,
		MaxAttempts: t.config.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("insert frame job: %w", err)
	}

	t.logger.Debug("frame published", "queue", queue)
	return nil
}

// frameWorker delivers frame jobs to the configured Handler.
type frameWorker struct {
	river.WorkerDefaults[FrameJobArgs]
	transport *Transport
}

// Work implements river.Worker.
func (w *frameWorker) Work(ctx context.Context, job *river.Job[FrameJobArgs]) error {
	args := job.Args
	w.transport.logger.Debug("frame received", "queue", args.Queue, "attempt", job.Attempt)
	return w.transport.handler.HandleFrame(ctx, args.Queue, args.Payload)
}

// errorHandler logs River job errors.
type errorHandler struct {
	logger Logger
}

func (h *errorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.logger.Error("frame job error", "job_kind", job.Kind, "error", err)
	return nil
}

func (h *errorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.logger.Error("frame job panic", "job_kind", job.Kind, "panic", panicVal, "trace", trace)
	return nil
}
