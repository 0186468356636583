package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lirancohen/dirigent/transport"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is how often the poller triggers a scheduler run.
const DefaultPollInterval = time.Minute

// Common errors returned by the Poller.
var (
	// ErrPollerAlreadyStarted indicates Start was called twice.
	ErrPollerAlreadyStarted = errors.New("poller already started")
)

// PollerConfig configures the Poller.
type PollerConfig struct {
	// Engine is the dispatch core whose queue receives the trigger
	// frames. Required.
	Engine *Engine

	// Interval is the poll period. If zero, DefaultPollInterval is
	// used.
	Interval time.Duration

	// Logger is the logging interface. If nil, the engine's logger
	// is used.
	Logger Logger
}

// Poller periodically publishes events_trigger commands onto the
// engine's own queue, so that any available worker runs the scheduler
// poll and due events are executed wherever there is capacity.
type Poller struct {
	engine   *Engine
	interval time.Duration
	logger   Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	g       *errgroup.Group
	started bool
}

// NewPoller creates a Poller with the given configuration.
func NewPoller(config PollerConfig) (*Poller, error) {
	if config.Engine == nil {
		return nil, errors.New("engine: Poller requires an Engine")
	}

	interval := config.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = config.Engine.logger
	}

	return &Poller{
		engine:   config.Engine,
		interval: interval,
		logger:   logger,
	}, nil
}

// Start launches the poll loop. Must be paired with Stop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPollerAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	g, loopCtx := errgroup.WithContext(loopCtx)
	p.cancel = cancel
	p.g = g
	p.started = true

	g.Go(func() error {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return nil
			case <-ticker.C:
				cmd := transport.NewCommand(transport.CmdEventsTrigger, nil)
				if err := p.engine.publisher.Publish(loopCtx, p.engine.queue, cmd); err != nil {
					// Transient transport trouble; keep polling.
					p.logger.Warn("scheduler trigger failed", "error", err)
				}
			}
		}
	})

	p.logger.Info("poller started", "interval", p.interval)
	return nil
}

// Stop terminates the poll loop and waits for it to exit.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	p.cancel()
	err := p.g.Wait()
	p.started = false

	p.logger.Info("poller stopped")
	return err
}
