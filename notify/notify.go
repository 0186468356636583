// Package notify defines the best-effort notification and metrics
// boundaries. Both collaborators are optional capabilities: the engine
// checks for their presence before use and never lets their absence or
// failure block dispatch.
package notify

import (
	"context"
	"log/slog"
)

// Notifier posts operator-facing alerts to a chat or paging sink.
type Notifier interface {
	// Notify sends a message. Room and severity may be empty, in
	// which case the sink's defaults apply. Fire-and-forget: errors
	// are for logging only.
	Notify(ctx context.Context, text, room, severity string) error
}

// Grapher records a point on a namespaced time-series metric.
type Grapher interface {
	// Graph records value for metric under the given state
	// (e.g. "new", "done", "failed"). Fire-and-forget.
	Graph(ctx context.Context, metric, state string, value float64, description string) error
}

// LogNotifier is a Notifier that writes alerts to a structured logger.
// Useful for development and as a stand-in sink in tests.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a Notifier backed by the given logger.
// A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, text, room, severity string) error {
	n.logger.InfoContext(ctx, "notify", "text", text, "room", room, "severity", severity)
	return nil
}

// LogGrapher is a Grapher that writes metric points to a structured
// logger.
type LogGrapher struct {
	logger *slog.Logger
}

// NewLogGrapher creates a Grapher backed by the given logger.
// A nil logger uses slog.Default().
func NewLogGrapher(logger *slog.Logger) *LogGrapher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogGrapher{logger: logger}
}

// Graph implements Grapher.
func (g *LogGrapher) Graph(ctx context.Context, metric, state string, value float64, description string) error {
	g.logger.InfoContext(ctx, "graph", "metric", metric, "state", state, "value", value, "description", description)
	return nil
}
