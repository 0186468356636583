// Package memory provides an in-memory implementation of
// transport.Publisher. Frames are recorded per queue and can be drained
// into a Handler, which makes worker interleavings reproducible in
// tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lirancohen/dirigent/transport"
)

// Transport is a thread-safe in-memory queue transport.
// The zero value is ready for use.
type Transport struct {
	mu     sync.Mutex
	queues map[string][]json.RawMessage
}

// New creates a new in-memory transport.
func New() *Transport {
	return &Transport{queues: make(map[string][]json.RawMessage)}
}

// Publish serializes the payload and appends it to the named queue.
func (t *Transport) Publish(ctx context.Context, queue string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.queues == nil {
		t.queues = make(map[string][]json.RawMessage)
	}
	t.queues[queue] = append(t.queues[queue], data)
	return nil
}

// Frames returns all frames published to a queue, in publish order.
func (t *Transport) Frames(queue string) []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	frames := make([]json.RawMessage, len(t.queues[queue]))
	copy(frames, t.queues[queue])
	return frames
}

// Commands decodes all frames on a queue as command frames.
func (t *Transport) Commands(queue string) ([]transport.Command, error) {
	frames := t.Frames(queue)
	cmds := make([]transport.Command, 0, len(frames))
	for _, f := range frames {
		var cmd transport.Command
		if err := json.Unmarshal(f, &cmd); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// Drain delivers all pending frames on a queue to the handler and
// clears the queue. Frames published during delivery are delivered too,
// which mirrors a worker catching up on its own re-enqueued work.
func (t *Transport) Drain(ctx context.Context, queue string, h transport.Handler) error {
	for {
		t.mu.Lock()
		pending := t.queues[queue]
		delete(t.queues, queue)
		t.mu.Unlock()

		if len(pending) == 0 {
			return nil
		}
		for _, f := range pending {
			if err := h.HandleFrame(ctx, queue, f); err != nil {
				return err
			}
		}
	}
}

// Reset drops all queues.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queues = make(map[string][]json.RawMessage)
}
