package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/lirancohen/dirigent/transport"
)

func TestPublishAndFrames(t *testing.T) {
	tr := New()
	ctx := context.Background()

	if err := tr.Publish(ctx, "q", map[string]any{"n": 1}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := tr.Publish(ctx, "q", map[string]any{"n": 2}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	frames := tr.Frames("q")
	if len(frames) != 2 {
		t.Fatalf("Frames() = %d, want 2", len(frames))
	}
	if string(frames[0]) != `{"n":1}` {
		t.Errorf("first frame = %s", frames[0])
	}

	if got := tr.Frames("other"); len(got) != 0 {
		t.Errorf("unknown queue has %d frames", len(got))
	}
}

func TestPublishUnmarshalable(t *testing.T) {
	tr := New()

	err := tr.Publish(context.Background(), "q", map[string]any{"f": func() {}})
	if err == nil {
		t.Fatal("Publish() accepted an unmarshalable payload")
	}
}

func TestCommands(t *testing.T) {
	tr := New()

	cmd := transport.NewCommand("event_exec", map[string]any{"event_id": "E1"})
	if err := tr.Publish(context.Background(), "q", cmd); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	cmds, err := tr.Commands("q")
	if err != nil {
		t.Fatalf("Commands() error = %v", err)
	}
	if len(cmds) != 1 || cmds[0].Data.Command != "event_exec" {
		t.Fatalf("Commands() = %+v", cmds)
	}
	if cmds[0].Data.Options["event_id"] != "E1" {
		t.Errorf("options = %+v", cmds[0].Data.Options)
	}
}

func TestDrain(t *testing.T) {
	tr := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := tr.Publish(ctx, "q", map[string]any{"n": i}); err != nil {
			t.Fatal(err)
		}
	}

	var seen int
	handler := transport.HandlerFunc(func(ctx context.Context, queue string, payload json.RawMessage) error {
		seen++
		// Re-enqueue once from inside delivery; Drain must pick it up.
		if seen == 1 {
			return tr.Publish(ctx, "q", map[string]any{"n": 99})
		}
		return nil
	})

	if err := tr.Drain(ctx, "q", handler); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if seen != 4 {
		t.Errorf("delivered %d frames, want 4 (including the re-enqueued one)", seen)
	}
	if got := tr.Frames("q"); len(got) != 0 {
		t.Errorf("queue not empty after drain: %d frames", len(got))
	}
}

func TestDrainHandlerError(t *testing.T) {
	tr := New()
	ctx := context.Background()

	if err := tr.Publish(ctx, "q", map[string]any{}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := tr.Drain(ctx, "q", transport.HandlerFunc(func(context.Context, string, json.RawMessage) error {
		return boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("Drain() error = %v, want boom", err)
	}
}

func TestReset(t *testing.T) {
	tr := New()

	if err := tr.Publish(context.Background(), "q", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	tr.Reset()
	if got := tr.Frames("q"); len(got) != 0 {
		t.Errorf("queue not empty after reset")
	}
}
