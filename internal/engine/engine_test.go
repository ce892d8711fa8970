package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/gyaneshwarpardhi/trackrelay/internal/config"
	"github.com/gyaneshwarpardhi/trackrelay/internal/engine"
	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingTracker remembers every action it was asked to track.
type recordingTracker struct {
	mu      sync.Mutex
	actions []string
	block   chan struct{}
}

func (r *recordingTracker) TrackEvent(ctx context.Context, ev *event.TrackingEvent) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	r.mu.Lock()
	r.actions = append(r.actions, ev.Action)
	r.mu.Unlock()
}

func (r *recordingTracker) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func newEngine(t *testing.T, conf config.EngineConf) *engine.Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	e := engine.New(ctx, conf)
	t.Cleanup(func() {
		e.Shutdown()
		cancel()
	})
	return e
}

func ev(action string) *event.TrackingEvent {
	return &event.TrackingEvent{Action: action, Category: event.CategoryMisc}
}

func TestProcessSync(t *testing.T) {
	e := newEngine(t, config.EngineConf{Workers: 2, QueueDepth: 4, EventTimeoutMs: 1000})
	tr := &recordingTracker{}

	if err := e.ProcessSync(context.Background(), tr, ev("Listing Viewed")); err != nil {
		t.Fatal(err)
	}
	if got := tr.Actions(); len(got) != 1 || got[0] != "Listing Viewed" {
		t.Errorf("tracked %v", got)
	}
}

func TestProcessAsync_DrainsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := engine.New(ctx, config.EngineConf{Workers: 1, QueueDepth: 10, EventTimeoutMs: 1000})
	tr := &recordingTracker{}

	for i := 0; i < 5; i++ {
		if !e.ProcessAsync(tr, ev("a")) {
			t.Fatalf("event %d rejected", i)
		}
	}
	e.Shutdown()

	if n := len(tr.Actions()); n != 5 {
		t.Errorf("tracked %d events before shutdown returned, want 5", n)
	}
	if e.ProcessAsync(tr, ev("late")) {
		t.Error("events must be rejected after shutdown")
	}
	e.Shutdown() // idempotent
}

func TestQueueFull(t *testing.T) {
	e := newEngine(t, config.EngineConf{Workers: 1, QueueDepth: 2, EventTimeoutMs: 1000})
	blocked := &recordingTracker{block: make(chan struct{})}
	defer close(blocked.block)

	// one job held by the worker, two in the queue
	if !e.ProcessAsync(blocked, ev("held")) {
		t.Fatal("first event rejected")
	}
	deadline := time.Now().Add(2 * time.Second)
	for e.QueueUtilization() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never picked up the first event")
		}
		time.Sleep(time.Millisecond)
	}
	for i := 0; i < 2; i++ {
		if !e.ProcessAsync(blocked, ev("queued")) {
			t.Fatalf("queued event %d rejected", i)
		}
	}
	if u := e.QueueUtilization(); u != 1 {
		t.Errorf("utilization = %v, want 1", u)
	}

	if e.ProcessAsync(blocked, ev("overflow")) {
		t.Error("expected overflow to be rejected")
	}
	err := e.ProcessSync(context.Background(), blocked, ev("overflow"))
	if !errors.Is(err, engine.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestProcessSync_ContextCanceled(t *testing.T) {
	e := newEngine(t, config.EngineConf{Workers: 1, QueueDepth: 1, EventTimeoutMs: 5000})
	blocked := &recordingTracker{block: make(chan struct{})}
	defer close(blocked.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.ProcessSync(ctx, blocked, ev("slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
