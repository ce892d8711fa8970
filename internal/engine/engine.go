// Package engine runs tracking calls on a bounded worker pool so request
// handlers never wait on slow analytics backends for batch ingestion.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/trackrelay/internal/config"
	"github.com/gyaneshwarpardhi/trackrelay/internal/event"
	"github.com/gyaneshwarpardhi/trackrelay/internal/metrics"
)

const defaultEventTimeout = 5 * time.Second

// ErrQueueFull is returned when the event queue has no room.
var ErrQueueFull = errors.New("event queue full")

// Tracker receives events. *tracking.Dispatcher implements it.
type Tracker interface {
	TrackEvent(ctx context.Context, ev *event.TrackingEvent)
}

// Engine fans events out to trackers on a worker pool.
type Engine struct {
	pool *workerPool[*trackWork]
	conf config.EngineConf
}

type trackWork struct {
	tracker Tracker
	ev      *event.TrackingEvent
	done    chan struct{}
}

// New creates an Engine using conf and starts the worker pool.
func New(ctx context.Context, conf config.EngineConf) *Engine {
	e := &Engine{conf: conf}
	e.pool = newWorkerPool[*trackWork](ctx, conf.Workers, conf.QueueDepth, e.process)
	return e
}

func (e *Engine) process(ctx context.Context, w *trackWork) {
	if w.done != nil {
		defer close(w.done)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()
	w.tracker.TrackEvent(ctx, w.ev)
}

// ProcessSync tracks an event on the pool and waits for every backend call
// to finish. Returns ErrQueueFull if the queue is full.
func (e *Engine) ProcessSync(ctx context.Context, t Tracker, ev *event.TrackingEvent) error {
	w := &trackWork{tracker: t, ev: ev, done: make(chan struct{})}
	if !e.submit(w) {
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.pool.QueueCap())
	}

	timeout := e.timeout()
	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("event processing timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessAsync enqueues an event for background processing. Returns false if the queue is full.
func (e *Engine) ProcessAsync(t Tracker, ev *event.TrackingEvent) bool {
	return e.submit(&trackWork{tracker: t, ev: ev})
}

func (e *Engine) submit(w *trackWork) bool {
	if !e.pool.Submit(w) {
		metrics.EventsDropped.Inc()
		return false
	}
	metrics.EventsEnqueued.Inc()
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

func (e *Engine) timeout() time.Duration {
	if e.conf.EventTimeoutMs <= 0 {
		return defaultEventTimeout
	}
	return time.Duration(e.conf.EventTimeoutMs) * time.Millisecond
}

// Shutdown stops accepting events and waits for queued ones to be tracked.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
