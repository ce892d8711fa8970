// Package route carries client-side navigation notifications to listeners.
package route

import (
	"context"
	"slices"
	"sync"
)

// ChangeComplete is emitted once a client finished navigating to a new path.
const ChangeComplete = "routeChangeComplete"

// Handler receives the new path.
type Handler func(ctx context.Context, path string)

// Events is a named-event emitter. Subscriptions are released through the
// function returned by On, so callers can defer the release in the same scope.
type Events struct {
	mu       sync.Mutex
	next     uint64
	handlers map[string]map[uint64]Handler
}

// NewEvents creates an emitter with no listeners.
func NewEvents() *Events {
	return &Events{handlers: make(map[string]map[uint64]Handler)}
}

// On registers h for name and returns its release function. Calling the
// release function more than once is a no-op.
func (e *Events) On(name string, h Handler) (off func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.next
	e.next++
	if e.handlers[name] == nil {
		e.handlers[name] = make(map[uint64]Handler)
	}
	e.handlers[name][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.handlers[name], id)
			if len(e.handlers[name]) == 0 {
				delete(e.handlers, name)
			}
		})
	}
}

// Emit calls every handler registered for name. Handlers run outside the
// lock in registration order and may release themselves.
func (e *Events) Emit(ctx context.Context, name, path string) {
	e.mu.Lock()
	set := e.handlers[name]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		e.mu.Lock()
		h, ok := e.handlers[name][id]
		e.mu.Unlock()
		if ok {
			h(ctx, path)
		}
	}
}

// Len returns the number of listeners registered for name.
func (e *Events) Len(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[name])
}
