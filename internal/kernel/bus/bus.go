// Package bus implements the Epistemic Event Bus: a typed pub/sub with
// durable SQLite persistence and a best-effort vector-semantic observer
// (spec.md §4.6, grounded on bus_persistence.py's EventBus/BusObserver
// design and the teacher's synchronous, mutex-guarded collaborators).
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/empirica/kernel/internal/models"
)

// Observer is the capability implemented by every bus subscriber —
// the sole interface standing in for the source's EpistemicObserver mixin
// (spec.md §9).
type Observer interface {
	HandleEvent(ctx context.Context, event *models.EpistemicEvent)
}

// Bus dispatches events synchronously to all subscribed observers on the
// publisher's own flow (spec.md §5). Subscribe takes the write lock;
// Publish takes the read lock only to copy the observer list and
// dispatches after releasing it.
type Bus struct {
	mu         sync.RWMutex
	observers  []Observer
	eventCount int64
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers an observer. Observers are invoked in registration
// order on every subsequent Publish.
func (b *Bus) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Publish delivers event to every observer, synchronously, on the calling
// goroutine. An observer panic is recovered and discarded, never
// propagated to the publisher; the bus does not log it. Observers log
// their own errors.
func (b *Bus) Publish(ctx context.Context, event *models.EpistemicEvent) {
	b.mu.RLock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	atomic.AddInt64(&b.eventCount, 1)

	for _, o := range observers {
		dispatchSafely(ctx, o, event)
	}
}

func dispatchSafely(ctx context.Context, o Observer, event *models.EpistemicEvent) {
	defer func() {
		_ = recover()
	}()
	o.HandleEvent(ctx, event)
}

// GetObserverCount returns the number of currently subscribed observers.
func (b *Bus) GetObserverCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}

// GetEventCount returns the number of events published since creation.
func (b *Bus) GetEventCount() int64 {
	return atomic.LoadInt64(&b.eventCount)
}
