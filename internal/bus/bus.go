// Package bus implements the in-process event bus.
package bus

import (
	"context"
	"sync"

	"github.com/arenaforge/arenaforge/internal/domain/event"
	portbus "github.com/arenaforge/arenaforge/internal/port/bus"
)

// Bus is a synchronous in-process publish/subscribe channel. Delivery
// happens on the publisher's goroutine, so events from one competition
// (published by its single runner goroutine) reach every subscriber in
// emission order. Cross-competition interleaving is unconstrained.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]portbus.Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]portbus.Handler)}
}

// Publish delivers ev to every current subscriber, exactly once each.
func (b *Bus) Publish(_ context.Context, ev event.Event) {
	b.mu.RLock()
	handlers := make([]portbus.Handler, 0, len(b.subs))
	for i := 0; i < b.next; i++ {
		if h, ok := b.subs[i]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribe registers h for all subsequent events. The returned function
// removes the subscription; it is safe to call more than once.
func (b *Bus) Subscribe(h portbus.Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
