// Package bus defines the in-process event distribution port.
package bus

import (
	"context"

	"github.com/arenaforge/arenaforge/internal/domain/event"
)

// Handler receives one event. Handlers must not block; slow consumers are
// expected to buffer internally.
type Handler func(ev event.Event)

// Bus carries typed lifecycle events from the runner to zero or more
// subscribers. Every subscriber receives every event exactly once per
// subscription, in emission order for a given competition.
type Bus interface {
	Publish(ctx context.Context, ev event.Event)

	// Subscribe registers a handler for all subsequent events and returns
	// an unsubscribe function.
	Subscribe(h Handler) (unsubscribe func())
}
