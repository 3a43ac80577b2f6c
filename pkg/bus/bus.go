// Package bus implements a synchronous in-process publish/subscribe
// bus. Handlers for an event run in registration order on the
// publisher's goroutine, so an event is fully handled when Publish
// returns.
package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Event names used across the service.
const (
	// EventUserUpdated carries a UserEvent for a user lifecycle change
	EventUserUpdated = "user.updated"

	// EventDoNotEmailUpdated carries a DoNotEmailEvent when the
	// do-not-email profile flag changes
	EventDoNotEmailUpdated = "user.do_not_email_updated"

	// EventLeadSynced carries a LeadSyncedEvent after a successful
	// lead update
	EventLeadSynced = "lead.synced"
)

// UserEvent is published when a user is added, updated or deleted.
// Action is one of "add", "update", "delete".
type UserEvent struct {
	UserID int64
	Action string
}

// DoNotEmailEvent is published when a user's do-not-email profile flag
// changes.
type DoNotEmailEvent struct {
	UserID     int64
	DoNotEmail bool
}

// Handler processes one published event. The payload type depends on
// the event name.
type Handler func(ctx context.Context, payload interface{})

// Bus dispatches events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event. Relative order among
// handlers for the same event is the order they were registered in.
func (b *Bus) Subscribe(event string, h Handler) {
	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], h)
	b.mu.Unlock()
}

// Publish dispatches the payload to every handler subscribed to the
// event, synchronously and in registration order.
func (b *Bus) Publish(ctx context.Context, event string, payload interface{}) {
	b.mu.RLock()
	handlers := b.handlers[event]
	b.mu.RUnlock()

	b.logger.Debug("Publishing event",
		zap.String("event", event),
		zap.Int("handlers", len(handlers)))

	for _, h := range handlers {
		h(ctx, payload)
	}
}
