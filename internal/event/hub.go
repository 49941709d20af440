package event

import (
	"log/slog"
	"sync"
)

// Type identifies a hub event kind.
type Type string

const (
	// TypeMessageCreated fires after a message is persisted to a thread.
	TypeMessageCreated Type = "message.created"
	// TypeThreadArchived fires after a thread is soft deleted.
	TypeThreadArchived Type = "thread.archived"
	// TypeActionRemoved fires after a bot action is soft deleted.
	TypeActionRemoved Type = "bot_action.removed"
)

// Event is a single in-process notification. Data carries the event-specific
// payload struct owned by the publishing package.
type Event struct {
	Type Type
	Data any
}

// Publisher is the write side of the hub.
type Publisher interface {
	Publish(event Event)
}

// Hub fans events out to subscribers synchronously in subscription order.
// Subscribers must not block; anything long-running belongs on a queue.
type Hub struct {
	mu          sync.RWMutex
	subscribers []func(Event)
	logger      *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{logger: log.With(slog.String("service", "event"))}
}

// Subscribe registers fn for every published event.
func (h *Hub) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

// Publish delivers event to all subscribers. A panicking subscriber is
// recovered and logged so the remaining subscribers still run.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	subscribers := make([]func(Event), len(h.subscribers))
	copy(subscribers, h.subscribers)
	h.mu.RUnlock()
	for _, fn := range subscribers {
		h.deliver(fn, event)
	}
}

func (h *Hub) deliver(fn func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("event subscriber panicked",
				slog.String("type", string(event.Type)),
				slog.Any("panic", r),
			)
		}
	}()
	fn(event)
}
