// Package hub implements the subscriber registry and broadcast engine for
// waresync.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/waresync/waresync/internal/domain/events"
	"github.com/waresync/waresync/internal/domain/ports"
)

// Hub owns the set of live subscribers and fans change events out to them.
//
// Broadcast is synchronous: events handed to Broadcast are delivered to the
// snapshot of subscribers in order, one event at a time, matching the
// strictly sequential dispatch of the notify listener. Per-subscriber
// delivery order is therefore the backend's notification order.
type Hub struct {
	// mu protects subscribers and running
	mu sync.RWMutex

	// subscribers holds all active subscribers keyed by ID
	subscribers map[string]ports.Subscriber

	// running indicates if the hub is accepting subscribers
	running bool
}

// New creates a new Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]ports.Subscriber),
	}
}

// Start marks the hub as running.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}
	h.running = true
	log.Debug().Msg("event hub started")
	return nil
}

// Stop closes all subscribers and stops accepting new ones.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return nil
	}
	h.running = false

	for _, sub := range h.subscribers {
		_ = sub.Close()
	}
	h.subscribers = make(map[string]ports.Subscriber)

	log.Debug().Msg("event hub stopped")
	return nil
}

// Subscribe adds a new subscriber. Subscribers added while the hub is
// stopped are closed immediately.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		_ = sub.Close()
		return
	}
	h.subscribers[sub.ID()] = sub
	total := len(h.subscribers)
	h.mu.Unlock()

	log.Debug().
		Str("subscriber_id", sub.ID()).
		Int("total", total).
		Msg("subscriber registered")
}

// Unsubscribe removes and closes a subscriber by ID. Removing an absent
// subscriber is a no-op, so disconnect detection and broadcast eviction may
// race on the same handle safely.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	total := len(h.subscribers)
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = sub.Close()

	log.Debug().
		Str("subscriber_id", id).
		Int("total", total).
		Msg("subscriber unregistered")
}

// Snapshot returns a point-in-time copy of the subscriber set. Mutation
// during a broadcast pass never invalidates the returned slice.
func (h *Hub) Snapshot() []ports.Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make([]ports.Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// Broadcast serializes the event once and attempts delivery to every
// subscriber in the current snapshot. A failed send marks that subscriber
// for eviction; the remaining subscribers are unaffected. Broadcast never
// returns an error to its caller so one bad subscriber cannot disrupt the
// notify dispatch loop.
func (h *Hub) Broadcast(ev events.ChangeEvent) {
	data, err := ev.Encode()
	if err != nil {
		log.Error().Err(err).Msg("failed to serialize change event")
		return
	}

	var failed []string
	for _, sub := range h.Snapshot() {
		if err := sub.Send(data); err != nil {
			log.Warn().
				Str("subscriber_id", sub.ID()).
				Err(err).
				Msg("failed to send event to subscriber")
			failed = append(failed, sub.ID())
		}
	}

	// Evict failed subscribers after the full delivery pass. No retry:
	// a failed subscriber is assumed dead.
	for _, id := range failed {
		h.Unsubscribe(id)
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// IsRunning returns true if the hub is running.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
