// Package ports defines the contracts between the relay's components.
package ports

import (
	"context"

	"github.com/waresync/waresync/internal/domain/events"
)

// Subscriber represents a live subscriber connection.
type Subscriber interface {
	// ID returns a unique identifier for this subscriber.
	ID() string

	// Send delivers a serialized event to this subscriber.
	// Returns an error if the subscriber is closed or the send fails;
	// a failed subscriber is assumed dead and evicted by the hub.
	Send(message []byte) error

	// Close closes the subscriber. Safe to call multiple times.
	Close() error
}

// Broadcaster delivers a change event to all live subscribers.
type Broadcaster interface {
	// Broadcast serializes the event once and attempts delivery to every
	// current subscriber. Delivery failures are isolated per subscriber
	// and never surface to the caller.
	Broadcast(ev events.ChangeEvent)
}

// Registry manages the set of live subscribers.
type Registry interface {
	Subscribe(sub Subscriber)
	Unsubscribe(id string)
	SubscriberCount() int
}

// ChangeHandler is invoked once per received change event. Handlers run
// sequentially in registration order; a slow handler delays the next one.
type ChangeHandler func(ctx context.Context, ev events.ChangeEvent)

// ChangeSource is a subscription to an external change-notification
// channel. One source owns exactly one backend connection.
type ChangeSource interface {
	// Connect establishes the underlying backend connection.
	Connect(ctx context.Context) error

	// AddHandler appends a handler to the dispatch list.
	AddHandler(h ChangeHandler)

	// Listen registers interest in a channel, connecting lazily if needed.
	Listen(ctx context.Context, channel string) error

	// Run blocks dispatching notifications until ctx is cancelled. The
	// disconnect path runs on every exit, cancellation included.
	Run(ctx context.Context) error

	// Disconnect closes the backend connection. Idempotent.
	Disconnect(ctx context.Context) error
}
