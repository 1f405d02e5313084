// Package notify implements the Postgres LISTEN/NOTIFY change-event source.
//
// A Listener owns one dedicated connection to the database, kept separate
// from the CRUD pool: LISTEN registrations are per-connection, and the
// notification wait must not hold a pooled connection hostage. The listener
// decodes each notification payload as JSON and dispatches it to the
// registered handlers sequentially.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/waresync/waresync/internal/domain"
	"github.com/waresync/waresync/internal/domain/events"
	"github.com/waresync/waresync/internal/domain/ports"
)

const (
	// Time allowed for the orderly disconnect on loop exit.
	disconnectTimeout = 5 * time.Second
)

// Listener subscribes to Postgres notification channels and dispatches
// decoded change events to registered handlers.
type Listener struct {
	databaseURL string

	// Bounded reconnect on mid-operation connection loss. Zero attempts
	// preserves fails-until-restarted behavior.
	reconnectAttempts int
	reconnectDelay    time.Duration

	mu       sync.Mutex
	conn     *pgx.Conn
	handlers []ports.ChangeHandler
	channels []string
}

// NewListener creates a listener for the given database URL.
func NewListener(databaseURL string, reconnectAttempts int, reconnectDelay time.Duration) *Listener {
	return &Listener{
		databaseURL:       databaseURL,
		reconnectAttempts: reconnectAttempts,
		reconnectDelay:    reconnectDelay,
	}
}

// Connect establishes the dedicated notification connection.
func (l *Listener) Connect(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.databaseURL)
	if err != nil {
		return domain.NewNotifyError("connect", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	log.Info().Msg("connected to postgres for notifications")
	return nil
}

// AddHandler appends a handler to the dispatch list. Handlers are invoked
// in registration order, one at a time, for every received event.
func (l *Listener) AddHandler(h ports.ChangeHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Listen registers interest in a notification channel, connecting lazily
// if no connection exists yet.
func (l *Listener) Listen(ctx context.Context, channel string) error {
	if l.connection() == nil {
		if err := l.Connect(ctx); err != nil {
			return err
		}
	}

	if err := l.listenOn(ctx, l.connection(), channel); err != nil {
		return err
	}

	l.mu.Lock()
	l.channels = append(l.channels, channel)
	l.mu.Unlock()

	log.Info().Str("channel", channel).Msg("listening to channel")
	return nil
}

func (l *Listener) listenOn(ctx context.Context, conn *pgx.Conn, channel string) error {
	if conn == nil {
		return domain.NewNotifyError("listen", domain.ErrNotConnected)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return domain.NewNotifyError("listen", err)
	}
	return nil
}

// Run blocks waiting for notifications until ctx is cancelled. Every exit
// path, cancellation included, runs the disconnect cleanup. Errors inside
// the loop are logged and answered with a bounded reconnect; they never
// escape as a fatal process error.
func (l *Listener) Run(ctx context.Context) error {
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := l.Disconnect(cleanupCtx); err != nil {
			log.Warn().Err(err).Msg("error disconnecting notify listener")
		}
	}()

	attempts := 0
	for {
		conn := l.connection()
		if conn == nil {
			return domain.NewNotifyError("run", domain.ErrNotConnected)
		}

		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("notify listener cancelled")
				return nil
			}

			log.Error().Err(err).Msg("error waiting for notification")

			attempts++
			if attempts > l.reconnectAttempts {
				return domain.NewNotifyError("run", err)
			}
			if err := l.reconnect(ctx, attempts); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			continue
		}

		attempts = 0
		l.dispatch(ctx, notification.Payload)
	}
}

// reconnect re-establishes the connection and re-registers all channels
// after a backoff proportional to the attempt count.
func (l *Listener) reconnect(ctx context.Context, attempt int) error {
	l.closeConn(ctx)

	delay := l.reconnectDelay * time.Duration(attempt)
	log.Warn().
		Int("attempt", attempt).
		Int("max_attempts", l.reconnectAttempts).
		Dur("delay", delay).
		Msg("reconnecting notify listener")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if err := l.Connect(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	channels := make([]string, len(l.channels))
	copy(channels, l.channels)
	l.mu.Unlock()

	for _, channel := range channels {
		if err := l.listenOn(ctx, l.connection(), channel); err != nil {
			return err
		}
	}
	return nil
}

// dispatch decodes a raw payload and invokes every registered handler.
// A malformed payload is logged and dropped; a panicking handler is logged
// and the remaining handlers still run. Nothing here may propagate into
// the notification wait loop.
func (l *Listener) dispatch(ctx context.Context, payload string) {
	ev, err := events.Decode([]byte(payload))
	if err != nil {
		log.Error().Err(err).Msg("malformed notification payload, dropping event")
		return
	}

	log.Debug().
		Str("operation", ev.Operation()).
		Msg("notification received")

	l.mu.Lock()
	handlers := make([]ports.ChangeHandler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.Unlock()

	for _, h := range handlers {
		l.invoke(ctx, h, ev)
	}
}

func (l *Listener) invoke(ctx context.Context, h ports.ChangeHandler, ev events.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Msg("handler panicked during dispatch")
		}
	}()
	h(ctx, ev)
}

// Disconnect closes the underlying connection if open. Safe to call when
// already disconnected.
func (l *Listener) Disconnect(ctx context.Context) error {
	l.closeConn(ctx)
	return nil
}

func (l *Listener) closeConn(ctx context.Context) {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("error closing notify connection")
		return
	}
	log.Info().Msg("disconnected from postgres notifications")
}

func (l *Listener) connection() *pgx.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// Ensure Listener implements ports.ChangeSource.
var _ ports.ChangeSource = (*Listener)(nil)
