// Package relay coordinates the change-event pipeline: it wires the notify
// listener to the broadcast hub and owns the background listen loop.
package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/waresync/waresync/internal/domain/events"
	"github.com/waresync/waresync/internal/domain/ports"
)

// State is the relay lifecycle state.
type State string

const (
	StateStopped   State = "stopped"
	StateStarting  State = "starting"
	StateListening State = "listening"
	StateStopping  State = "stopping"
)

// Relay owns the lifecycle of the change-event source and routes every
// received event to the broadcaster. The listen loop runs as a background
// goroutine between Start and Stop.
type Relay struct {
	source      ports.ChangeSource
	broadcaster ports.Broadcaster
	channel     string

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a relay for the given source, broadcaster, and channel.
func New(source ports.ChangeSource, broadcaster ports.Broadcaster, channel string) *Relay {
	return &Relay{
		source:      source,
		broadcaster: broadcaster,
		channel:     channel,
		state:       StateStopped,
	}
}

// Start subscribes to the change channel and spawns the listen loop. A
// backend that is unreachable at subscribe time fails startup; the caller
// is expected to treat that as fatal.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateStopped {
		r.mu.Unlock()
		return fmt.Errorf("relay already started (state %s)", r.state)
	}
	r.state = StateStarting
	r.mu.Unlock()

	r.source.AddHandler(func(ctx context.Context, ev events.ChangeEvent) {
		r.broadcaster.Broadcast(ev)
	})

	if err := r.source.Listen(ctx, r.channel); err != nil {
		r.setState(StateStopped)
		return fmt.Errorf("failed to listen on channel %q: %w", r.channel, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.state = StateListening
	r.mu.Unlock()

	go func() {
		defer close(done)
		if err := r.source.Run(runCtx); err != nil {
			// The listen loop already ran its disconnect cleanup; a broken
			// relay stops delivering live updates but never takes the CRUD
			// surface down with it.
			log.Error().Err(err).Msg("notify listen loop exited with error")
		}
	}()

	log.Info().Str("channel", r.channel).Msg("relay listening")
	return nil
}

// Stop cancels the listen loop, waits for it to exit (bounded by ctx), and
// disconnects the source as a safety net on top of the loop's own cleanup.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateListening {
		r.mu.Unlock()
		return nil
	}
	r.state = StateStopping
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("timed out waiting for listen loop to exit")
	}

	// Idempotent, so harmless when the loop's cleanup already ran.
	if err := r.source.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("error disconnecting change source")
	}

	r.setState(StateStopped)
	log.Info().Msg("relay stopped")
	return nil
}

// State returns the current lifecycle state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Relay) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}
