package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/waresync/waresync/internal/domain/events"
	"github.com/waresync/waresync/internal/testutil"
)

func TestRelay_StartStop(t *testing.T) {
	source := testutil.NewMockChangeSource()
	broadcaster := testutil.NewMockBroadcaster()
	r := New(source, broadcaster, "inventory_events")

	if got := r.State(); got != StateStopped {
		t.Errorf("State() = %s, want %s", got, StateStopped)
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := r.State(); got != StateListening {
		t.Errorf("State() = %s, want %s", got, StateListening)
	}
	if got := source.Channels(); len(got) != 1 || got[0] != "inventory_events" {
		t.Errorf("Listen channels = %v, want [inventory_events]", got)
	}
	if source.HandlerCount() != 1 {
		t.Errorf("HandlerCount() = %d, want 1", source.HandlerCount())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := r.State(); got != StateStopped {
		t.Errorf("State() = %s, want %s", got, StateStopped)
	}
}

func TestRelay_RoutesEventsToBroadcaster(t *testing.T) {
	source := testutil.NewMockChangeSource()
	broadcaster := testutil.NewMockBroadcaster()
	r := New(source, broadcaster, "inventory_events")

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	}()

	source.Emit(events.ChangeEvent{"operation": "INSERT", "id": float64(1)})
	source.Emit(events.ChangeEvent{"operation": "UPDATE", "id": float64(1)})

	deadline := time.After(time.Second)
	for broadcaster.EventCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("broadcaster got %d events, want 2", broadcaster.EventCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	got := broadcaster.Events()
	if got[0].Operation() != "INSERT" || got[1].Operation() != "UPDATE" {
		t.Errorf("events routed out of order: %v", got)
	}
}

func TestRelay_StartFailsWhenListenFails(t *testing.T) {
	source := testutil.NewMockChangeSource()
	source.ListenErr = errors.New("backend unreachable")
	r := New(source, testutil.NewMockBroadcaster(), "inventory_events")

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when Listen fails")
	}
	if got := r.State(); got != StateStopped {
		t.Errorf("State() = %s, want %s after failed start", got, StateStopped)
	}
}

func TestRelay_DoubleStart(t *testing.T) {
	source := testutil.NewMockChangeSource()
	r := New(source, testutil.NewMockBroadcaster(), "inventory_events")

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("second Start() should return an error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = r.Stop(ctx)
}

func TestRelay_StopCancelsLoopPromptly(t *testing.T) {
	source := testutil.NewMockChangeSource()
	r := New(source, testutil.NewMockBroadcaster(), "inventory_events")

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Stop() took %v, want under 200ms", elapsed)
	}

	// Loop cleanup plus the explicit safety-net disconnect.
	if source.Disconnects() < 2 {
		t.Errorf("Disconnects() = %d, want at least 2", source.Disconnects())
	}
	if source.IsConnected() {
		t.Error("source should be disconnected after Stop()")
	}
}

func TestRelay_StopWhenNotListening(t *testing.T) {
	source := testutil.NewMockChangeSource()
	r := New(source, testutil.NewMockBroadcaster(), "inventory_events")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() on a stopped relay error = %v", err)
	}
}
