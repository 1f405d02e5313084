// Package app orchestrates all components of waresync.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/waresync/waresync/internal/config"
	"github.com/waresync/waresync/internal/hub"
	"github.com/waresync/waresync/internal/notify"
	"github.com/waresync/waresync/internal/relay"
	httpserver "github.com/waresync/waresync/internal/server/http"
	"github.com/waresync/waresync/internal/store"
)

// App is the main application struct that orchestrates all components.
type App struct {
	cfg     *config.Config
	version string

	// Core components
	hub        *hub.Hub
	store      *store.Store
	listener   *notify.Listener
	relay      *relay.Relay
	httpServer *httpserver.Server

	// Lifecycle
	mu      sync.Mutex
	running bool
}

// New creates a new App instance.
func New(cfg *config.Config, version string) *App {
	return &App{
		cfg:     cfg,
		version: version,
		hub:     hub.New(),
	}
}

// Start starts the application and blocks until context is cancelled.
// Startup is fatal-fast: an unreachable database or notify backend aborts
// the process instead of limping along without its change feed.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.mu.Unlock()

	// Ensure the storage schema (and the notify trigger) exists
	if a.cfg.Database.MigrationsPath != "" {
		if err := store.RunMigrations(a.cfg.Database.URL, a.cfg.Database.MigrationsPath); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Str("path", a.cfg.Database.MigrationsPath).Msg("database schema up to date")
	}

	// Inventory store (CRUD pool)
	st, err := store.New(ctx, a.cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.store = st

	// Start event hub
	if err := a.hub.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	// Notification relay: dedicated LISTEN connection feeding the hub
	a.listener = notify.NewListener(
		a.cfg.Database.URL,
		a.cfg.Notify.ReconnectAttempts,
		a.cfg.Notify.ReconnectBackoff(),
	)
	a.relay = relay.New(a.listener, a.hub, a.cfg.Notify.Channel)
	if err := a.relay.Start(ctx); err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}

	// HTTP server: CRUD API + /ws subscriber endpoint
	a.httpServer = httpserver.New(
		a.cfg.Server.Host,
		a.cfg.Server.Port,
		a.store,
		a.hub,
		a.version,
	)
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	log.Info().
		Str("version", a.version).
		Str("addr", fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)).
		Str("channel", a.cfg.Notify.Channel).
		Msg("waresync started")

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	return a.shutdown()
}

// shutdown performs graceful shutdown of all components.
func (a *App) shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false

	log.Info().Msg("shutting down...")

	// Stop HTTP server first so no new subscribers arrive mid-shutdown
	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error stopping HTTP server")
		}
		cancel()
	}

	// Stop the relay (cancels the listen loop, disconnects the source)
	if a.relay != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.relay.Stop(stopCtx); err != nil {
			log.Error().Err(err).Msg("error stopping relay")
		}
		cancel()
	}

	// Stop hub (closes remaining subscribers)
	if err := a.hub.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping event hub")
	}

	// Release the database pool
	if a.store != nil {
		a.store.Close()
	}

	log.Info().Msg("waresync stopped")
	return nil
}
