// Package http implements the HTTP API server for waresync.
//
// The CRUD surface and the WebSocket relay are deliberately decoupled: API
// clients never observe relay-internal errors, and a degraded relay only
// stops live updates without affecting request handling.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/waresync/waresync/internal/domain"
	"github.com/waresync/waresync/internal/domain/ports"
	"github.com/waresync/waresync/internal/server/websocket"
	"github.com/waresync/waresync/internal/store"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (configure for production)
	},
}

// Registry is the subscriber registry the /ws endpoint feeds.
type Registry interface {
	Subscribe(sub ports.Subscriber)
	Unsubscribe(id string)
	SubscriberCount() int
}

// Server is the HTTP API server.
type Server struct {
	addr       string
	httpServer *http.Server
	inventory  store.Inventory
	registry   Registry
	version    string
	startTime  time.Time
}

// New creates a new HTTP server.
func New(host string, port int, inventory store.Inventory, registry Registry, version string) *Server {
	s := &Server{
		addr:      fmt.Sprintf("%s:%d", host, port),
		inventory: inventory,
		registry:  registry,
		version:   version,
		startTime: time.Now(),
	}

	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Inventory CRUD
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/inventory", s.handleListItems).Methods("GET")
	api.HandleFunc("/inventory", s.handleCreateItem).Methods("POST")
	api.HandleFunc("/inventory/{id}", s.handleGetItem).Methods("GET")
	api.HandleFunc("/inventory/{id}", s.handleUpdateItem).Methods("PUT")
	api.HandleFunc("/inventory/{id}", s.handleDeleteItem).Methods("DELETE")

	// WebSocket endpoint for real-time inventory updates
	router.HandleFunc("/ws", s.handleWebSocket)

	// Swagger UI endpoint (REST API docs)
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      corsMiddleware(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("HTTP server starting")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("HTTP server stopping")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"service":     "waresync",
		"version":     s.version,
		"subscribers": s.registry.SubscriberCount(),
		"uptime_secs": int64(time.Since(s.startTime).Seconds()),
	})
}

// handleListItems handles GET /api/inventory
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.inventory.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list inventory")
		s.respondError(w, http.StatusInternalServerError, "failed to list inventory")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// handleCreateItem handles POST /api/inventory
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(w, http.StatusBadRequest, domain.ErrInvalidItem.Error())
		return
	}
	if req.Quantity < 0 {
		s.respondError(w, http.StatusBadRequest, domain.ErrInvalidQuantity.Error())
		return
	}

	item, err := s.inventory.Create(r.Context(), req.Name, req.Quantity)
	if err != nil {
		log.Error().Err(err).Msg("failed to create inventory item")
		s.respondError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	s.respondJSON(w, http.StatusCreated, item)
}

// handleGetItem handles GET /api/inventory/{id}
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}

	item, err := s.inventory.Get(r.Context(), id)
	if errors.Is(err, domain.ErrItemNotFound) {
		s.respondError(w, http.StatusNotFound, domain.ErrItemNotFound.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("item_id", id).Msg("failed to get inventory item")
		s.respondError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	s.respondJSON(w, http.StatusOK, item)
}

// handleUpdateItem handles PUT /api/inventory/{id}. Only the quantity is
// updatable.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}

	var req struct {
		Quantity *int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: quantity is required")
		return
	}
	if *req.Quantity < 0 {
		s.respondError(w, http.StatusBadRequest, domain.ErrInvalidQuantity.Error())
		return
	}

	item, err := s.inventory.UpdateQuantity(r.Context(), id, *req.Quantity)
	if errors.Is(err, domain.ErrItemNotFound) {
		s.respondError(w, http.StatusNotFound, domain.ErrItemNotFound.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("item_id", id).Msg("failed to update inventory item")
		s.respondError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	s.respondJSON(w, http.StatusOK, item)
}

// handleDeleteItem handles DELETE /api/inventory/{id}
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}

	err := s.inventory.Delete(r.Context(), id)
	if errors.Is(err, domain.ErrItemNotFound) {
		s.respondError(w, http.StatusNotFound, domain.ErrItemNotFound.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("item_id", id).Msg("failed to delete inventory item")
		s.respondError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "item deleted",
	})
}

// handleWebSocket upgrades the connection and registers it as a live
// subscriber. The client's read pump only detects disconnects; outbound
// traffic is whatever the relay broadcasts.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := websocket.NewClient(conn, func(id string) {
		s.registry.Unsubscribe(id)
	})

	s.registry.Subscribe(client)

	log.Info().
		Str("client_id", client.ID()).
		Str("remote_addr", conn.RemoteAddr().String()).
		Msg("client connected")

	client.Start()
}

func (s *Server) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// respondError sends an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error": message,
	})
}

// corsMiddleware adds CORS headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
