// Package server exposes the HTTP handlers: the WebSocket upgrade endpoint
// and the health check.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades HTTP requests to WebSocket connections and hands
// the resulting clients to the hub.
type WebSocketHandler struct {
	hub      *Hub
	cfg      *Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler builds the upgrade handler with the given origin policy.
func NewWebSocketHandler(hub *Hub, cfg *Config, policy *OriginPolicy, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.CheckRequest,
		},
	}
}

// ServeHTTP upgrades the connection, assigns it an identifier, and registers
// it with the hub. The hub launches the pump goroutines.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, h.hub, r.RemoteAddr, h.cfg, h.logger)
	h.hub.Register() <- client
}

// HealthHandler answers the health check with the fixed payload the original
// service served on /test.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
