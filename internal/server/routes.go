// Package server wires HTTP handlers into a router for the relay.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes configures and returns the HTTP router with all application
// routes: health check, WebSocket endpoint, and metrics.
func SetupRoutes(ws *WebSocketHandler, policy *OriginPolicy, metricsHandler http.Handler, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Use(CORS(policy))

	r.Get("/", HealthHandler)
	r.Get("/test", HealthHandler)
	r.Get("/ws", ws.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	return r
}
