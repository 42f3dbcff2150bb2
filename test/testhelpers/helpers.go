// Package testhelpers provides shared utilities for the relay's integration
// tests: spinning up a full relay over httptest, dialing WebSocket clients,
// and reading framed events with deadlines.
package testhelpers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/blockpad/relay/internal/server"
)

// Relay bundles a fully wired relay server for tests.
type Relay struct {
	Server   *httptest.Server
	Registry *server.Registry
	Hub      *server.Hub
}

// StartRelay builds the complete stack (registry, hub, router, routes) on an
// httptest server and tears it down with the test.
func StartRelay(t *testing.T, cfg *server.Config) *Relay {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg == nil {
		cfg = server.NewConfig()
	}

	promRegistry := prometheus.NewRegistry()
	metrics := server.NewMetrics(promRegistry)

	registry := server.NewRegistry(logger)
	hub := server.NewHub(logger, metrics)
	router := server.NewRouter(registry, hub, logger, metrics)
	hub.Bind(router)
	go hub.Run()

	policy := server.NewOriginPolicy(cfg.AllowedOrigins, logger)
	wsHandler := server.NewWebSocketHandler(hub, cfg, policy, logger)
	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	ts := httptest.NewServer(server.SetupRoutes(wsHandler, policy, metricsHandler, logger))

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(time.Second)
	})

	return &Relay{Server: ts, Registry: registry, Hub: hub}
}

// WebSocketURL converts the test server's base URL to its ws:// endpoint.
func (r *Relay) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(r.Server.URL, "http") + "/ws"
}

// Dial opens a WebSocket client against the relay and closes it with the test.
func Dial(t *testing.T, r *Relay) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(r.WebSocketURL(), nil)
	require.NoError(t, err, "websocket dial failed")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Send writes one framed event to the connection.
func Send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	frame, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// ReadEnvelope reads the next frame from the connection, failing the test if
// nothing arrives within two seconds.
func ReadEnvelope(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, frame, err := conn.ReadMessage()
	require.NoError(t, err, "expected a frame before the read deadline")

	var env server.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env
}

// ReadEvent reads the next frame, asserts its event name, and decodes its
// data into dst.
func ReadEvent(t *testing.T, conn *websocket.Conn, wantEvent string, dst any) {
	t.Helper()

	env := ReadEnvelope(t, conn)
	require.Equal(t, wantEvent, env.Event)
	if dst != nil {
		require.NoError(t, json.Unmarshal(env.Data, dst))
	}
}

// AssertSilence asserts that no frame arrives on the connection within the
// given window. The read deadline error is permanent, so this must be the
// last read performed on the connection.
func AssertSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(window)))
	_, frame, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, got: %s", frame)
}

// Eventually polls the condition until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// Get issues a GET request with an optional Origin header and returns the
// response.
func Get(t *testing.T, url, origin string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
