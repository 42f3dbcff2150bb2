package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dialPair upgrades one real WebSocket connection and returns both ends: the
// server-side conn a Client wraps and the peer the test reads from.
func dialPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- c
	}))
	t.Cleanup(ts.Close)

	peer, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = peer.Close() })

	select {
	case serverConn := <-connCh:
		t.Cleanup(func() { _ = serverConn.Close() })
		return serverConn, peer
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the upgraded connection")
		return nil, nil
	}
}

// registerClient places a client into the hub's maps and room grouping
// without starting its pumps, so the send buffer is never drained.
func registerClient(h *Hub, client *Client, roomID string) {
	h.mutex.Lock()
	h.clients[client.id] = client
	h.mutex.Unlock()
	h.JoinRoom(roomID, client.id)
}

func TestHubFullBufferDropsClientWithoutStallingRoom(t *testing.T) {
	h := NewHub(discardLogger(), nil)
	serverConn, peer := dialPair(t)

	cfg := NewConfig()
	client := NewClient(serverConn, h, "test", cfg, discardLogger())
	registerClient(h, client, "x")

	for i := 0; i < cap(client.send); i++ {
		client.send <- []byte(`{}`)
	}

	// The overflow broadcast must return immediately and disconnect the
	// slow client instead of blocking the room.
	done := make(chan struct{})
	go func() {
		h.ToRoom("x", EventRemoveCursor, "conn-z")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full send buffer")
	}

	// The overflow frame was dropped, not queued.
	assert.Equal(t, cap(client.send), len(client.send))

	// The client's connection was closed; its peer sees the close.
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := peer.ReadMessage()
	assert.Error(t, err, "slow client should have been disconnected")
}

func TestHubBroadcastRacingDisconnectDoesNotPanic(t *testing.T) {
	h := NewHub(discardLogger(), nil)

	client := &Client{
		id:     "conn-a",
		send:   make(chan []byte, 4),
		logger: discardLogger(),
	}
	registerClient(h, client, "x")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			h.ToConnection("conn-a", EventNewCursor, CursorRef{ID: "conn-a"})
			h.ToRoom("x", EventRemoveCursor, "conn-a")
		}
	}()
	go func() {
		defer wg.Done()
		h.dropClient(client)
	}()
	wg.Wait()

	// The client is gone and late broadcasts to it are silent no-ops.
	h.mutex.RLock()
	_, exists := h.clients["conn-a"]
	h.mutex.RUnlock()
	assert.False(t, exists)
	assert.NotPanics(t, func() {
		h.ToConnection("conn-a", EventNewCursor, CursorRef{ID: "conn-a"})
	})
}
