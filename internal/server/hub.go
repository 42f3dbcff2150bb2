// Package server coordinates client registration, room-scoped broadcast, and
// connection cleanup for the BlockPad relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionHandler receives transport lifecycle callbacks and inbound frames.
// The hub stays protocol-agnostic; the router implements this interface.
type SessionHandler interface {
	ConnectionOpened(connID string)
	Dispatch(connID string, frame []byte)
	ConnectionClosed(connID string)
}

// Hub owns all live WebSocket clients and the transport-side room grouping.
// It serializes registration and unregistration through its run loop and
// delivers outbound frames with non-blocking sends: a client whose buffer is
// full has its connection closed rather than stalling the room.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]*Client
	register   chan *Client
	unregister chan *Client
	session    SessionHandler
	logger     *slog.Logger
	metrics    *Metrics
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub ready to manage connections. Bind must be called with
// the session handler before the first client registers.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		metrics:    metrics,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Bind wires the session handler that receives lifecycle callbacks and
// inbound frames.
func (h *Hub) Bind(session SessionHandler) {
	h.session = session
}

// Register returns the channel used to hand new clients to the hub.
func (h *Hub) Register() chan<- *Client {
	return h.register
}

// Run is the hub's main event loop. It must be started in its own goroutine
// before the HTTP server accepts connections.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("nil client registration skipped")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.dropClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	total := len(h.clients)
	h.mutex.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionsActive.Inc()
	}
	h.logger.Info("connection established",
		"connection_id", client.id,
		"remote_addr", client.addr,
		"total_connections", total)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	if h.session != nil {
		h.session.ConnectionOpened(client.id)
	}
}

func (h *Hub) dropClient(client *Client) {
	h.mutex.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	for roomID := range client.rooms {
		h.removeFromRoomLocked(roomID, client.id)
	}
	client.rooms = nil
	total := len(h.clients)
	// Close the send channel while still holding the lock so deliver, which
	// sends under the read lock, can never race the close.
	close(client.send)
	h.mutex.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectionsActive.Dec()
	}
	h.logger.Info("connection closed",
		"connection_id", client.id,
		"remote_addr", client.addr,
		"total_connections", total)

	if h.session != nil {
		h.session.ConnectionClosed(client.id)
	}
}

// removeFromRoomLocked removes a connection from a room group and deletes the
// group when it empties. Callers must hold the write lock.
func (h *Hub) removeFromRoomLocked(roomID, connID string) {
	group, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(h.rooms, roomID)
	}
}

// JoinRoom adds a live connection to the transport-side grouping for roomID.
// The router calls this alongside Registry.Join to keep both views consistent.
func (h *Hub) JoinRoom(roomID, connID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][connID] = client
	if client.rooms == nil {
		client.rooms = make(map[string]struct{})
	}
	client.rooms[roomID] = struct{}{}
}

// ToConnection sends an event to exactly one connection. Unknown connection
// ids are a no-op.
func (h *Hub) ToConnection(connID, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		h.logger.Error("failed to encode outbound event", "event", event, "error", err)
		return
	}

	h.mutex.RLock()
	client := h.clients[connID]
	h.mutex.RUnlock()
	if client == nil {
		return
	}
	h.deliver(client, frame, event)
}

// ToRoomExcept sends an event to every member of roomID other than exceptID.
// Broadcasting to an absent room delivers to nobody.
func (h *Hub) ToRoomExcept(roomID, exceptID, event string, data any) {
	h.fanOut(roomID, exceptID, event, data)
}

// ToRoom sends an event to every member of roomID. Used for the disconnect
// remove-cursor notification, emitted after the leaver is already gone from
// the group.
func (h *Hub) ToRoom(roomID, event string, data any) {
	h.fanOut(roomID, "", event, data)
}

func (h *Hub) fanOut(roomID, exceptID, event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		h.logger.Error("failed to encode outbound event", "event", event, "error", err)
		return
	}

	h.mutex.RLock()
	group := h.rooms[roomID]
	targets := make([]*Client, 0, len(group))
	for id, client := range group {
		if id == exceptID {
			continue
		}
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	for _, client := range targets {
		h.deliver(client, frame, event)
	}
}

// deliver hands a frame to a client's send channel without blocking. Clients
// that cannot keep up are disconnected; the read pump then runs the normal
// cleanup path. The lock is held through the entire send: dropClient closes
// the channel under the write lock, so a client seen alive here cannot have
// its channel closed until the lock is released.
func (h *Hub) deliver(client *Client, frame []byte, event string) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered from panic delivering frame",
				"connection_id", client.id, "event", event, "panic", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	current, exists := h.clients[client.id]
	if !exists || current != client || client.closed {
		return
	}

	select {
	case client.send <- frame:
	default:
		h.logger.Warn("send buffer full, dropping client",
			"connection_id", client.id,
			"event", event)
		client.close()
	}
}

func (h *Hub) closeAllClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		client.close()
	}

	h.logger.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the run loop, closes every connection, and waits for client
// goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("hub shutting down")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.logger.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
