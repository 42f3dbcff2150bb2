// Package server routes inbound collaboration events to their outbound
// effects: presence announcements, cursor updates, and verbatim block
// mutation relays.
package server

import (
	"encoding/json"
	"log/slog"

	"github.com/samber/lo"
)

// Emitter is the transport surface the router needs: one connection, a room
// minus the sender, or a whole room, plus the grouping hook that keeps the
// transport's room view consistent with the registry.
type Emitter interface {
	ToConnection(connID, event string, data any)
	ToRoomExcept(roomID, exceptID, event string, data any)
	ToRoom(roomID, event string, data any)
	JoinRoom(roomID, connID string)
}

// Router turns inbound events into registry operations and broadcasts. It is
// stateless; membership truth lives in the Registry and delivery happens
// through the Emitter. Malformed events are dropped with a log entry, never
// an error: the relay has no failure the dispatcher should crash on.
type Router struct {
	registry *Registry
	emitter  Emitter
	logger   *slog.Logger
	metrics  *Metrics
}

// NewRouter creates a Router over the given registry and emitter.
func NewRouter(registry *Registry, emitter Emitter, logger *slog.Logger, metrics *Metrics) *Router {
	return &Router{
		registry: registry,
		emitter:  emitter,
		logger:   logger,
		metrics:  metrics,
	}
}

// ConnectionOpened logs the new connection. Rooms are only entered on an
// explicit joinRoom event.
func (rt *Router) ConnectionOpened(connID string) {
	rt.logger.Info("user connected", "connection_id", connID)
}

// Dispatch decodes one inbound frame and runs its handler. Unknown events and
// undecodable payloads are no-ops.
func (rt *Router) Dispatch(connID string, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		rt.logger.Warn("dropping malformed frame", "connection_id", connID, "error", err)
		return
	}

	switch env.Event {
	case EventJoinRoom:
		rt.count(env.Event)
		rt.handleJoinRoom(connID, env.Data)
	case EventMouseMove:
		rt.count(env.Event)
		rt.handleMouseMove(connID, env.Data)
	case EventBlockAdded, EventBlockDeleted, EventBlockGeometry, EventBlockValueUpdated:
		rt.count(env.Event)
		rt.handleBlockEvent(connID, env.Event, env.Data)
	case EventExitCollaboration:
		rt.count(env.Event)
		rt.handleExitCollaboration(connID, env.Data)
	default:
		rt.logger.Warn("dropping unknown event",
			"connection_id", connID, "event", env.Event)
	}
}

// handleJoinRoom registers the member and emits the two announcement pairs
// the protocol requires: names (snapshot to self, announcement to the room)
// and cursors (snapshot to self, announcement to the room). The pairs are
// structurally redundant but both are part of the wire contract.
func (rt *Router) handleJoinRoom(connID string, data json.RawMessage) {
	var p JoinRoomPayload
	if !rt.decode(connID, EventJoinRoom, data, &p) {
		return
	}
	if p.RoomID == "" {
		rt.dropInvalid(connID, EventJoinRoom)
		return
	}

	rt.registry.Join(p.RoomID, connID, p.Name)
	rt.emitter.JoinRoom(p.RoomID, connID)
	rt.trackRooms()

	snapshot := rt.registry.Snapshot(p.RoomID)

	rt.emitter.ToConnection(connID, EventAddExistingNames,
		lo.Map(snapshot, func(m Member, _ int) NamedMember {
			return NamedMember{ID: m.ID, Name: m.Name}
		}))
	rt.emitter.ToRoomExcept(p.RoomID, connID, EventAddNewName,
		NamedMember{ID: connID, Name: p.Name})

	rt.emitter.ToConnection(connID, EventExistingCursor,
		lo.Map(snapshot, func(m Member, _ int) CursorRef {
			return CursorRef{ID: m.ID}
		}))
	rt.emitter.ToRoomExcept(p.RoomID, connID, EventNewCursor,
		CursorRef{ID: connID})

	rt.logger.Info("user joined room",
		"connection_id", connID, "room_id", p.RoomID, "name", p.Name)
}

// handleMouseMove relays a cursor position to the rest of the room, tagged
// with the sender's id.
func (rt *Router) handleMouseMove(connID string, data json.RawMessage) {
	var p MouseMovePayload
	if !rt.decode(connID, EventMouseMove, data, &p) {
		return
	}
	if p.RoomID == "" {
		rt.dropInvalid(connID, EventMouseMove)
		return
	}

	rt.emitter.ToRoomExcept(p.RoomID, connID, EventMouseMove, MousePosition{
		SocketID: connID,
		X:        p.X,
		Y:        p.Y,
		ScrollX:  p.ScrollX,
		ScrollY:  p.ScrollY,
	})
}

// handleBlockEvent relays a block mutation verbatim to the rest of the room.
// The update payload is opaque to the relay and carries no sender identity.
func (rt *Router) handleBlockEvent(connID, event string, data json.RawMessage) {
	var p BlockUpdatePayload
	if !rt.decode(connID, event, data, &p) {
		return
	}
	if p.RoomID == "" {
		rt.dropInvalid(connID, event)
		return
	}

	rt.emitter.ToRoomExcept(p.RoomID, connID, event, p.Update)
	rt.logger.Info("user sent block update",
		"connection_id", connID, "room_id", p.RoomID, "event", event)
}

// handleExitCollaboration answers the caller with the room's current member
// ids so it can tear down local peer state. An unknown room sends nothing.
func (rt *Router) handleExitCollaboration(connID string, data json.RawMessage) {
	var p ExitCollaborationPayload
	if !rt.decode(connID, EventExitCollaboration, data, &p) {
		return
	}
	if p.RoomID == "" {
		rt.dropInvalid(connID, EventExitCollaboration)
		return
	}

	ids := rt.registry.MemberIDs(p.RoomID)
	if len(ids) == 0 {
		return
	}

	rt.emitter.ToConnection(connID, EventExitCollaboration, ids)
	rt.logger.Info("user exited collaboration",
		"connection_id", connID, "room_id", p.RoomID)
}

// ConnectionClosed sweeps the connection out of every room it joined and
// tells each affected room to drop its cursor. The member is removed before
// the notification, so the whole-room emit cannot reach the leaver.
func (rt *Router) ConnectionClosed(connID string) {
	affected := rt.registry.LeaveAll(connID)
	for _, roomID := range affected {
		rt.emitter.ToRoom(roomID, EventRemoveCursor, connID)
	}
	rt.trackRooms()

	rt.logger.Info("user disconnected", "connection_id", connID)
}

func (rt *Router) decode(connID, event string, data json.RawMessage, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		rt.logger.Warn("dropping undecodable payload",
			"connection_id", connID, "event", event, "error", err)
		return false
	}
	return true
}

func (rt *Router) dropInvalid(connID, event string) {
	rt.logger.Warn("dropping event with missing room_id",
		"connection_id", connID, "event", event)
}

// count increments the relayed-events counter. Only recognized event names
// reach it, keeping the label cardinality closed.
func (rt *Router) count(event string) {
	if rt.metrics != nil {
		rt.metrics.EventsRelayed.WithLabelValues(event).Inc()
	}
}

func (rt *Router) trackRooms() {
	if rt.metrics != nil {
		rt.metrics.RoomsActive.Set(float64(rt.registry.RoomCount()))
	}
}
