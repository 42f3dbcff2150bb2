// Package server implements the room registry, the single owner of room
// membership state for the relay.
package server

import (
	"log/slog"
	"sync"
)

// Member is one (connection, display name) pair in a room, in join order.
type Member struct {
	ID   string
	Name string
}

// room holds the ordered membership of one room. The order slice preserves
// insertion order for snapshot emission; rejoining keeps the original slot.
type room struct {
	order []string
	names map[string]string
}

// Registry maps room ids to their members. Rooms are created lazily on first
// join and deleted in the same operation that removes their last member, so a
// room is never observable with zero members. A memberRooms index tracks which
// rooms each connection belongs to so the disconnect sweep touches only those.
//
// All operations are total and guarded by a single RWMutex; operations are
// O(members in one room) and rooms stay small.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*room
	memberRooms map[string]map[string]struct{}
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		rooms:       make(map[string]*room),
		memberRooms: make(map[string]map[string]struct{}),
		logger:      logger,
	}
}

// Join adds connID to roomID with the given display name, creating the room
// if absent. Rejoining overwrites the name but keeps the original join order
// slot. Join always succeeds.
func (r *Registry) Join(roomID, connID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, exists := r.rooms[roomID]
	if !exists {
		rm = &room{names: make(map[string]string)}
		r.rooms[roomID] = rm
	}

	if _, member := rm.names[connID]; !member {
		rm.order = append(rm.order, connID)
	}
	rm.names[connID] = name

	if r.memberRooms[connID] == nil {
		r.memberRooms[connID] = make(map[string]struct{})
	}
	r.memberRooms[connID][roomID] = struct{}{}
}

// LeaveAll removes connID from every room it belongs to and returns the
// affected room ids. Rooms emptied by the removal are deleted before the call
// returns. The order of the returned ids carries no meaning.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomIDs := r.memberRooms[connID]
	if len(roomIDs) == 0 {
		delete(r.memberRooms, connID)
		return nil
	}

	affected := make([]string, 0, len(roomIDs))
	for roomID := range roomIDs {
		rm := r.rooms[roomID]
		if rm == nil {
			continue
		}
		delete(rm.names, connID)
		for i, id := range rm.order {
			if id == connID {
				rm.order = append(rm.order[:i], rm.order[i+1:]...)
				break
			}
		}
		if len(rm.order) == 0 {
			delete(r.rooms, roomID)
			r.logger.Info("room removed", "room_id", roomID)
		}
		affected = append(affected, roomID)
	}

	delete(r.memberRooms, connID)
	return affected
}

// Snapshot returns the current members of roomID in join order, or an empty
// slice if the room does not exist.
func (r *Registry) Snapshot(roomID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm := r.rooms[roomID]
	if rm == nil {
		return nil
	}

	members := make([]Member, 0, len(rm.order))
	for _, id := range rm.order {
		members = append(members, Member{ID: id, Name: rm.names[id]})
	}
	return members
}

// MemberIDs returns the connection ids of roomID's members in join order, or
// an empty slice if the room does not exist.
func (r *Registry) MemberIDs(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm := r.rooms[roomID]
	if rm == nil {
		return nil
	}
	return append([]string(nil), rm.order...)
}

// RoomCount returns the number of rooms currently alive.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
