// Package server defines the wire contract for the BlockPad relay: the JSON
// envelope framing, the closed set of inbound event kinds, and the outbound
// payload shapes shared by the router and hub.
package server

import "encoding/json"

// Inbound event names. These are the only events clients may send; anything
// else is dropped with a log entry.
const (
	EventJoinRoom          = "joinRoom"
	EventMouseMove         = "mouse-move"
	EventBlockAdded        = "new-block-added"
	EventBlockDeleted      = "new-block-deleted"
	EventBlockGeometry     = "block-moved/connected/disconnected"
	EventBlockValueUpdated = "block-value-updated"
	EventExitCollaboration = "exit-collaboration"
)

// Outbound event names emitted by the relay. The block event names are reused
// verbatim from the inbound side when rebroadcasting.
const (
	EventAddExistingNames = "add-existing-names"
	EventAddNewName       = "add-new-name"
	EventExistingCursor   = "existing-cursor"
	EventNewCursor        = "new-cursor"
	EventRemoveCursor     = "remove-cursor"
)

// Envelope frames every message in both directions as {"event": ..., "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinRoomPayload is the data carried by a joinRoom event.
type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

// MouseMovePayload is the data carried by an inbound mouse-move event.
type MouseMovePayload struct {
	RoomID  string  `json:"room_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	ScrollX float64 `json:"scrollx"`
	ScrollY float64 `json:"scrolly"`
}

// BlockUpdatePayload is the data carried by the four block mutation events.
// Update is relayed verbatim; the relay never interprets its structure.
type BlockUpdatePayload struct {
	RoomID string          `json:"room_id"`
	Update json.RawMessage `json:"update"`
}

// ExitCollaborationPayload is the data carried by an exit-collaboration event.
type ExitCollaborationPayload struct {
	RoomID string `json:"room_id"`
}

// NamedMember is one entry of the add-existing-names list and the
// add-new-name announcement.
type NamedMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CursorRef is one entry of the existing-cursor list and the new-cursor
// announcement.
type CursorRef struct {
	ID string `json:"id"`
}

// MousePosition is the outbound mouse-move payload, tagged with the
// originating connection so recipients know whose cursor moved.
type MousePosition struct {
	SocketID string  `json:"socket_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScrollX  float64 `json:"scrollx"`
	ScrollY  float64 `json:"scrolly"`
}

// encodeFrame marshals an outbound event into its envelope form.
func encodeFrame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}
