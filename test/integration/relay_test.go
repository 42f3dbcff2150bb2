// Package integration contains end-to-end tests that exercise the relay over
// real WebSocket connections: join announcements, cursor relay, block
// passthrough, and disconnect cleanup.
package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockpad/relay/internal/server"
	"github.com/blockpad/relay/test/testhelpers"
)

// client pairs a dialed WebSocket with the connection id the relay assigned
// it, learned from its own join snapshot.
type client struct {
	ws *websocket.Conn
	id string
}

// joinRoom dials the relay, joins the room, and consumes the joiner's two
// snapshot events. The caller's id is the last entry of its own snapshot.
func joinRoom(t *testing.T, relay *testhelpers.Relay, roomID, name string) (client, []server.NamedMember) {
	t.Helper()

	ws := testhelpers.Dial(t, relay)
	testhelpers.Send(t, ws, server.EventJoinRoom, map[string]string{"room_id": roomID, "name": name})

	var names []server.NamedMember
	testhelpers.ReadEvent(t, ws, server.EventAddExistingNames, &names)
	require.NotEmpty(t, names)

	var cursors []server.CursorRef
	testhelpers.ReadEvent(t, ws, server.EventExistingCursor, &cursors)
	require.Len(t, cursors, len(names))

	return client{ws: ws, id: names[len(names)-1].ID}, names
}

// drainJoin consumes the add-new-name/new-cursor pair an earlier member
// receives when another client joins.
func drainJoin(t *testing.T, c client) {
	t.Helper()
	testhelpers.ReadEvent(t, c.ws, server.EventAddNewName, nil)
	testhelpers.ReadEvent(t, c.ws, server.EventNewCursor, nil)
}

func TestJoinAnnouncements(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	alice, aliceNames := joinRoom(t, relay, "x", "Alice")
	require.Len(t, aliceNames, 1)
	assert.Equal(t, "Alice", aliceNames[0].Name)

	bob, bobNames := joinRoom(t, relay, "x", "Bob")
	require.Len(t, bobNames, 2)
	assert.Equal(t, server.NamedMember{ID: alice.id, Name: "Alice"}, bobNames[0])
	assert.Equal(t, server.NamedMember{ID: bob.id, Name: "Bob"}, bobNames[1])

	// Alice hears about Bob: first the name, then the cursor.
	var newName server.NamedMember
	testhelpers.ReadEvent(t, alice.ws, server.EventAddNewName, &newName)
	assert.Equal(t, server.NamedMember{ID: bob.id, Name: "Bob"}, newName)

	var newCursor server.CursorRef
	testhelpers.ReadEvent(t, alice.ws, server.EventNewCursor, &newCursor)
	assert.Equal(t, server.CursorRef{ID: bob.id}, newCursor)
}

func TestMouseMoveRelayedToOthersOnly(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	alice, _ := joinRoom(t, relay, "x", "Alice")
	bob, _ := joinRoom(t, relay, "x", "Bob")
	drainJoin(t, alice)

	testhelpers.Send(t, alice.ws, server.EventMouseMove, map[string]any{
		"room_id": "x", "x": 10, "y": 20, "scrollx": 0, "scrolly": 0,
	})

	var pos server.MousePosition
	testhelpers.ReadEvent(t, bob.ws, server.EventMouseMove, &pos)
	assert.Equal(t, server.MousePosition{SocketID: alice.id, X: 10, Y: 20}, pos)

	// The sender must not receive its own event back.
	testhelpers.AssertSilence(t, alice.ws, 200*time.Millisecond)
}

func TestBlockUpdateRelayedVerbatim(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	alice, _ := joinRoom(t, relay, "x", "Alice")
	bob, _ := joinRoom(t, relay, "x", "Bob")
	drainJoin(t, alice)

	update := map[string]any{"block_id": "b7", "kind": "text", "value": "hello"}
	testhelpers.Send(t, alice.ws, server.EventBlockAdded, map[string]any{
		"room_id": "x", "update": update,
	})

	env := testhelpers.ReadEnvelope(t, bob.ws)
	assert.Equal(t, server.EventBlockAdded, env.Event)

	var relayed map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &relayed))
	assert.Equal(t, update, relayed)
}

func TestExitCollaborationReturnsMemberIDs(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	alice, _ := joinRoom(t, relay, "x", "Alice")
	bob, _ := joinRoom(t, relay, "x", "Bob")
	drainJoin(t, alice)

	testhelpers.Send(t, alice.ws, server.EventExitCollaboration, map[string]string{"room_id": "x"})

	var ids []string
	testhelpers.ReadEvent(t, alice.ws, server.EventExitCollaboration, &ids)
	assert.Equal(t, []string{alice.id, bob.id}, ids)

	// Exiting is informational only; membership is unchanged.
	assert.Equal(t, []string{alice.id, bob.id}, relay.Registry.MemberIDs("x"))
}

func TestExitCollaborationUnknownRoomSendsNothing(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	alice, _ := joinRoom(t, relay, "x", "Alice")

	testhelpers.Send(t, alice.ws, server.EventExitCollaboration, map[string]string{"room_id": "nowhere"})
	testhelpers.AssertSilence(t, alice.ws, 200*time.Millisecond)
}

func TestDisconnectRemovesCursorAndRoom(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	alice, _ := joinRoom(t, relay, "x", "Alice")
	bob, _ := joinRoom(t, relay, "x", "Bob")
	drainJoin(t, alice)

	require.NoError(t, bob.ws.Close())

	var removed string
	testhelpers.ReadEvent(t, alice.ws, server.EventRemoveCursor, &removed)
	assert.Equal(t, bob.id, removed)

	testhelpers.Eventually(t, time.Second, func() bool {
		return len(relay.Registry.MemberIDs("x")) == 1
	}, "room x should retain only Alice")

	require.NoError(t, alice.ws.Close())
	testhelpers.Eventually(t, time.Second, func() bool {
		return relay.Registry.RoomCount() == 0
	}, "room x should be removed once its last member disconnects")
}

func TestDisconnectSweepsAllRooms(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	alice, _ := joinRoom(t, relay, "r1", "Alice")

	// Alice joins a second room over the same connection.
	testhelpers.Send(t, alice.ws, server.EventJoinRoom, map[string]string{"room_id": "r2", "name": "Alice"})
	testhelpers.ReadEvent(t, alice.ws, server.EventAddExistingNames, nil)
	testhelpers.ReadEvent(t, alice.ws, server.EventExistingCursor, nil)

	bob, _ := joinRoom(t, relay, "r1", "Bob")
	drainJoin(t, alice)

	require.NoError(t, alice.ws.Close())

	var removed string
	testhelpers.ReadEvent(t, bob.ws, server.EventRemoveCursor, &removed)
	assert.Equal(t, alice.id, removed)

	testhelpers.Eventually(t, time.Second, func() bool {
		return relay.Registry.RoomCount() == 1 &&
			len(relay.Registry.MemberIDs("r1")) == 1 &&
			len(relay.Registry.MemberIDs("r2")) == 0
	}, "r2 should be gone and r1 should retain only Bob")
}
