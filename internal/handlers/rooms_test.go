// internal/handlers/rooms_test.go
package handlers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomBroadcastReachesAllConnections(t *testing.T) {
	rooms := NewRoomStore()
	room := rooms.GetOrCreate("never", "ABCDEF")

	a := NewRoomConnection(uuid.New(), nil, nil)
	b := NewRoomConnection(uuid.New(), nil, nil)
	room.Attach(a)
	room.Attach(b)

	room.Broadcast(map[string]interface{}{"type": "player:joined"})

	for _, conn := range []*RoomConnection{a, b} {
		select {
		case msg := <-conn.OutChan:
			assert.Equal(t, "player:joined", msg["type"])
		default:
			t.Fatalf("connection %s received nothing", conn.UserID)
		}
	}
}

func TestFullMailboxDropsInsteadOfBlocking(t *testing.T) {
	conn := NewRoomConnection(uuid.New(), nil, testLogger())
	for i := 0; i < cap(conn.OutChan); i++ {
		conn.Write(map[string]interface{}{"type": "round:state"})
	}

	// does not block even though nobody drains the channel
	conn.Write(map[string]interface{}{"type": "overflow"})
	assert.Len(t, conn.OutChan, cap(conn.OutChan))
}

func TestAttachReplacesStaleConnection(t *testing.T) {
	rooms := NewRoomStore()
	room := rooms.GetOrCreate("never", "ABCDEF")

	userID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	old := NewRoomConnection(userID, cancel, nil)
	room.Attach(old)

	fresh := NewRoomConnection(userID, nil, nil)
	room.Attach(fresh)

	assert.Error(t, ctx.Err(), "stale connection's context should be cancelled")

	// detaching the stale connection must not evict the fresh one
	assert.False(t, room.Detach(old))
	room.Broadcast(map[string]interface{}{"type": "ping"})
	require.Len(t, fresh.OutChan, 1)
	assert.Empty(t, old.OutChan)
}

func TestBroadcastRacingReconnectDoesNotPanic(t *testing.T) {
	rooms := NewRoomStore()
	room := rooms.GetOrCreate("never", "ABCDEF")

	userID := uuid.New()
	old := NewRoomConnection(userID, nil, testLogger())
	room.Attach(old)
	room.Attach(NewRoomConnection(userID, nil, testLogger()))

	// a broadcast that snapshotted its targets before the reconnect still
	// holds the stale connection; writing to it must stay safe
	old.Write(map[string]interface{}{"type": "round:state"})
	assert.Len(t, old.OutChan, 1)
}

func TestReleaseDropsEmptyRoom(t *testing.T) {
	rooms := NewRoomStore()
	room := rooms.GetOrCreate("never", "ABCDEF")
	conn := NewRoomConnection(uuid.New(), nil, nil)
	room.Attach(conn)

	rooms.Release(room, conn)

	assert.Nil(t, rooms.Get("never", "ABCDEF"))
}

func TestReleaseAllDetachesEverywhere(t *testing.T) {
	rooms := NewRoomStore()
	conn := NewRoomConnection(uuid.New(), nil, nil)
	rooms.GetOrCreate("never", "AAAAAA").Attach(conn)
	rooms.GetOrCreate("never", "BBBBBB").Attach(conn)

	other := NewRoomConnection(uuid.New(), nil, nil)
	rooms.GetOrCreate("never", "BBBBBB").Attach(other)

	rooms.ReleaseAll(conn)

	assert.Nil(t, rooms.Get("never", "AAAAAA"))
	require.NotNil(t, rooms.Get("never", "BBBBBB"))
	assert.True(t, rooms.Get("never", "BBBBBB").Detach(other))
}
