// internal/handlers/rooms.go
package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RoomConnection is one attached websocket, represented to the rest of the
// package as a buffered outbound channel. All game state lives in the store;
// a connection carries identity and a mailbox, nothing else.
type RoomConnection struct {
	UserID  uuid.UUID
	Cancel  context.CancelFunc
	OutChan chan map[string]interface{}

	log *logrus.Logger
}

// NewRoomConnection builds a connection with a bounded mailbox.
func NewRoomConnection(userID uuid.UUID, cancel context.CancelFunc, logger *logrus.Logger) *RoomConnection {
	return &RoomConnection{
		UserID:  userID,
		Cancel:  cancel,
		OutChan: make(chan map[string]interface{}, 16),
		log:     logger,
	}
}

// Write pushes a message onto the connection's OutChan without blocking. A
// full mailbox drops the message; one slow client must not stall the
// broadcast to the rest of the room.
func (conn *RoomConnection) Write(msg map[string]interface{}) {
	select {
	case conn.OutChan <- msg:
	default:
		if conn.log != nil {
			msgType, _ := msg["type"].(string)
			conn.log.WithFields(logrus.Fields{"user": conn.UserID, "msg": msgType}).
				Warn("outbound channel full, dropping message")
		}
	}
}

// Room fans messages out to every connection attached to one lobby. It holds
// no lobby state; membership and status questions go to the store.
type Room struct {
	GameKey string
	Code    string

	mu    sync.Mutex
	conns map[uuid.UUID]*RoomConnection
}

// Attach registers a connection, replacing any previous connection for the
// same user. The replaced connection's context is cancelled so its write
// pump stops; its mailbox is never closed, so a broadcast that snapshotted
// the old target list can still write to it safely.
func (r *Room) Attach(conn *RoomConnection) {
	r.mu.Lock()
	old, hadOld := r.conns[conn.UserID]
	r.conns[conn.UserID] = conn
	r.mu.Unlock()

	if hadOld && old != conn && old.Cancel != nil {
		old.Cancel()
	}
}

// Detach removes a connection if it is still the current one for its user.
// A stale connection (already replaced by a reconnect) is left alone.
func (r *Room) Detach(conn *RoomConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.conns[conn.UserID]
	if !ok || current != conn {
		return false
	}
	delete(r.conns, conn.UserID)
	return true
}

// Broadcast sends a message to every attached connection, including the
// sender if present.
func (r *Room) Broadcast(msg map[string]interface{}) {
	r.mu.Lock()
	targets := make([]*RoomConnection, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	for _, c := range targets {
		c.Write(msg)
	}
}

// Empty reports whether no connections remain attached.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns) == 0
}

// RoomStore indexes rooms by (game key, lobby code). Rooms are created on
// first join and dropped when their last connection detaches.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*Room)}
}

func roomKey(gameKey, code string) string {
	return gameKey + "/" + code
}

// GetOrCreate returns the room for a lobby, creating it when absent.
func (s *RoomStore) GetOrCreate(gameKey, code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roomKey(gameKey, code)
	if r, ok := s.rooms[key]; ok {
		return r
	}
	r := &Room{
		GameKey: gameKey,
		Code:    code,
		conns:   make(map[uuid.UUID]*RoomConnection),
	}
	s.rooms[key] = r
	return r
}

// Get returns the room for a lobby, or nil when nobody is attached.
func (s *RoomStore) Get(gameKey, code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomKey(gameKey, code)]
}

// ReleaseAll detaches a connection from every room it is attached to.
func (s *RoomStore) ReleaseAll(conn *RoomConnection) {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	for _, r := range rooms {
		s.Release(r, conn)
	}
}

// Release detaches a connection from its room and drops the room once empty.
func (s *RoomStore) Release(room *Room, conn *RoomConnection) {
	if room == nil || conn == nil {
		return
	}
	room.Detach(conn)
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.Empty() {
		delete(s.rooms, roomKey(room.GameKey, room.Code))
	}
}
