// internal/models/player.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Player statuses. A player is "connected" exactly while they hold an open
// realtime connection to the lobby's room; "left" is terminal.
const (
	PlayerConnected    = "connected"
	PlayerDisconnected = "disconnected"
	PlayerLeft         = "left"
)

// Player is a user's membership in one lobby. The (lobby, user) pair is
// unique and join order is append-only: JoinedAt is authoritative for
// display order.
type Player struct {
	ID          uuid.UUID `json:"id"`
	LobbyID     uuid.UUID `json:"lobby_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar"`
	Status      string    `json:"status"`
	IsHost      bool      `json:"is_host"`
	JoinedAt    time.Time `json:"joined_at"`
}
