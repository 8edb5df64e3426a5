// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity row. Players are guests by default; a guest row is
// created the first time a client shows up without a valid token.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	IsGuest   bool      `json:"is_guest"`
	CreatedAt time.Time `json:"created_at"`
}
