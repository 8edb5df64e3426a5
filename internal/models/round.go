// internal/models/round.go
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/neverhq/never-service/internal/escalation"
)

// RoundActive is the only round status this service writes; rounds are
// immutable after creation.
const RoundActive = "active"

// Round is one numbered turn of a lobby, bound to a single prompt and tone.
// RoundNumber is 1-based, gapless and unique per lobby — the storage layer
// enforces the uniqueness, not the application pre-check.
type Round struct {
	ID           uuid.UUID       `json:"id"`
	LobbyID      uuid.UUID       `json:"lobby_id"`
	RoundNumber  int             `json:"round_number"`
	Prompt       string          `json:"prompt"`
	PromptID     *int64          `json:"prompt_id"`
	Tone         escalation.Tone `json:"tone"`
	Status       string          `json:"status"`
	Intensity    int             `json:"intensity"`
	TotalPlayers int             `json:"total_players"`
	FallbackUsed bool            `json:"fallback_used"`
	StartedAt    time.Time       `json:"started_at"`
}

// Answer is one player's HAVE/HAVE_NOT for a round. One logical answer per
// (round, user); absence means not yet answered.
type Answer struct {
	RoundID    uuid.UUID `json:"round_id"`
	UserID     uuid.UUID `json:"user_id"`
	Value      bool      `json:"value"`
	AnsweredAt time.Time `json:"answered_at"`
}
