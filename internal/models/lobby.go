// internal/models/lobby.go
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/neverhq/never-service/internal/escalation"
)

// Lobby statuses. Code uniqueness is only enforced among active lobbies
// (waiting or playing); finished lobbies free their code for reuse.
const (
	LobbyWaiting  = "waiting"
	LobbyPlaying  = "playing"
	LobbyFinished = "finished"
)

// Lobby represents a row in the lobbies table: a joinable session identified
// by a short code, owned by a host, progressing through numbered rounds.
type Lobby struct {
	ID            uuid.UUID                 `json:"id"`
	Code          string                    `json:"code"`
	HostUserID    uuid.UUID                 `json:"host_user_id"`
	Language      string                    `json:"language"`
	MaxRounds     int                       `json:"max_rounds"`
	NSFWEnabled   bool                      `json:"nsfw_enabled"`
	Status        string                    `json:"status"`
	CurrentRound  int                       `json:"current_round"`
	BoldnessScore float64                   `json:"boldness_score"`
	CurrentTone   escalation.Tone           `json:"current_tone"`
	History       []escalation.HistoryEntry `json:"escalation_history"`
	UsedPromptIDs []int64                   `json:"used_prompt_ids"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// Active reports whether the lobby still holds its code.
func (l *Lobby) Active() bool {
	return l.Status == LobbyWaiting || l.Status == LobbyPlaying
}

// PromptUsed reports whether a prompt id is already in the lobby's
// append-only used set.
func (l *Lobby) PromptUsed(id int64) bool {
	for _, used := range l.UsedPromptIDs {
		if used == id {
			return true
		}
	}
	return false
}
