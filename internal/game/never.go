// internal/game/never.go
package game

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/neverhq/never-service/internal/models"
)

// Supported languages for the never prompt pool.
var neverLanguages = map[string]bool{
	"en": true,
	"de": true,
	"es": true,
	"fr": true,
}

const (
	neverMinRounds = 1
	neverMaxRounds = 100
)

// Never is the "Never Have I Ever" game module: binary HAVE/HAVE_NOT answers
// against prompts of rising intensity.
type Never struct{}

// NewNever returns the never module.
func NewNever() *Never { return &Never{} }

func (n *Never) Key() string { return DefaultKey }

// ValidateSettings rejects malformed host settings before any state is
// created.
func (n *Never) ValidateSettings(s Settings) error {
	if !neverLanguages[s.Language] {
		return fmt.Errorf("unsupported language %q", s.Language)
	}
	if s.MaxRounds < neverMinRounds || s.MaxRounds > neverMaxRounds {
		return fmt.Errorf("max_rounds must be between %d and %d", neverMinRounds, neverMaxRounds)
	}
	return nil
}

func (n *Never) BuildRound(ctx context.Context, pool PromptPool, lob *models.Lobby, in BuildInput) (*BuildResult, error) {
	return buildRound(ctx, pool, lob, in)
}

// ApplyAnswer checks that an answer targets a round that can still accept it.
func (n *Never) ApplyAnswer(round *models.Round, userID uuid.UUID, value bool) error {
	if round == nil {
		return fmt.Errorf("no active round")
	}
	if round.Status != models.RoundActive {
		return fmt.Errorf("round %d is not active", round.RoundNumber)
	}
	return nil
}

// CanAdvance reports whether every non-left player has answered the round.
// Disconnected players still block advancement so nobody is skipped by a
// flaky connection.
func (n *Never) CanAdvance(round *models.Round, players []models.Player, answers []models.Answer) bool {
	if round == nil {
		return false
	}
	answered := make(map[uuid.UUID]bool, len(answers))
	for _, a := range answers {
		answered[a.UserID] = true
	}
	active := 0
	for _, p := range players {
		if p.Status == models.PlayerLeft {
			continue
		}
		active++
		if !answered[p.UserID] {
			return false
		}
	}
	return active > 0
}
