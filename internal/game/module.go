// internal/game/module.go
package game

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/neverhq/never-service/internal/escalation"
	"github.com/neverhq/never-service/internal/models"
)

// DefaultKey is the game every lobby runs unless a client asks otherwise.
const DefaultKey = "never"

// Settings are the host-supplied knobs validated at lobby creation.
type Settings struct {
	Language    string `json:"language"`
	MaxRounds   int    `json:"max_rounds"`
	NSFWEnabled bool   `json:"nsfw_enabled"`
}

// PromptPool is the query capability the round builder needs. The store
// transaction satisfies it, so selection always reads prompt rows at the
// same isolation as the round insert.
type PromptPool interface {
	// PromptCandidates returns pool entries matching the filter, in any order.
	PromptCandidates(ctx context.Context, f PromptFilter) ([]models.Prompt, error)
	// LeastRecentlyUsedPrompt returns the prompt with the lowest usage count
	// (ties broken by lowest id) for a language/nsfw pair, or nil when the
	// pool is empty.
	LeastRecentlyUsedPrompt(ctx context.Context, language string, allowNSFW bool) (*models.Prompt, error)
}

// PromptFilter narrows a candidate query. Zero Min/Max means no intensity
// bound.
type PromptFilter struct {
	Language     string
	AllowNSFW    bool
	MinIntensity int
	MaxIntensity int
	ExcludeIDs   []int64
}

// BuildInput carries the per-transition context the builder cannot read from
// the lobby row itself.
type BuildInput struct {
	NextRoundNumber int
	PlayerCount     int
	// PrevIntensity is the intensity of the lobby's latest round, nil when
	// none exists yet.
	PrevIntensity *int
	// PrevHaveRatio is the fraction of the previous round's players that
	// answered HAVE, nil when there was no previous round.
	PrevHaveRatio *float64
}

// BuildResult is everything the caller must persist: the new round's fields
// and the lobby's escalation state after the transition. The builder performs
// no writes; persisting the round, the lobby update and the prompt usage
// increment is the caller's job.
type BuildResult struct {
	Round         models.Round
	BoldnessScore float64
	Tone          escalation.Tone
	History       []escalation.HistoryEntry
	UsedPromptIDs []int64
}

// Module is the fixed contract one supported game implements. New games are
// added as new variants registered under their key, never by widening this
// interface.
type Module interface {
	Key() string
	ValidateSettings(s Settings) error
	BuildRound(ctx context.Context, pool PromptPool, lobby *models.Lobby, in BuildInput) (*BuildResult, error)
	// ApplyAnswer validates an answer against the round it targets.
	ApplyAnswer(round *models.Round, userID uuid.UUID, value bool) error
	// CanAdvance reports whether every player still in the lobby has answered
	// the round.
	CanAdvance(round *models.Round, players []models.Player, answers []models.Answer) bool
}

// Registry maps game keys to their modules. It is built once at process
// start and passed to whatever needs it; there is no ambient global list.
type Registry map[string]Module

// NewRegistry indexes modules by key.
func NewRegistry(mods ...Module) Registry {
	r := make(Registry, len(mods))
	for _, m := range mods {
		r[m.Key()] = m
	}
	return r
}

// Get looks up a module by key.
func (r Registry) Get(key string) (Module, error) {
	m, ok := r[key]
	if !ok {
		return nil, fmt.Errorf("unknown game key %q", key)
	}
	return m, nil
}
