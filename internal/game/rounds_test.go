// internal/game/rounds_test.go
package game

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neverhq/never-service/internal/escalation"
	"github.com/neverhq/never-service/internal/models"
)

// fakePool serves prompts from a slice, mirroring the store's filter
// semantics.
type fakePool struct {
	prompts []models.Prompt
}

func (f *fakePool) PromptCandidates(_ context.Context, filter PromptFilter) ([]models.Prompt, error) {
	excluded := make(map[int64]bool, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		excluded[id] = true
	}
	var out []models.Prompt
	for _, p := range f.prompts {
		if p.Language != filter.Language || excluded[p.ID] {
			continue
		}
		if p.NSFW && !filter.AllowNSFW {
			continue
		}
		if filter.MinIntensity != 0 && p.Intensity < filter.MinIntensity {
			continue
		}
		if filter.MaxIntensity != 0 && p.Intensity > filter.MaxIntensity {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePool) LeastRecentlyUsedPrompt(_ context.Context, language string, allowNSFW bool) (*models.Prompt, error) {
	var eligible []models.Prompt
	for _, p := range f.prompts {
		if p.Language != language || (p.NSFW && !allowNSFW) {
			continue
		}
		eligible = append(eligible, p)
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].UsageCount != eligible[j].UsageCount {
			return eligible[i].UsageCount < eligible[j].UsageCount
		}
		return eligible[i].ID < eligible[j].ID
	})
	p := eligible[0]
	return &p, nil
}

func testLobby() *models.Lobby {
	return &models.Lobby{
		ID:          uuid.New(),
		Code:        "ABCDEF",
		Language:    "en",
		MaxRounds:   20,
		Status:      models.LobbyWaiting,
		CurrentTone: escalation.ToneSafe,
	}
}

func prompts(ps ...models.Prompt) *fakePool { return &fakePool{prompts: ps} }

func TestBuildRoundPicksWithinBand(t *testing.T) {
	pool := prompts(
		models.Prompt{ID: 1, Text: "low", Intensity: 1, Language: "en"},
		models.Prompt{ID: 2, Text: "mid", Intensity: 3, Language: "en"},
		models.Prompt{ID: 3, Text: "hot", Intensity: 9, Language: "en"},
	)
	res, err := buildRound(context.Background(), pool, testLobby(), BuildInput{
		NextRoundNumber: 1,
		PlayerCount:     3,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Round.PromptID)
	assert.False(t, res.Round.FallbackUsed)
	assert.LessOrEqual(t, res.Round.Intensity, 4, "early-game ceiling")
	assert.Equal(t, 1, res.Round.RoundNumber)
	assert.Equal(t, 3, res.Round.TotalPlayers)
	assert.Equal(t, escalation.ToneSafe, res.Round.Tone)
	assert.Contains(t, res.UsedPromptIDs, *res.Round.PromptID)
	require.Len(t, res.History, 1)
	assert.Nil(t, res.History[0].HaveRatio)
}

func TestBuildRoundIsDeterministic(t *testing.T) {
	pool := prompts(
		models.Prompt{ID: 5, Text: "a", Intensity: 2, Language: "en"},
		models.Prompt{ID: 4, Text: "b", Intensity: 2, Language: "en"},
		models.Prompt{ID: 6, Text: "c", Intensity: 2, Language: "en", UsageCount: 3},
	)
	in := BuildInput{NextRoundNumber: 1, PlayerCount: 2}
	first, err := buildRound(context.Background(), pool, testLobby(), in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := buildRound(context.Background(), pool, testLobby(), in)
		require.NoError(t, err)
		assert.Equal(t, *first.Round.PromptID, *again.Round.PromptID)
	}
	// equal intensity and score: lowest usage count then lowest id wins
	assert.Equal(t, int64(4), *first.Round.PromptID)
}

func TestBuildRoundSkipsUsedPrompts(t *testing.T) {
	pool := prompts(
		models.Prompt{ID: 1, Text: "a", Intensity: 2, Language: "en"},
		models.Prompt{ID: 2, Text: "b", Intensity: 2, Language: "en"},
	)
	lob := testLobby()
	lob.UsedPromptIDs = []int64{1}
	res, err := buildRound(context.Background(), pool, lob, BuildInput{NextRoundNumber: 2, PlayerCount: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), *res.Round.PromptID)
}

func TestBuildRoundFiltersNSFWAndLanguage(t *testing.T) {
	pool := prompts(
		models.Prompt{ID: 1, Text: "nsfw", Intensity: 2, Language: "en", NSFW: true},
		models.Prompt{ID: 2, Text: "german", Intensity: 2, Language: "de"},
		models.Prompt{ID: 3, Text: "ok", Intensity: 2, Language: "en"},
	)
	res, err := buildRound(context.Background(), pool, testLobby(), BuildInput{NextRoundNumber: 1, PlayerCount: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), *res.Round.PromptID)
}

func TestBuildRoundFallsBackOutOfBand(t *testing.T) {
	// nothing within the early-game band, one unused prompt far above it
	pool := prompts(models.Prompt{ID: 9, Text: "spicy", Intensity: 9, Language: "en"})
	res, err := buildRound(context.Background(), pool, testLobby(), BuildInput{NextRoundNumber: 1, PlayerCount: 2})
	require.NoError(t, err)
	assert.True(t, res.Round.FallbackUsed)
	assert.Equal(t, int64(9), *res.Round.PromptID)
}

func TestBuildRoundreusesLRUWhenExhausted(t *testing.T) {
	pool := prompts(
		models.Prompt{ID: 1, Text: "a", Intensity: 2, Language: "en", UsageCount: 4},
		models.Prompt{ID: 2, Text: "b", Intensity: 2, Language: "en", UsageCount: 1},
	)
	lob := testLobby()
	lob.UsedPromptIDs = []int64{1, 2}
	res, err := buildRound(context.Background(), pool, lob, BuildInput{NextRoundNumber: 3, PlayerCount: 2})
	require.NoError(t, err)
	assert.True(t, res.Round.FallbackUsed)
	assert.Equal(t, int64(2), *res.Round.PromptID)
	// a reused prompt is not appended to the used set twice
	assert.Equal(t, []int64{1, 2}, res.UsedPromptIDs)
}

func TestBuildRoundSynthesizesWhenPoolEmpty(t *testing.T) {
	res, err := buildRound(context.Background(), prompts(), testLobby(), BuildInput{NextRoundNumber: 1, PlayerCount: 2})
	require.NoError(t, err)
	assert.True(t, res.Round.FallbackUsed)
	assert.Nil(t, res.Round.PromptID)
	assert.NotEmpty(t, res.Round.Prompt)
}

func TestBuildRoundBackfillsHistoryRatio(t *testing.T) {
	pool := prompts(models.Prompt{ID: 1, Text: "a", Intensity: 2, Language: "en"})
	lob := testLobby()
	lob.Status = models.LobbyPlaying
	lob.CurrentRound = 1
	lob.CurrentTone = escalation.ToneSafe
	lob.History = []escalation.HistoryEntry{{RoundNumber: 1, Tone: escalation.ToneSafe}}

	ratio := 1.0
	prevIntensity := 2
	res, err := buildRound(context.Background(), pool, lob, BuildInput{
		NextRoundNumber: 2,
		PlayerCount:     2,
		PrevIntensity:   &prevIntensity,
		PrevHaveRatio:   &ratio,
	})
	require.NoError(t, err)
	require.Len(t, res.History, 2)
	require.NotNil(t, res.History[0].HaveRatio)
	assert.Equal(t, 1.0, *res.History[0].HaveRatio)
	// everyone answered HAVE at safe weight 0.5: EMA folds 0.3*0.5 into 0
	assert.InDelta(t, 0.15, res.BoldnessScore, 1e-9)
}

func TestEarlyGameIntensityStaysLow(t *testing.T) {
	// Scenario: maxRounds=20, sfw lobby, neutral trend throughout. Every
	// selected prompt must stay at intensity <= 4.
	var ps []models.Prompt
	for i := 1; i <= 80; i++ {
		ps = append(ps, models.Prompt{ID: int64(i), Text: "p", Intensity: (i % 4) + 1, Language: "en"})
	}
	pool := prompts(ps...)

	lob := testLobby()
	ratio := 0.5
	var prevIntensity *int
	for round := 1; round <= 20; round++ {
		in := BuildInput{NextRoundNumber: round, PlayerCount: 4, PrevIntensity: prevIntensity}
		if round > 1 {
			in.PrevHaveRatio = &ratio
		}
		res, err := buildRound(context.Background(), pool, lob, in)
		require.NoError(t, err)
		require.LessOrEqual(t, res.Round.Intensity, 4, "round %d", round)

		lob.CurrentRound = round
		lob.BoldnessScore = res.BoldnessScore
		lob.CurrentTone = res.Tone
		lob.History = res.History
		lob.UsedPromptIDs = res.UsedPromptIDs
		p := res.Round.Intensity
		prevIntensity = &p
	}
}

func TestNeverValidateSettings(t *testing.T) {
	n := NewNever()
	assert.NoError(t, n.ValidateSettings(Settings{Language: "en", MaxRounds: 20}))
	assert.Error(t, n.ValidateSettings(Settings{Language: "xx", MaxRounds: 20}))
	assert.Error(t, n.ValidateSettings(Settings{Language: "en", MaxRounds: 0}))
	assert.Error(t, n.ValidateSettings(Settings{Language: "en", MaxRounds: 1000}))
}

func TestNeverCanAdvance(t *testing.T) {
	n := NewNever()
	round := &models.Round{ID: uuid.New(), RoundNumber: 1, Status: models.RoundActive}
	a, b, gone := uuid.New(), uuid.New(), uuid.New()
	players := []models.Player{
		{UserID: a, Status: models.PlayerConnected},
		{UserID: b, Status: models.PlayerDisconnected},
		{UserID: gone, Status: models.PlayerLeft},
	}

	assert.False(t, n.CanAdvance(round, players, nil))
	assert.False(t, n.CanAdvance(round, players, []models.Answer{{RoundID: round.ID, UserID: a, Value: true}}))
	// the left player is not waited on; the disconnected one is
	assert.True(t, n.CanAdvance(round, players, []models.Answer{
		{RoundID: round.ID, UserID: a, Value: true},
		{RoundID: round.ID, UserID: b, Value: false},
	}))
	assert.False(t, n.CanAdvance(nil, players, nil))
}
