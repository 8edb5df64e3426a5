// internal/game/rounds.go
package game

import (
	"context"
	"fmt"
	"math"

	"github.com/neverhq/never-service/internal/escalation"
	"github.com/neverhq/never-service/internal/models"
)

// trendWindow is how many history entries feed the recent yes-trend.
const trendWindow = 4

// fallbackPrompt is the last resort when the prompt table is completely
// empty. It carries no source id.
const fallbackPrompt = "Never have I ever skipped a question in this game."

// buildRound selects the next prompt for a lobby and computes its updated
// escalation state. It reads the pool through the transaction it is handed
// and writes nothing.
func buildRound(ctx context.Context, pool PromptPool, lob *models.Lobby, in BuildInput) (*BuildResult, error) {
	history := append([]escalation.HistoryEntry(nil), lob.History...)

	// Backfill the previous round's outcome before reading the trend, so the
	// freshest answers influence this selection.
	if in.PrevHaveRatio != nil && len(history) > 0 {
		last := &history[len(history)-1]
		if last.HaveRatio == nil {
			r := *in.PrevHaveRatio
			last.HaveRatio = &r
		}
	}

	yesTrend := escalation.RecentYesTrend(history, trendWindow)
	bias := escalation.DeriveSelectionBias(yesTrend, in.NextRoundNumber, lob.MaxRounds)

	// Fold the previous round's answers into the boldness score, then derive
	// the tone from the progression-adjusted effective score.
	boldness := lob.BoldnessScore
	if in.PrevHaveRatio != nil {
		delta := escalation.BoldnessDeltaRatio(*in.PrevHaveRatio, lob.CurrentTone)
		boldness = escalation.UpdateBoldness(boldness, delta)
	}
	effective := boldness + escalation.ProgressionModifier(in.NextRoundNumber, lob.MaxRounds)
	tone := escalation.DetermineTone(effective, lob.NSFWEnabled)

	rng := escalation.ClampIntensityRange(tone, escalation.RangeInput{
		PreviousIntensity: in.PrevIntensity,
		NextRound:         in.NextRoundNumber,
		YesTrend:          yesTrend,
		NSFWEnabled:       lob.NSFWEnabled,
	})

	prompt, fallback, err := selectPrompt(ctx, pool, lob, rng, bias)
	if err != nil {
		return nil, err
	}

	round := models.Round{
		RoundNumber:  in.NextRoundNumber,
		Tone:         tone,
		Status:       models.RoundActive,
		TotalPlayers: in.PlayerCount,
		FallbackUsed: fallback,
	}
	usedIDs := lob.UsedPromptIDs
	if prompt != nil {
		id := prompt.ID
		round.Prompt = prompt.Text
		round.PromptID = &id
		round.Intensity = prompt.Intensity
		if !lob.PromptUsed(id) {
			usedIDs = append(append([]int64(nil), lob.UsedPromptIDs...), id)
		}
	} else {
		round.Prompt = fallbackPrompt
		round.Intensity = rng.Min
	}

	history = append(history, escalation.HistoryEntry{
		RoundNumber: in.NextRoundNumber,
		Tone:        tone,
		Boldness:    boldness,
	})

	return &BuildResult{
		Round:         round,
		BoldnessScore: boldness,
		Tone:          tone,
		History:       history,
		UsedPromptIDs: usedIDs,
	}, nil
}

// selectPrompt picks the best candidate within the intensity range, falling
// back to any unused prompt and finally to the least-recently-used one.
// The bool result reports whether a fallback path was taken.
func selectPrompt(ctx context.Context, pool PromptPool, lob *models.Lobby, rng escalation.IntensityRange, bias escalation.SelectionBias) (*models.Prompt, bool, error) {
	inBand, err := pool.PromptCandidates(ctx, PromptFilter{
		Language:     lob.Language,
		AllowNSFW:    lob.NSFWEnabled,
		MinIntensity: rng.Min,
		MaxIntensity: rng.Max,
		ExcludeIDs:   lob.UsedPromptIDs,
	})
	if err != nil {
		return nil, false, fmt.Errorf("query prompt candidates: %w", err)
	}
	if p := pickWeighted(inBand, rng, bias); p != nil {
		return p, false, nil
	}

	// No compliant candidate: any unused prompt, regardless of band.
	anyUnused, err := pool.PromptCandidates(ctx, PromptFilter{
		Language:   lob.Language,
		AllowNSFW:  lob.NSFWEnabled,
		ExcludeIDs: lob.UsedPromptIDs,
	})
	if err != nil {
		return nil, false, fmt.Errorf("query fallback candidates: %w", err)
	}
	if p := pickWeighted(anyUnused, rng, bias); p != nil {
		return p, true, nil
	}

	// Pool exhausted: reuse the least-recently-used prompt.
	lru, err := pool.LeastRecentlyUsedPrompt(ctx, lob.Language, lob.NSFWEnabled)
	if err != nil {
		return nil, false, fmt.Errorf("query lru prompt: %w", err)
	}
	return lru, true, nil
}

// pickWeighted scores candidates by the derived bias terms and returns the
// best one. Ties break on lowest usage count, then lowest id, so selection
// is reproducible.
func pickWeighted(candidates []models.Prompt, rng escalation.IntensityRange, bias escalation.SelectionBias) *models.Prompt {
	if len(candidates) == 0 {
		return nil
	}

	// The escalation multiplier positions a preferred intensity inside the
	// band; vulnerability scales closeness to it and the trend bias nudges
	// toward the hotter half.
	preferred := (bias.EscalationMultiplier - 0.7) / 1.2
	span := float64(rng.Max - rng.Min)
	if span < 1 {
		span = 1
	}

	best := -1
	var bestScore float64
	for i, c := range candidates {
		norm := (float64(c.Intensity) - float64(rng.Min)) / span
		score := bias.VulnerabilityBias*(1-math.Abs(norm-preferred)) + bias.TrendBias*norm
		switch {
		case best < 0 || score > bestScore:
			best, bestScore = i, score
		case score == bestScore:
			b := candidates[best]
			if c.UsageCount < b.UsageCount || (c.UsageCount == b.UsageCount && c.ID < b.ID) {
				best = i
			}
		}
	}
	p := candidates[best]
	return &p
}
