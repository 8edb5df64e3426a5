// internal/escalation/escalation.go
package escalation

// Package escalation implements the adaptive difficulty model for a lobby.
// Everything here is a pure function of round history; nothing is persisted,
// so the model can be recomputed from stored rows after any crash.

// Tone is a named intensity band governing prompt selection.
type Tone string

const (
	ToneSafe      Tone = "safe"
	ToneDeeper    Tone = "deeper"
	ToneSecretive Tone = "secretive"
	ToneFreaky    Tone = "freaky"
)

// HistoryEntry is one per-round record in a lobby's escalation history.
// HaveRatio is nil for rounds where no answers were collected.
type HistoryEntry struct {
	RoundNumber int      `json:"round_number"`
	Tone        Tone     `json:"tone"`
	Boldness    float64  `json:"boldness"`
	HaveRatio   *float64 `json:"have_ratio,omitempty"`
}

// Band describes a tone's score interval and its prompt intensity range.
type Band struct {
	ScoreMin     float64
	ScoreMax     float64
	IntensityMin int
	IntensityMax int
}

var toneBands = map[Tone]Band{
	ToneSafe:      {0, 0.3, 1, 3},
	ToneDeeper:    {0.3, 0.55, 3, 5},
	ToneSecretive: {0.55, 0.8, 5, 7},
	ToneFreaky:    {0.8, 1.2, 7, 10},
}

// ToneBand returns the band for a tone, defaulting to the safe band for
// unknown tones.
func ToneBand(t Tone) Band {
	if b, ok := toneBands[t]; ok {
		return b
	}
	return toneBands[ToneSafe]
}

func intensityWeight(t Tone) float64 {
	switch t {
	case ToneDeeper:
		return 1.0
	case ToneSecretive:
		return 1.5
	case ToneFreaky:
		return 2.0
	default:
		return 0.5
	}
}

// BoldnessDelta converts one round's have-count into a raw boldness signal,
// weighted by how intense the round's tone was.
func BoldnessDelta(haveCount, totalPlayers int, tone Tone) float64 {
	if totalPlayers == 0 {
		return 0
	}
	return BoldnessDeltaRatio(float64(haveCount)/float64(totalPlayers), tone)
}

// BoldnessDeltaRatio is BoldnessDelta over an already-computed have ratio.
func BoldnessDeltaRatio(haveRatio float64, tone Tone) float64 {
	return haveRatio * intensityWeight(tone)
}

// UpdateBoldness folds a round delta into the running score as an exponential
// moving average, clamped to [0,1].
func UpdateBoldness(current, delta float64) float64 {
	return clamp01(0.3*delta + 0.7*current)
}

// ProgressionModifier adds a gentle upward push as the game approaches its
// final round, capped at 0.2.
func ProgressionModifier(round, maxRounds int) float64 {
	if maxRounds == 0 {
		return 0
	}
	return clampFloat(0, 0.2, (float64(round)/float64(maxRounds))*0.4)
}

// DetermineTone maps an effective score to a tone. Freaky is only reachable
// when the lobby allows nsfw content, regardless of score.
func DetermineTone(effectiveScore float64, nsfwEnabled bool) Tone {
	switch {
	case effectiveScore >= 0.8 && nsfwEnabled:
		return ToneFreaky
	case effectiveScore >= 0.55:
		return ToneSecretive
	case effectiveScore >= 0.3:
		return ToneDeeper
	default:
		return ToneSafe
	}
}

// RecentYesTrend averages the have-ratio over the last window entries that
// carry one. With no qualifying entries it returns the neutral 0.5.
func RecentYesTrend(history []HistoryEntry, window int) float64 {
	if window <= 0 || len(history) == 0 {
		return 0.5
	}
	start := len(history) - window
	if start < 0 {
		start = 0
	}
	var sum float64
	var n int
	for _, h := range history[start:] {
		if h.HaveRatio == nil {
			continue
		}
		sum += *h.HaveRatio
		n++
	}
	if n == 0 {
		return 0.5
	}
	return clamp01(sum / float64(n))
}

// SelectionBias carries the weighting terms the round builder applies when
// scoring prompt candidates.
type SelectionBias struct {
	EscalationMultiplier float64
	VulnerabilityBias    float64
	TrendBias            float64
}

// DeriveSelectionBias turns the recent yes-trend and game progress into
// candidate weighting terms.
func DeriveSelectionBias(yesTrend float64, round, maxRounds int) SelectionBias {
	trendCentered := (yesTrend - 0.5) * 2
	var progress float64
	if maxRounds > 0 {
		progress = float64(round) / float64(maxRounds)
	}
	return SelectionBias{
		EscalationMultiplier: clampFloat(0.7, 1.9, 1+trendCentered*0.45+progress*0.2),
		VulnerabilityBias:    clampFloat(0.75, 1.6, 1+trendCentered*0.35),
		TrendBias:            (yesTrend - 0.5) * 0.22,
	}
}

// IntensityRange is an inclusive prompt intensity interval, always within
// [1,10] with Max >= Min.
type IntensityRange struct {
	Min int
	Max int
}

// RangeInput bundles the per-round context for ClampIntensityRange.
// PreviousIntensity is nil when the lobby has no prior round.
type RangeInput struct {
	PreviousIntensity *int
	NextRound         int
	YesTrend          float64
	NSFWEnabled       bool
}

// ClampIntensityRange derives the next round's intensity interval from the
// tone band, then applies the nsfw ceiling, the early-game ceiling, trend
// adjustments, and a pull toward the previous round's intensity so back to
// back rounds never jump abruptly.
func ClampIntensityRange(tone Tone, in RangeInput) IntensityRange {
	band := ToneBand(tone)
	lo, hi := band.IntensityMin, band.IntensityMax

	if !in.NSFWEnabled && hi > 7 {
		hi = 7
	}
	if in.NextRound <= 20 {
		lo = clampInt(1, 4, lo)
		hi = clampInt(lo, 4, hi)
	}
	if in.YesTrend >= 0.68 {
		hi++
		if in.NextRound > 20 {
			lo++
		}
	} else if in.YesTrend <= 0.32 {
		lo--
		hi--
	}
	if in.PreviousIntensity != nil {
		prev := *in.PreviousIntensity
		lo = clampInt(prev-2, prev+3, lo)
		hi = clampInt(prev-2, prev+3, hi)
	}

	lo = clampInt(1, 10, lo)
	hi = clampInt(1, 10, hi)
	if hi < lo {
		hi = lo
	}
	return IntensityRange{Min: lo, Max: hi}
}

func clamp01(v float64) float64 {
	return clampFloat(0, 1, v)
}

func clampFloat(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(lo, hi, v int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
