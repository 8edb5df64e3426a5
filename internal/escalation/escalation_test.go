// internal/escalation/escalation_test.go
package escalation

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ratio(v float64) *float64 { return &v }

func TestUpdateBoldnessStaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		current := rng.Float64()*4 - 2 // deliberately out of range inputs too
		delta := rng.Float64()*6 - 3
		got := UpdateBoldness(current, delta)
		require.GreaterOrEqual(t, got, 0.0, "current=%v delta=%v", current, delta)
		require.LessOrEqual(t, got, 1.0, "current=%v delta=%v", current, delta)
	}
}

func TestUpdateBoldnessIsMovingAverage(t *testing.T) {
	assert.InDelta(t, 0.3*1.0+0.7*0.5, UpdateBoldness(0.5, 1.0), 1e-9)
	assert.Equal(t, 0.0, UpdateBoldness(0, 0))
}

func TestBoldnessDelta(t *testing.T) {
	assert.Equal(t, 0.0, BoldnessDelta(3, 0, ToneFreaky))
	assert.InDelta(t, 0.5, BoldnessDelta(2, 2, ToneSafe), 1e-9)
	assert.InDelta(t, 1.0, BoldnessDelta(2, 4, ToneFreaky), 1e-9)
	assert.InDelta(t, 0.75, BoldnessDelta(1, 2, ToneSecretive), 1e-9)
}

func TestProgressionModifier(t *testing.T) {
	assert.Equal(t, 0.0, ProgressionModifier(5, 0))
	assert.InDelta(t, 0.02, ProgressionModifier(1, 20), 1e-9)
	assert.InDelta(t, 0.2, ProgressionModifier(20, 20), 1e-9)
	// capped at 0.2 even past the nominal end
	assert.InDelta(t, 0.2, ProgressionModifier(30, 20), 1e-9)
}

func TestDetermineToneIsMonotonic(t *testing.T) {
	for _, nsfw := range []bool{false, true} {
		rank := func(tn Tone) int {
			switch tn {
			case ToneSafe:
				return 0
			case ToneDeeper:
				return 1
			case ToneSecretive:
				return 2
			default:
				return 3
			}
		}
		prev := -1
		for score := 0.0; score <= 1.21; score += 0.01 {
			r := rank(DetermineTone(score, nsfw))
			require.GreaterOrEqual(t, r, prev, "tone rank regressed at score %v (nsfw=%v)", score, nsfw)
			prev = r
		}
	}
}

func TestFreakyRequiresNSFW(t *testing.T) {
	for score := 0.0; score <= 2.0; score += 0.05 {
		assert.NotEqual(t, ToneFreaky, DetermineTone(score, false), "score %v", score)
	}
	assert.Equal(t, ToneFreaky, DetermineTone(0.8, true))
	assert.Equal(t, ToneSecretive, DetermineTone(0.8, false))
}

func TestRecentYesTrendNeutralCases(t *testing.T) {
	assert.Equal(t, 0.5, RecentYesTrend(nil, 4))
	assert.Equal(t, 0.5, RecentYesTrend([]HistoryEntry{}, 4))

	// ratios 1 and 0 average back to neutral
	hist := []HistoryEntry{
		{RoundNumber: 1, Tone: ToneSafe, HaveRatio: ratio(1)},
		{RoundNumber: 2, Tone: ToneSafe, HaveRatio: ratio(0)},
	}
	assert.Equal(t, 0.5, RecentYesTrend(hist, 4))

	// entries without a ratio are skipped entirely
	hist = []HistoryEntry{{RoundNumber: 1, Tone: ToneSafe}, {RoundNumber: 2, Tone: ToneSafe}}
	assert.Equal(t, 0.5, RecentYesTrend(hist, 4))
}

func TestRecentYesTrendWindow(t *testing.T) {
	hist := []HistoryEntry{
		{RoundNumber: 1, HaveRatio: ratio(0)},
		{RoundNumber: 2, HaveRatio: ratio(1)},
		{RoundNumber: 3, HaveRatio: ratio(1)},
		{RoundNumber: 4, HaveRatio: ratio(1)},
		{RoundNumber: 5, HaveRatio: ratio(1)},
	}
	// only the last four entries count
	assert.InDelta(t, 1.0, RecentYesTrend(hist, 4), 1e-9)
	assert.InDelta(t, 0.8, RecentYesTrend(hist, 5), 1e-9)
}

func TestDeriveSelectionBiasBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		trend := rng.Float64()
		round := rng.Intn(40) + 1
		maxRounds := rng.Intn(40)
		b := DeriveSelectionBias(trend, round, maxRounds)
		require.GreaterOrEqual(t, b.EscalationMultiplier, 0.7)
		require.LessOrEqual(t, b.EscalationMultiplier, 1.9)
		require.GreaterOrEqual(t, b.VulnerabilityBias, 0.75)
		require.LessOrEqual(t, b.VulnerabilityBias, 1.6)
		require.GreaterOrEqual(t, b.TrendBias, -0.11)
		require.LessOrEqual(t, b.TrendBias, 0.11)
	}

	neutral := DeriveSelectionBias(0.5, 0, 0)
	assert.InDelta(t, 1.0, neutral.EscalationMultiplier, 1e-9)
	assert.InDelta(t, 1.0, neutral.VulnerabilityBias, 1e-9)
	assert.InDelta(t, 0.0, neutral.TrendBias, 1e-9)
}

func TestClampIntensityRangeInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	tones := []Tone{ToneSafe, ToneDeeper, ToneSecretive, ToneFreaky}
	for i := 0; i < 10000; i++ {
		in := RangeInput{
			NextRound:   rng.Intn(60) + 1,
			YesTrend:    rng.Float64(),
			NSFWEnabled: rng.Intn(2) == 0,
		}
		if rng.Intn(2) == 0 {
			prev := rng.Intn(10) + 1
			in.PreviousIntensity = &prev
		}
		r := ClampIntensityRange(tones[rng.Intn(len(tones))], in)
		require.GreaterOrEqual(t, r.Max, r.Min)
		require.GreaterOrEqual(t, r.Min, 1)
		require.LessOrEqual(t, r.Max, 10)
	}
}

func TestClampIntensityRangeEarlyGameCeiling(t *testing.T) {
	// a fresh sfw lobby with neutral answers never exceeds intensity 4
	// during the first twenty rounds
	var prev *int
	for round := 1; round <= 20; round++ {
		r := ClampIntensityRange(ToneSafe, RangeInput{
			PreviousIntensity: prev,
			NextRound:         round,
			YesTrend:          0.5,
			NSFWEnabled:       false,
		})
		require.LessOrEqual(t, r.Max, 4, "round %d", round)
		p := r.Max
		prev = &p
	}
}

func TestClampIntensityRangeNSFWCeiling(t *testing.T) {
	r := ClampIntensityRange(ToneFreaky, RangeInput{NextRound: 25, YesTrend: 0.5, NSFWEnabled: false})
	assert.LessOrEqual(t, r.Max, 8) // 7 cap, +0 trend; pull-free
	r = ClampIntensityRange(ToneFreaky, RangeInput{NextRound: 25, YesTrend: 0.5, NSFWEnabled: true})
	assert.Equal(t, 10, r.Max)
}

func TestClampIntensityRangeTrendShift(t *testing.T) {
	base := ClampIntensityRange(ToneDeeper, RangeInput{NextRound: 25, YesTrend: 0.5, NSFWEnabled: true})
	hot := ClampIntensityRange(ToneDeeper, RangeInput{NextRound: 25, YesTrend: 0.8, NSFWEnabled: true})
	cold := ClampIntensityRange(ToneDeeper, RangeInput{NextRound: 25, YesTrend: 0.2, NSFWEnabled: true})
	assert.Equal(t, base.Max+1, hot.Max)
	assert.Equal(t, base.Min+1, hot.Min)
	assert.Equal(t, base.Max-1, cold.Max)
	assert.Equal(t, base.Min-1, cold.Min)
}

func TestClampIntensityRangePullsTowardPrevious(t *testing.T) {
	prev := 2
	r := ClampIntensityRange(ToneFreaky, RangeInput{
		PreviousIntensity: &prev,
		NextRound:         25,
		YesTrend:          0.5,
		NSFWEnabled:       true,
	})
	// freaky band is 7..10 but a previous intensity of 2 holds the ceiling down
	assert.LessOrEqual(t, r.Max, prev+3)
}
