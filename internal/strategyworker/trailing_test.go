package strategyworker

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tbotcore/internal/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestTrailingStopStateLongTracksPeakAndTriggers(t *testing.T) {
	s := NewTrailingStopState(types.LotLong, d("0.02"))
	s.RegisterTick(d("100"))
	s.RegisterTick(d("110"))
	s.RegisterTick(d("105")) // pullback, peak stays 110

	trigger, ok := s.ExitTriggerPrice()
	require.True(t, ok)
	require.True(t, trigger.Equal(d("107.8"))) // 110 * 0.98

	require.False(t, s.ShouldExit(d("108")))
	require.True(t, s.ShouldExit(d("107")))
}

func TestTrailingStopStateShortTracksTroughAndTriggers(t *testing.T) {
	s := NewTrailingStopState(types.LotShort, d("0.02"))
	s.RegisterTick(d("100"))
	s.RegisterTick(d("90"))
	s.RegisterTick(d("95")) // bounce, trough stays 90

	trigger, ok := s.ExitTriggerPrice()
	require.True(t, ok)
	require.True(t, trigger.Equal(d("91.8"))) // 90 * 1.02

	require.False(t, s.ShouldExit(d("91")))
	require.True(t, s.ShouldExit(d("92")))
}

func TestComputeExitThresholdPicksMostConservativeCandidateLong(t *testing.T) {
	atr := d("5")
	atrMult := d("2") // ATR candidate: 110 - 10 = 100
	threshold := ComputeExitThreshold(ThresholdInputs{
		Side:       types.LotLong,
		EntryPrice: d("100"),
		Extreme:    d("110"),
		TrailPct:   d("0.02"), // percent candidate: 110 * 0.98 = 107.8
		ATR:        &atr,
		ATRMult:    &atrMult,
	})
	require.True(t, threshold.Equal(d("107.8")), "expected the higher (tighter) long candidate, got %s", threshold)
}

func TestComputeExitThresholdPicksMostConservativeCandidateShort(t *testing.T) {
	atr := d("5")
	atrMult := d("2") // ATR candidate: 90 + 10 = 100
	threshold := ComputeExitThreshold(ThresholdInputs{
		Side:       types.LotShort,
		EntryPrice: d("100"),
		Extreme:    d("90"),
		TrailPct:   d("0.02"), // percent candidate: 90 * 1.02 = 91.8
		ATR:        &atr,
		ATRMult:    &atrMult,
	})
	require.True(t, threshold.Equal(d("91.8")), "expected the lower (tighter) short candidate, got %s", threshold)
}

func TestComputeExitThresholdClampsToMaxStopBandLong(t *testing.T) {
	maxStop := d("0.05") // floor at 100 * 0.95 = 95
	minStop := d("0.0")
	threshold := ComputeExitThreshold(ThresholdInputs{
		Side:       types.LotLong,
		EntryPrice: d("100"),
		Extreme:    d("110"),
		TrailPct:   d("0.20"), // raw candidate would be 110*0.8 = 88, below the floor
		MinStopPct: &minStop,
		MaxStopPct: &maxStop,
	})
	require.True(t, threshold.Equal(d("95")), "expected clamp to entry*(1-max), got %s", threshold)
}

func TestComputeExitThresholdClampsToMinStopBandLong(t *testing.T) {
	maxStop := d("1.0")
	minStop := d("0.05") // ceiling at 100 * 0.95 = 95
	threshold := ComputeExitThreshold(ThresholdInputs{
		Side:       types.LotLong,
		EntryPrice: d("100"),
		Extreme:    d("100.5"),
		TrailPct:   d("0.001"), // raw candidate ~100.4, above the ceiling
		MinStopPct: &minStop,
		MaxStopPct: &maxStop,
	})
	require.True(t, threshold.Equal(d("95")), "expected clamp to entry*(1-min), got %s", threshold)
}

func TestTightenedTrailPctNarrowsBase(t *testing.T) {
	tightened := TightenedTrailPct(d("0.02"), d("0.5"))
	require.True(t, tightened.Equal(d("0.01")))
}

func TestIsNearHardClose(t *testing.T) {
	require.True(t, IsNearHardClose(100, 300))
	require.True(t, IsNearHardClose(300, 300))
	require.False(t, IsNearHardClose(301, 300))
	require.False(t, IsNearHardClose(-1, 300))
}
