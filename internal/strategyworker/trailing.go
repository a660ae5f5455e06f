// Package strategyworker implements the strategy phase workers (C7):
// trailing-stop evaluation for open positions, per-phase idempotency
// stamping, and the pre-run lifecycle gate, grounded on
// trading/trailing_stop.py's TrailingStopState dataclass.
package strategyworker

import (
	"github.com/shopspring/decimal"

	"tbotcore/internal/types"
)

// TrailingStopState tracks the running peak/trough for one open position,
// keeping trading/trailing_stop.py's field and method names but using
// Decimal arithmetic instead of float64.
type TrailingStopState struct {
	Side   types.LotSide
	Pct    decimal.Decimal
	Peak   decimal.Decimal
	Trough decimal.Decimal
	Active bool
}

// NewTrailingStopState mirrors the dataclass defaults: trough starts at a
// very large sentinel so the first tick always lowers it.
func NewTrailingStopState(side types.LotSide, pct decimal.Decimal) *TrailingStopState {
	return &TrailingStopState{
		Side:   side,
		Pct:    pct,
		Peak:   decimal.Zero,
		Trough: decimal.New(1, 12),
		Active: true,
	}
}

// RegisterTick updates the running extreme for the position's side.
func (s *TrailingStopState) RegisterTick(price decimal.Decimal) {
	if s.Side == types.LotLong {
		if price.GreaterThan(s.Peak) {
			s.Peak = price
		}
		return
	}
	if price.LessThan(s.Trough) {
		s.Trough = price
	}
}

// ExitTriggerPrice returns the raw percent-of-extreme trigger, or the
// zero value if the state hasn't registered a tick yet.
func (s *TrailingStopState) ExitTriggerPrice() (decimal.Decimal, bool) {
	one := decimal.New(1, 0)
	if s.Side == types.LotLong {
		if s.Peak.IsZero() {
			return decimal.Zero, false
		}
		return s.Peak.Mul(one.Sub(s.Pct)), true
	}
	if s.Trough.Equal(decimal.New(1, 12)) {
		return decimal.Zero, false
	}
	return s.Trough.Mul(one.Add(s.Pct)), true
}

// ShouldExit reports whether price has crossed the raw trigger.
func (s *TrailingStopState) ShouldExit(price decimal.Decimal) bool {
	trigger, ok := s.ExitTriggerPrice()
	if !ok {
		return false
	}
	if s.Side == types.LotLong {
		return price.LessThanOrEqual(trigger)
	}
	return price.GreaterThanOrEqual(trigger)
}

// ThresholdInputs holds the parameters of the centralized trailing-stop
// helper described by the scheduler's runtime contract: given
// (side, entry_price, peak_or_trough, current_price, trail_pct, atr?,
// atr_mult?, min_stop_pct?, max_stop_pct?), compute the most conservative
// exit threshold among percent-of-extreme and ATR-distance candidates,
// clamped into [entry*(1-max), entry*(1-min)] for long (mirrored for
// short).
type ThresholdInputs struct {
	Side         types.LotSide
	EntryPrice   decimal.Decimal
	Extreme      decimal.Decimal // peak for long, trough for short
	CurrentPrice decimal.Decimal
	TrailPct     decimal.Decimal
	ATR          *decimal.Decimal
	ATRMult      *decimal.Decimal
	MinStopPct   *decimal.Decimal
	MaxStopPct   *decimal.Decimal
}

// ComputeExitThreshold is the centralized helper every strategy worker
// call site must route through. It never returns a threshold outside the
// configured min/max stop band around entry price; when neither
// MinStopPct nor MaxStopPct is set, the threshold is not clamped.
func ComputeExitThreshold(in ThresholdInputs) decimal.Decimal {
	isLong := in.Side == types.LotLong

	pctCandidate := percentCandidate(in.Extreme, in.TrailPct, isLong)
	candidates := []decimal.Decimal{pctCandidate}

	if in.ATR != nil && in.ATRMult != nil {
		candidates = append(candidates, atrCandidate(in.Extreme, *in.ATR, *in.ATRMult, isLong))
	}

	threshold := mostConservative(candidates, isLong)
	if in.MinStopPct == nil && in.MaxStopPct == nil {
		return threshold
	}

	lower, upper := clampBand(in.EntryPrice, in.MinStopPct, in.MaxStopPct, isLong)
	if threshold.LessThan(lower) {
		threshold = lower
	}
	if threshold.GreaterThan(upper) {
		threshold = upper
	}
	return threshold
}

// percentCandidate is the raw percent-of-extreme stop: extreme*(1-pct) for
// long, mirrored for short.
func percentCandidate(extreme, pct decimal.Decimal, isLong bool) decimal.Decimal {
	one := decimal.New(1, 0)
	if isLong {
		return extreme.Mul(one.Sub(pct))
	}
	return extreme.Mul(one.Add(pct))
}

// atrCandidate offsets the extreme by a multiple of ATR instead of a
// percent, giving a volatility-scaled stop distance.
func atrCandidate(extreme, atr, atrMult decimal.Decimal, isLong bool) decimal.Decimal {
	offset := atr.Mul(atrMult)
	if isLong {
		return extreme.Sub(offset)
	}
	return extreme.Add(offset)
}

// mostConservative picks the candidate that triggers soonest: for long
// positions that is the highest threshold (closest to the current
// extreme, smallest permitted drawdown); for short positions it is the
// lowest threshold.
func mostConservative(candidates []decimal.Decimal, isLong bool) decimal.Decimal {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if isLong && c.GreaterThan(best) {
			best = c
		}
		if !isLong && c.LessThan(best) {
			best = c
		}
	}
	return best
}

// clampBand returns [entry*(1-max), entry*(1-min)] for long, mirrored for
// short, defaulting min/max to 0 and 1 respectively when unset.
func clampBand(entry decimal.Decimal, minStopPct, maxStopPct *decimal.Decimal, isLong bool) (decimal.Decimal, decimal.Decimal) {
	one := decimal.New(1, 0)
	minPct := decimal.Zero
	if minStopPct != nil {
		minPct = *minStopPct
	}
	maxPct := one
	if maxStopPct != nil {
		maxPct = *maxStopPct
	}
	if isLong {
		lower := entry.Mul(one.Sub(maxPct))
		upper := entry.Mul(one.Sub(minPct))
		return lower, upper
	}
	lower := entry.Mul(one.Add(minPct))
	upper := entry.Mul(one.Add(maxPct))
	return lower, upper
}

// TightenedTrailPct narrows a base trail percent by tightenFactor, used
// in the buffer window before hard market close.
func TightenedTrailPct(basePct, tightenFactor decimal.Decimal) decimal.Decimal {
	return basePct.Mul(tightenFactor)
}

// IsNearHardClose reports whether secondsToClose falls inside the
// configured pre-close buffer, at which point callers should use
// TightenedTrailPct instead of the phase's base trail percent.
func IsNearHardClose(secondsToClose, bufferSec int) bool {
	return secondsToClose >= 0 && secondsToClose <= bufferSec
}
