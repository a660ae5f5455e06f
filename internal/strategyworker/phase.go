package strategyworker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tbotcore/internal/config"
	"tbotcore/internal/ledger"
	"tbotcore/internal/logging"
	"tbotcore/internal/types"
)

// Session identifies which phase invoked the worker.
type Session string

const (
	SessionOpen         Session = "open"
	SessionMid          Session = "mid"
	SessionClose        Session = "close"
	SessionHoldingsOpen Session = "holdings_open"
	SessionHoldingsMid  Session = "holdings_mid"
	SessionUniverse     Session = "universe"
)

// tradingSessions trailing-stop evaluation runs against; holdings and
// universe sessions are out-of-scope external collaborators (screener
// and holdings reconciliation live outside the core) and are no-op stamp
// writers here.
var tradingSessions = map[Session]bool{
	SessionOpen:  true,
	SessionMid:   true,
	SessionClose: true,
}

func trailPctFor(cfg *config.Config, session Session) decimal.Decimal {
	switch session {
	case SessionOpen:
		return decimal.NewFromFloat(cfg.TrailPctOpen)
	case SessionMid:
		return decimal.NewFromFloat(cfg.TrailPctMid)
	case SessionClose:
		return decimal.NewFromFloat(cfg.TrailPctClose)
	default:
		return decimal.NewFromFloat(cfg.TradingTrailingStopPct)
	}
}

// Result summarizes one phase run for logging and the run-stamp file.
type Result struct {
	Session    Session
	Evaluated  int
	Exited     int
	RealizedPnL decimal.Decimal
}

// RunTradingSession evaluates every open position's trailing stop against
// the price feed and exits positions that have crossed their threshold,
// grounded on the original's strategy-phase invocation of the trailing
// stop helper.
func RunTradingSession(ctx context.Context, cfg *config.Config, session Session, poster *ledger.Poster, positions []OpenPosition, feed PriceFeed, now time.Time, closeUTC time.Time) (Result, error) {
	result := Result{Session: session, RealizedPnL: decimal.Zero}
	trailPct := trailPctFor(cfg, session)

	secondsToClose := int(closeUTC.Sub(now).Seconds())
	if IsNearHardClose(secondsToClose, cfg.HardCloseBufferSec) {
		trailPct = TightenedTrailPct(trailPct, decimal.NewFromFloat(cfg.TrailTightenFactor))
	}

	for _, pos := range positions {
		if pos.QtyRemaining.IsZero() {
			continue
		}
		price, atr, err := feed.Quote(pos.Symbol)
		if err != nil {
			logging.Warnf("strategyworker: %s: no quote for %s: %v", session, pos.Symbol, err)
			continue
		}
		result.Evaluated++

		state := NewTrailingStopState(pos.Side, trailPct)
		state.RegisterTick(price)
		extreme := state.Peak
		if pos.Side == types.LotShort {
			extreme = state.Trough
		}

		var atrMult *decimal.Decimal
		if atr != nil {
			mult := decimal.NewFromFloat(2.0)
			atrMult = &mult
		}

		threshold := ComputeExitThreshold(ThresholdInputs{
			Side:         pos.Side,
			EntryPrice:   pos.EntryPrice,
			Extreme:      extreme,
			CurrentPrice: price,
			TrailPct:     trailPct,
			ATR:          atr,
			ATRMult:      atrMult,
		})

		triggered := false
		if pos.Side == types.LotLong {
			triggered = price.LessThanOrEqual(threshold)
		} else {
			triggered = price.GreaterThanOrEqual(threshold)
		}
		if !triggered {
			continue
		}

		tradeID := uuid.NewString()
		meta := ledger.Meta{Actor: "strategyworker", Strategy: string(session)}
		var realized decimal.Decimal
		if pos.Side == types.LotLong {
			realized, err = poster.PostSell(ctx, pos.Symbol, pos.QtyRemaining, price, decimal.Zero, tradeID, now, meta)
		} else {
			realized, err = poster.PostShortCover(ctx, pos.Symbol, pos.QtyRemaining, price, decimal.Zero, tradeID, now, meta)
		}
		if err != nil {
			return result, fmt.Errorf("exit %s %s: %w", pos.Side, pos.Symbol, err)
		}
		result.Exited++
		result.RealizedPnL = result.RealizedPnL.Add(realized)
		logging.Infof("strategyworker: %s: trailing stop exit %s qty=%s price=%s pnl=%s", session, pos.Symbol, pos.QtyRemaining.String(), price.String(), realized.String())
	}
	return result, nil
}
