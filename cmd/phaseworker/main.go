// Command phaseworker runs one scheduled phase's business logic: trailing
// stop evaluation for OPEN/MID/CLOSE, and a run-stamp write for the
// holdings/universe hooks that live outside the core, grounded on the
// teacher's AutoTrader.runCycle one-shot invocation style.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"

	"tbotcore/internal/coa"
	"tbotcore/internal/config"
	"tbotcore/internal/identity"
	"tbotcore/internal/ledger"
	"tbotcore/internal/lifecycle"
	"tbotcore/internal/logging"
	"tbotcore/internal/lots"
	"tbotcore/internal/scheduler"
	"tbotcore/internal/strategyworker"
	"tbotcore/internal/types"
)

func runStampFileName(session strategyworker.Session) string {
	switch session {
	case strategyworker.SessionOpen:
		return "strategy_open_last.json"
	case strategyworker.SessionMid:
		return "strategy_mid_last.json"
	case strategyworker.SessionClose:
		return "strategy_close_last.json"
	case strategyworker.SessionHoldingsOpen, strategyworker.SessionHoldingsMid:
		return "holdings_manager_last.txt"
	case strategyworker.SessionUniverse:
		return "universe_rebuild_last.txt"
	default:
		return string(session) + "_last.json"
	}
}

func main() {
	session := flag.String("session", "", "phase session: open|mid|close|holdings_open|holdings_mid|universe")
	flag.Parse()
	sess := strategyworker.Session(*session)
	if sess == "" {
		fmt.Fprintln(os.Stderr, "phaseworker: --session is required")
		os.Exit(2)
	}

	cfg := config.Load()
	id := types.Identity4{Entity: cfg.EntityCode, Jurisdiction: cfg.JurisdictionCode, Broker: cfg.BrokerCode, BotID: cfg.BotID}
	resolver, err := identity.New(cfg.RootDir, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "phaseworker: invalid identity: %v\n", err)
		os.Exit(1)
	}
	logging.Configure("phaseworker:"+string(sess), id.String())

	now := time.Now().UTC()
	mgr := lifecycle.NewManager(resolver)
	ok, state, err := strategyworker.CheckLifecycleGate(mgr)
	if err != nil {
		logging.Errorf("phaseworker: lifecycle gate: %v", err)
		os.Exit(1)
	}
	if !ok {
		logging.Infof("phaseworker: %s: lifecycle state %q not runnable, exiting quietly", sess, state)
		os.Exit(0)
	}

	ran, err := strategyworker.AlreadyRanToday(resolver, string(sess), now)
	if err != nil {
		logging.Errorf("phaseworker: idempotency check: %v", err)
		os.Exit(1)
	}
	if ran {
		logging.Infof("phaseworker: %s: already ran today, exiting quietly", sess)
		os.Exit(0)
	}
	if err := strategyworker.StampPhaseRun(resolver, string(sess), now); err != nil {
		logging.Warnf("phaseworker: stamp phase run: %v", err)
	}

	if !trading(sess) {
		if err := strategyworker.WriteRunStamp(resolver, runStampFileName(sess), true, now); err != nil {
			logging.Warnf("phaseworker: write run stamp: %v", err)
		}
		logging.Infof("phaseworker: %s: no core trading logic for this phase, stamped complete", sess)
		os.Exit(0)
	}

	if err := runTradingPhase(resolver, cfg, sess, now); err != nil {
		logging.Errorf("phaseworker: %s: %v", sess, err)
		_ = strategyworker.WriteRunStamp(resolver, runStampFileName(sess), false, now)
		os.Exit(1)
	}
	_ = strategyworker.WriteRunStamp(resolver, runStampFileName(sess), true, now)
}

func trading(s strategyworker.Session) bool {
	switch s {
	case strategyworker.SessionOpen, strategyworker.SessionMid, strategyworker.SessionClose:
		return true
	default:
		return false
	}
}

func runTradingPhase(resolver *identity.Resolver, cfg *config.Config, sess strategyworker.Session, now time.Time) error {
	dbPath, err := resolver.LedgerDBPath()
	if err != nil {
		return fmt.Errorf("resolve ledger db path: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open ledger db: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := ledger.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	lotsEngine := lots.New(db)
	if err := lotsEngine.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure lots schema: %w", err)
	}

	auditPath, err := resolver.LedgerAuditPath()
	if err != nil {
		return fmt.Errorf("resolve ledger audit path: %w", err)
	}
	identityCodes := ledger.IdentityCodes{
		EntityCode: cfg.EntityCode, JurisdictionCode: cfg.JurisdictionCode, BrokerCode: cfg.BrokerCode, BotID: cfg.BotID,
	}
	audit := ledger.NewAuditWriter(auditPath, identityCodes)
	identityTags := types.IdentityTags{
		EntityCode: cfg.EntityCode, JurisdictionCode: cfg.JurisdictionCode, BrokerCode: cfg.BrokerCode, BotID: cfg.BotID,
	}
	poster := ledger.NewPoster(db, lotsEngine, coa.DefaultAccounts, audit, identityTags)

	positions, err := strategyworker.OpenPositions(ctx, db)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	if len(positions) == 0 {
		logging.Infof("phaseworker: %s: no open positions to evaluate", sess)
		return nil
	}

	fixturePath := os.Getenv("PRICE_FIXTURE_PATH")
	if fixturePath == "" {
		logging.Warnf("phaseworker: %s: PRICE_FIXTURE_PATH unset; no broker market-data adapter is wired into the core, skipping trailing-stop evaluation", sess)
		return nil
	}
	feed, err := strategyworker.LoadFileFixturePriceFeed(fixturePath)
	if err != nil {
		return fmt.Errorf("load price fixture: %w", err)
	}

	schedPath, err := resolver.SchedulePath()
	if err != nil {
		return fmt.Errorf("resolve schedule path: %w", err)
	}
	sched, err := scheduler.ReadSchedule(schedPath)
	closeUTC := now.Add(24 * time.Hour)
	if err == nil {
		closeUTC = sched.CloseUTC
	}

	result, err := strategyworker.RunTradingSession(ctx, cfg, sess, poster, positions, feed, now, closeUTC)
	if err != nil {
		return err
	}
	logging.Infof("phaseworker: %s: evaluated=%d exited=%d realized_pnl=%s", sess, result.Evaluated, result.Exited, decimalOrZero(result.RealizedPnL))
	return nil
}

func decimalOrZero(d decimal.Decimal) string {
	return d.String()
}
