// Command syncdriver runs one broker sync pass: snapshot, fetch,
// normalize, dedupe, compliance-filter, opening-balance bootstrap, and
// post, per §4.7. It takes a JSON fixture in place of a live broker
// adapter — broker HTTP adapters are out of scope for the core.
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
	"tbotcore/internal/logging"
	"tbotcore/internal/lots"
	"tbotcore/internal/syncdriver"
	"tbotcore/internal/types"
)

func main() {
	fixturePath := flag.String("fixture", "", "path to a broker sync JSON fixture (trades/cash_activities)")
	fromFlag := flag.String("from", "", "RFC3339 start of range (default: 24h ago)")
	toFlag := flag.String("to", "", "RFC3339 end of range (default: now)")
	flag.Parse()
	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "syncdriver: --fixture is required (no live broker adapter is wired into the core)")
		os.Exit(2)
	}

	cfg := config.Load()
	id := types.Identity4{Entity: cfg.EntityCode, Jurisdiction: cfg.JurisdictionCode, Broker: cfg.BrokerCode, BotID: cfg.BotID}
	resolver, err := identity.New(cfg.RootDir, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "syncdriver: invalid identity: %v\n", err)
		os.Exit(1)
	}
	logging.Configure("syncdriver", id.String())

	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now
	if *fromFlag != "" {
		if from, err = time.Parse(time.RFC3339, *fromFlag); err != nil {
			fmt.Fprintf(os.Stderr, "syncdriver: bad --from: %v\n", err)
			os.Exit(2)
		}
	}
	if *toFlag != "" {
		if to, err = time.Parse(time.RFC3339, *toFlag); err != nil {
			fmt.Fprintf(os.Stderr, "syncdriver: bad --to: %v\n", err)
			os.Exit(2)
		}
	}

	dbPath, err := resolver.LedgerDBPath()
	if err != nil {
		logging.Errorf("syncdriver: resolve ledger db path: %v", err)
		os.Exit(1)
	}
	if snapshotPath, err := syncdriver.SnapshotLedgerDB(dbPath, now); err != nil {
		logging.Errorf("syncdriver: snapshot ledger db: %v", err)
		os.Exit(1)
	} else if snapshotPath != "" {
		logging.Infof("syncdriver: snapshotted ledger db to %s", snapshotPath)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		logging.Errorf("syncdriver: open ledger db: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := ledger.EnsureSchema(ctx, db); err != nil {
		logging.Errorf("syncdriver: ensure ledger schema: %v", err)
		os.Exit(1)
	}
	lotsEngine := lots.New(db)
	if err := lotsEngine.EnsureSchema(ctx); err != nil {
		logging.Errorf("syncdriver: ensure lots schema: %v", err)
		os.Exit(1)
	}

	auditPath, err := resolver.LedgerAuditPath()
	if err != nil {
		logging.Errorf("syncdriver: resolve ledger audit path: %v", err)
		os.Exit(1)
	}
	identityCodes := ledger.IdentityCodes{
		EntityCode: cfg.EntityCode, JurisdictionCode: cfg.JurisdictionCode, BrokerCode: cfg.BrokerCode, BotID: cfg.BotID,
	}
	audit := ledger.NewAuditWriter(auditPath, identityCodes)
	identityTags := types.IdentityTags{
		EntityCode: cfg.EntityCode, JurisdictionCode: cfg.JurisdictionCode, BrokerCode: cfg.BrokerCode, BotID: cfg.BotID,
	}
	poster := ledger.NewPoster(db, lotsEngine, coa.DefaultAccounts, audit, identityTags)

	maxAbs, err := decimal.NewFromString(cfg.LedgerMaxAbsAmount)
	if err != nil {
		maxAbs = decimal.New(1, 9)
	}
	compliance := ledger.ComplianceConfig{
		MaxAbsAmount:      maxAbs,
		EnforceDateWindow: cfg.LedgerEnforceDateWindow,
		MaxBackdateDays:   cfg.LedgerMaxBackdateDays,
		MaxFutureMinutes:  cfg.LedgerMaxFutureMinutes,
	}

	coaJSONPath, err := resolver.CoaJSONPath()
	if err != nil {
		logging.Errorf("syncdriver: resolve coa tree path: %v", err)
		os.Exit(1)
	}
	coaMetaPath, err := resolver.CoaMetadataPath()
	if err != nil {
		logging.Errorf("syncdriver: resolve coa metadata path: %v", err)
		os.Exit(1)
	}
	coaAuditPath, err := resolver.CoaAuditLogPath()
	if err != nil {
		logging.Errorf("syncdriver: resolve coa audit path: %v", err)
		os.Exit(1)
	}
	coaLoaded, err := coa.NewStore(coaJSONPath, coaMetaPath, coaAuditPath).Load()
	if err != nil {
		logging.Warnf("syncdriver: load coa tree (skipping opening-balance bootstrap): %v", err)
	} else {
		opened, err := poster.PostOpeningBalancesIfNeeded(ctx, coaLoaded.AccountsFlat, "bootstrap", ledger.BrokerSnapshot{})
		if err != nil {
			logging.Errorf("syncdriver: opening balance bootstrap: %v", err)
			os.Exit(1)
		}
		if opened {
			logging.Info("syncdriver: posted opening balances")
		}
	}

	adapter, err := syncdriver.LoadFileFixtureAdapter(*fixturePath)
	if err != nil {
		logging.Errorf("syncdriver: load fixture: %v", err)
		os.Exit(1)
	}

	result, err := syncdriver.Run(ctx, syncdriver.Dependencies{
		Poster: poster, Audit: audit, Accounts: coa.DefaultAccounts, Compliance: compliance, Identity: id,
	}, adapter, from, to)
	if err != nil {
		logging.Errorf("syncdriver: sync run failed: %v", err)
		os.Exit(1)
	}
	logging.Infof("syncdriver: run %s complete: fetched=%d+%d posted=%d rejected=%d deduped=%d",
		result.SyncRunID, result.TradesFetched, result.CashFetched, result.Posted, result.Rejected, result.Deduplicated)
}
