// Command apiserver runs the HTTP status & control API (§4.8): read-only
// status/schedule/balance/mapping endpoints, a websocket status push, and
// a Prometheus scrape endpoint over the dedicated registry.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"tbotcore/internal/api"
	"tbotcore/internal/config"
	"tbotcore/internal/identity"
	"tbotcore/internal/ledger"
	"tbotcore/internal/logging"
	"tbotcore/internal/lots"
	"tbotcore/internal/metrics"
	"tbotcore/internal/types"
)

func main() {
	cfg := config.Load()
	id := types.Identity4{Entity: cfg.EntityCode, Jurisdiction: cfg.JurisdictionCode, Broker: cfg.BrokerCode, BotID: cfg.BotID}
	resolver, err := identity.New(cfg.RootDir, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: invalid identity: %v\n", err)
		os.Exit(1)
	}
	logging.BootBanner("apiserver", id.String(), "1.0.0")
	logging.Configure("apiserver", id.String())
	metrics.Init()
	metrics.SetLifecycleState(id.String(), "idle")

	var db *sql.DB
	dbPath, err := resolver.LedgerDBPath()
	if err != nil {
		logging.Errorf("apiserver: resolve ledger db path: %v", err)
	} else if _, statErr := os.Stat(dbPath); statErr == nil {
		db, err = sql.Open("sqlite", dbPath)
		if err != nil {
			logging.Errorf("apiserver: open ledger db: %v", err)
		} else {
			ctx := context.Background()
			if err := ledger.EnsureSchema(ctx, db); err != nil {
				logging.Errorf("apiserver: ensure ledger schema: %v", err)
			}
			lotsEngine := lots.New(db)
			if err := lotsEngine.EnsureSchema(ctx); err != nil {
				logging.Errorf("apiserver: ensure lots schema: %v", err)
			}
			defer db.Close()
		}
	} else {
		logging.Warnf("apiserver: ledger db not found at %s, /ledger/balances will 503 until a sync run creates it", dbPath)
	}

	srv, err := api.NewServer(cfg, resolver, id, db)
	if err != nil {
		logging.Errorf("apiserver: build server: %v", err)
		os.Exit(1)
	}
	if err := srv.Run(cfg.APIListenAddr); err != nil {
		logging.Errorf("apiserver: serve: %v", err)
		os.Exit(1)
	}
}
