package syncdriver

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"tbotcore/internal/coa"
	"tbotcore/internal/ledger"
	"tbotcore/internal/lots"
	"tbotcore/internal/normalize"
	"tbotcore/internal/types"
)

type fixedAdapter struct {
	trades []normalize.RawFields
	cash   []normalize.RawFields
}

func (f *fixedAdapter) FetchTrades(from, to time.Time) ([]normalize.RawFields, error) {
	return f.trades, nil
}

func (f *fixedAdapter) FetchCashActivities(from, to time.Time) ([]normalize.RawFields, error) {
	return f.cash, nil
}

func newTestDeps(t *testing.T) (Dependencies, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, ledger.EnsureSchema(ctx, db))
	lotsEngine := lots.New(db)
	require.NoError(t, lotsEngine.EnsureSchema(ctx))

	audit := ledger.NewAuditWriter(filepath.Join(t.TempDir(), "ledger_audit.jsonl"), ledger.IdentityCodes{
		EntityCode: "E1", JurisdictionCode: "US", BrokerCode: "ALPACA", BotID: "BOT1",
	})
	identityTags := types.IdentityTags{EntityCode: "E1", JurisdictionCode: "US", BrokerCode: "ALPACA", BotID: "BOT1"}
	poster := ledger.NewPoster(db, lotsEngine, coa.DefaultAccounts, audit, identityTags)

	return Dependencies{
		Poster:   poster,
		Audit:    audit,
		Accounts: coa.DefaultAccounts,
		Compliance: ledger.ComplianceConfig{
			MaxAbsAmount:      decimal.New(1, 9),
			EnforceDateWindow: false,
		},
		Identity: types.Identity4{Entity: "E1", Jurisdiction: "US", Broker: "ALPACA", BotID: "BOT1"},
	}, db
}

func TestRunPostsNormalizedBuyAndDeposit(t *testing.T) {
	deps, db := newTestDeps(t)
	now := time.Now().UTC().Format(time.RFC3339)

	adapter := &fixedAdapter{
		trades: []normalize.RawFields{
			{"trade_id": "T1", "symbol": "AAPL", "action": "buy", "quantity": "10", "price": "100", "DTPOSTED": now},
		},
		cash: []normalize.RawFields{
			{"activity_id": "A1", "activity_type": "DEPOSIT", "amount": "500", "DTPOSTED": now},
		},
	}

	result, err := Run(context.Background(), deps, adapter, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, result.Posted)
	require.Equal(t, 0, result.Rejected)

	var tradeCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&tradeCount))
	require.Greater(t, tradeCount, 0)
}

func TestRunSkipsAlreadyPostedTradeID(t *testing.T) {
	deps, _ := newTestDeps(t)
	now := time.Now().UTC().Format(time.RFC3339)

	adapter := &fixedAdapter{
		trades: []normalize.RawFields{
			{"trade_id": "T1", "symbol": "AAPL", "action": "buy", "quantity": "10", "price": "100", "DTPOSTED": now},
		},
	}

	first, err := Run(context.Background(), deps, adapter, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, first.Posted)

	second, err := Run(context.Background(), deps, adapter, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, second.Posted)
}

func TestRunRejectsUnmappedAccountEntry(t *testing.T) {
	deps, _ := newTestDeps(t)
	now := time.Now().UTC().Format(time.RFC3339)

	adapter := &fixedAdapter{
		trades: []normalize.RawFields{
			{"trade_id": "T2", "symbol": "AAPL", "action": "unknown_action", "quantity": "10", "price": "100", "DTPOSTED": now},
		},
	}
	deps.Accounts = map[string]string{} // force empty account resolution -> unmapped reject

	result, err := Run(context.Background(), deps, adapter, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, result.Posted)
	require.Equal(t, 1, result.Rejected)
}
