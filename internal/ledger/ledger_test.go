package ledger

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
	"tbotcore/internal/lots"
	"tbotcore/internal/types"
)

func newTestPoster(t *testing.T) (*Poster, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, db))
	lotsEngine := lots.New(db)
	require.NoError(t, lotsEngine.EnsureSchema(ctx))

	audit := NewAuditWriter(filepath.Join(t.TempDir(), "ledger_audit.jsonl"), IdentityCodes{
		EntityCode: "E1", JurisdictionCode: "US", BrokerCode: "ALPACA", BotID: "BOT1",
	})
	identity := types.IdentityTags{EntityCode: "E1", JurisdictionCode: "US", BrokerCode: "ALPACA", BotID: "BOT1"}
	accounts := coa.DefaultAccounts

	return NewPoster(db, lotsEngine, accounts, audit, identity), db
}

func sumTotalValue(t *testing.T, db *sql.DB, groupID string) decimal.Decimal {
	t.Helper()
	rows, err := db.Query(`SELECT total_value FROM trades WHERE group_id = ?`, groupID)
	require.NoError(t, err)
	defer rows.Close()
	sum := decimal.Zero
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		d, err := decimal.NewFromString(s)
		require.NoError(t, err)
		sum = sum.Add(d)
	}
	require.NoError(t, rows.Err())
	return sum
}

func TestPostBuyAndSellZeroSumPerGroup(t *testing.T) {
	p, db := newTestPoster(t)
	ctx := context.Background()
	ts1 := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)
	ts2 := ts1.Add(time.Hour)

	require.NoError(t, p.PostBuy(ctx, "AAPL", decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.Zero, "T1", ts1, Meta{}))
	require.True(t, sumTotalValue(t, db, "T1").IsZero())

	realized, err := p.PostSell(ctx, "AAPL", decimal.NewFromInt(10), decimal.NewFromInt(105), decimal.Zero, "T2", ts2, Meta{})
	require.NoError(t, err)
	require.True(t, realized.Equal(decimal.NewFromInt(50)), "expected realized pnl of 50, got %s", realized)
	require.True(t, sumTotalValue(t, db, "T2").IsZero())
}

func TestPostShortOpenAndCoverZeroSumPerGroup(t *testing.T) {
	p, db := newTestPoster(t)
	ctx := context.Background()
	ts1 := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)
	ts2 := ts1.Add(time.Hour)

	require.NoError(t, p.PostShortOpen(ctx, "TSLA", decimal.NewFromInt(5), decimal.NewFromInt(200), decimal.Zero, "S1", ts1, Meta{}))
	require.True(t, sumTotalValue(t, db, "S1").IsZero())

	realized, err := p.PostShortCover(ctx, "TSLA", decimal.NewFromInt(5), decimal.NewFromInt(180), decimal.Zero, "S2", ts2, Meta{})
	require.NoError(t, err)
	require.True(t, realized.Equal(decimal.NewFromInt(100)), "expected realized pnl of 100 on short cover, got %s", realized)
	require.True(t, sumTotalValue(t, db, "S2").IsZero())
}

func TestPostBuyWithFeeStillBalances(t *testing.T) {
	p, db := newTestPoster(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)

	require.NoError(t, p.PostBuy(ctx, "AAPL", decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.NewFromFloat(1.50), "T1", ts, Meta{}))
	require.True(t, sumTotalValue(t, db, "T1").IsZero())
}

func TestPostDepositAndWithdrawalBalance(t *testing.T) {
	p, db := newTestPoster(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, p.PostDeposit(ctx, decimal.NewFromInt(1000), "D1", ts, Meta{}))
	require.True(t, sumTotalValue(t, db, "D1").IsZero())

	require.NoError(t, p.PostWithdrawal(ctx, decimal.NewFromInt(200), "W1", ts, Meta{}))
	require.True(t, sumTotalValue(t, db, "W1").IsZero())
}

func TestComplianceRejectInvalidSideProducesSingleAuditNoTradeRow(t *testing.T) {
	p, _ := newTestPoster(t)
	ts := time.Now().UTC()

	entries := []Entry{
		{
			Account: "Assets:Brokerage:Cash", Side: "neither",
			TotalValue: decimal.NewFromInt(-10), HasTotalValue: true,
			TimestampUTC: &ts, GroupID: "REJECT1",
		},
	}
	cfg := ComplianceConfig{MaxAbsAmount: decimal.NewFromInt(1000000)}

	ok, reasons := ValidateEntries(entries, cfg, func(Entry) bool { return true }, p.Audit)
	require.False(t, ok)
	require.Len(t, reasons, 1)
	require.Equal(t, "invalid_side", string(reasons[0]))

	var count int
	require.NoError(t, p.DB.QueryRow(`SELECT COUNT(*) FROM trades WHERE group_id = ?`, "REJECT1").Scan(&count))
	require.Equal(t, 0, count)
}

func TestDeduplicateEntriesDropsRepeatTradeID(t *testing.T) {
	entries := []NormalizedInput{{TradeID: "T1"}, {TradeID: "T1"}, {TradeID: "T2"}}
	out := DeduplicateEntries(entries, func(n NormalizedInput) NormalizedInput { return n }, func(n NormalizedInput, gid string) NormalizedInput {
		n.GroupID = gid
		return n
	})
	require.Len(t, out, 2)
	require.Equal(t, "T1", out[0].GroupID)
}

func TestOpeningBalancesPostOnceThenSkip(t *testing.T) {
	p, db := newTestPoster(t)
	ctx := context.Background()

	flat := []coa.FlatAccount{
		{Code: "1010", Name: "Cash", Path: "Assets:Brokerage:Cash"},
		{Code: "3010", Name: "OpeningBalances", Path: "Equity:OpeningBalances"},
	}
	snapshot := BrokerSnapshot{AsOfUTC: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Cash: decimal.NewFromInt(5000), HasCash: true}

	posted, err := p.PostOpeningBalancesIfNeeded(ctx, flat, "RUN1", snapshot)
	require.NoError(t, err)
	require.True(t, posted)
	require.True(t, sumTotalValue(t, db, "OPENING_BALANCE_20250101").IsZero())

	posted, err = p.PostOpeningBalancesIfNeeded(ctx, flat, "RUN2", snapshot)
	require.NoError(t, err)
	require.False(t, posted)
}

func TestCalculateAccountBalancesWindow(t *testing.T) {
	p, db := newTestPoster(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)

	require.NoError(t, p.PostBuy(ctx, "AAPL", decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.Zero, "T1", ts, Meta{}))

	balances, err := CalculateAccountBalances(ctx, db, ts.Add(time.Hour), nil)
	require.NoError(t, err)
	equityAcct := coa.EquityAccount(coa.DefaultAccounts, "AAPL")
	require.Contains(t, balances, equityAcct)
	require.True(t, balances[equityAcct].ClosingBalance.Equal(decimal.NewFromInt(1000)))
}
