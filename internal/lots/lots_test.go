package lots

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"tbotcore/internal/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordOpenAndAllocateFIFO(t *testing.T) {
	db := openTestDB(t)
	e := New(db)
	ctx := context.Background()
	require.NoError(t, e.EnsureSchema(ctx))

	ts1 := time.Date(2025, 2, 10, 14, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(time.Hour)

	_, err := e.RecordOpen(ctx, "AAPL", decimal.NewFromInt(5), decimal.NewFromInt(100), decimal.Zero, types.LotLong, "T1", ts1, "system", nil)
	require.NoError(t, err)
	_, err = e.RecordOpen(ctx, "AAPL", decimal.NewFromInt(5), decimal.NewFromInt(120), decimal.Zero, types.LotLong, "T2", ts2, "system", nil)
	require.NoError(t, err)

	allocs, err := e.AllocateForClose(ctx, "AAPL", decimal.NewFromInt(7), types.LotLong, "FIFO")
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	require.True(t, allocs[0].Qty.Equal(decimal.NewFromInt(5)))
	require.True(t, allocs[0].UnitCost.Equal(decimal.NewFromInt(100)))
	require.True(t, allocs[1].Qty.Equal(decimal.NewFromInt(2)))
	require.True(t, allocs[1].UnitCost.Equal(decimal.NewFromInt(120)))
}

func TestAllocateInsufficientInventory(t *testing.T) {
	db := openTestDB(t)
	e := New(db)
	ctx := context.Background()
	require.NoError(t, e.EnsureSchema(ctx))

	_, err := e.RecordOpen(ctx, "AAPL", decimal.NewFromInt(3), decimal.NewFromInt(100), decimal.Zero, types.LotLong, "T1", time.Now(), "system", nil)
	require.NoError(t, err)

	_, err = e.AllocateForClose(ctx, "AAPL", decimal.NewFromInt(10), types.LotLong, "FIFO")
	require.Error(t, err)
}

func TestRecordCloseRealizedPnLLongSell(t *testing.T) {
	db := openTestDB(t)
	e := New(db)
	ctx := context.Background()
	require.NoError(t, e.EnsureSchema(ctx))

	ts := time.Date(2025, 2, 10, 15, 4, 5, 0, time.UTC)
	_, err := e.RecordOpen(ctx, "AAPL", decimal.NewFromInt(5), decimal.NewFromInt(100), decimal.Zero, types.LotLong, "T1", ts, "system", nil)
	require.NoError(t, err)

	allocs, err := e.AllocateForClose(ctx, "AAPL", decimal.NewFromInt(5), types.LotLong, "FIFO")
	require.NoError(t, err)

	closedAt := ts.Add(4 * time.Hour)
	summary, err := e.RecordClose(ctx, types.LotLong, allocs, "T2", decimal.NewFromInt(550), decimal.NewFromFloat(0.5), closedAt, false, "system", nil)
	require.NoError(t, err)
	require.True(t, summary.BasisTotal.Equal(decimal.NewFromInt(500)))
	require.True(t, summary.RealizedPnLTotal.Equal(decimal.NewFromInt(50)))
}
