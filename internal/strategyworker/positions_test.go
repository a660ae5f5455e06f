package strategyworker

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"tbotcore/internal/lots"
	"tbotcore/internal/types"
)

func TestOpenPositionsAggregatesWeightedAverageEntry(t *testing.T) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	engine := lots.New(db)
	require.NoError(t, engine.EnsureSchema(ctx))

	_, err = engine.RecordOpen(ctx, "AAPL", d("10"), d("100"), decimal.Zero, types.LotLong, "t1", time.Now().UTC(), "system", nil)
	require.NoError(t, err)
	_, err = engine.RecordOpen(ctx, "AAPL", d("10"), d("120"), decimal.Zero, types.LotLong, "t2", time.Now().UTC(), "system", nil)
	require.NoError(t, err)

	positions, err := OpenPositions(ctx, db)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, "AAPL", positions[0].Symbol)
	require.True(t, positions[0].QtyRemaining.Equal(d("20")))
	require.True(t, positions[0].EntryPrice.Equal(d("110")), "expected weighted avg 110, got %s", positions[0].EntryPrice)
}
