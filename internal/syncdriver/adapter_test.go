package syncdriver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFileFixtureAdapterRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"trades": [{"trade_id": "T1", "symbol": "AAPL", "action": "buy", "quantity": "10", "price": "100"}],
		"cash_activities": [{"activity_id": "A1", "activity_type": "DEPOSIT", "amount": "500"}]
	}`), 0o644))

	adapter, err := LoadFileFixtureAdapter(path)
	require.NoError(t, err)

	trades, err := adapter.FetchTrades(time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, "T1", trades[0]["trade_id"])

	cash, err := adapter.FetchCashActivities(time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, cash, 1)
	require.Equal(t, "A1", cash[0]["activity_id"])
}

func TestLoadFileFixtureAdapterMissingFileErrors(t *testing.T) {
	_, err := LoadFileFixtureAdapter(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
}
