package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSetLifecycleStateExclusivelySetsOneState(t *testing.T) {
	SetLifecycleState("E1", "trading")
	require.Equal(t, float64(1), testutil.ToFloat64(LifecycleState.WithLabelValues("E1", "trading")))
	require.Equal(t, float64(0), testutil.ToFloat64(LifecycleState.WithLabelValues("E1", "idle")))

	SetLifecycleState("E1", "idle")
	require.Equal(t, float64(0), testutil.ToFloat64(LifecycleState.WithLabelValues("E1", "trading")))
	require.Equal(t, float64(1), testutil.ToFloat64(LifecycleState.WithLabelValues("E1", "idle")))
}

func TestRecordSyncRunAccumulates(t *testing.T) {
	before := testutil.ToFloat64(SyncRunPostedTotal.WithLabelValues("E2"))
	RecordSyncRun("E2", 3, 1, 2, 0.5)
	require.Equal(t, before+3, testutil.ToFloat64(SyncRunPostedTotal.WithLabelValues("E2")))
	require.Equal(t, float64(1), testutil.ToFloat64(SyncRunRejectedTotal.WithLabelValues("E2")))
	require.Equal(t, float64(2), testutil.ToFloat64(SyncRunDeduplicatedTotal.WithLabelValues("E2")))
}

func TestRecordRealizedPnLUsesMagnitude(t *testing.T) {
	before := testutil.ToFloat64(RealizedPnLTotal.WithLabelValues("E3", "AAPL"))
	RecordRealizedPnL("E3", "AAPL", -42.5)
	require.Equal(t, before+42.5, testutil.ToFloat64(RealizedPnLTotal.WithLabelValues("E3", "AAPL")))
}
