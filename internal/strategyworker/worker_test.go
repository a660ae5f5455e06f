package strategyworker

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tbotcore/internal/identity"
	"tbotcore/internal/lifecycle"
	"tbotcore/internal/types"
)

func newResolver(t *testing.T) *identity.Resolver {
	t.Helper()
	r, err := identity.New(t.TempDir(), types.Identity4{Entity: "ACME", Jurisdiction: "US", Broker: "ALPACA", BotID: "BOT1"})
	require.NoError(t, err)
	return r
}

func TestAlreadyRanTodayFalseUntilStamped(t *testing.T) {
	r := newResolver(t)
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

	ran, err := AlreadyRanToday(r, "open", now)
	require.NoError(t, err)
	require.False(t, ran)

	require.NoError(t, StampPhaseRun(r, "open", now))

	ran, err = AlreadyRanToday(r, "open", now)
	require.NoError(t, err)
	require.True(t, ran)

	ran, err = AlreadyRanToday(r, "open", now.Add(24*time.Hour))
	require.NoError(t, err)
	require.False(t, ran)
}

func TestAlreadyRanTodayForceBypass(t *testing.T) {
	r := newResolver(t)
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	require.NoError(t, StampPhaseRun(r, "open", now))

	t.Setenv("FORCE", "1")
	ran, err := AlreadyRanToday(r, "open", now)
	require.NoError(t, err)
	require.False(t, ran)
}

func TestCheckLifecycleGateRunnableStates(t *testing.T) {
	r := newResolver(t)
	mgr := lifecycle.NewManager(r)

	require.NoError(t, mgr.Set(types.StateIdle, "boot"))
	ok, _, err := CheckLifecycleGate(mgr)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.Set(types.StateTrading, "open_phase"))
	ok, state, err := CheckLifecycleGate(mgr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.StateTrading, state)
}

func TestCheckLifecycleGateForceBypass(t *testing.T) {
	r := newResolver(t)
	mgr := lifecycle.NewManager(r)
	require.NoError(t, mgr.Set(types.StateIdle, "boot"))

	t.Setenv("FORCE", "1")
	ok, _, err := CheckLifecycleGate(mgr)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWriteRunStampProducesJSON(t *testing.T) {
	r := newResolver(t)
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	require.NoError(t, WriteRunStamp(r, "strategy_open_last.json", true, now))

	logsDir, err := r.LogsDir()
	require.NoError(t, err)
	body, err := os.ReadFile(logsDir + "/strategy_open_last.json")
	require.NoError(t, err)
	require.Contains(t, string(body), `"kind":"OK"`)
}
