package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tbotcore/internal/config"
	"tbotcore/internal/identity"
	"tbotcore/internal/lifecycle"
	"tbotcore/internal/types"
)

func testConfig() *config.Config {
	return &config.Config{
		OpenHHMM: "14:30", MidHHMM: "17:30", CloseHHMM: "20:45", MarketCloseHHMM: "21:00",
		HoldOpenMin: 15, HoldMidMin: 15, UnivAfterCloseMin: 30,
		TradingDays: []string{"mon", "tue", "wed", "thu", "fri"}, PhaseGraceMin: 2,
	}
}

func TestComputeScheduleDerivesAllBoundaries(t *testing.T) {
	cfg := testConfig()
	tradingDate := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 2, 10, 13, 0, 0, 0, time.UTC)

	sched, err := ComputeSchedule(cfg, tradingDate, now)
	require.NoError(t, err)
	require.Equal(t, "2025-02-10", sched.TradingDate)
	require.Equal(t, time.Date(2025, 2, 10, 14, 30, 0, 0, time.UTC), sched.OpenUTC)
	require.Equal(t, time.Date(2025, 2, 10, 14, 45, 0, 0, time.UTC), sched.HoldingsOpenUTC)
	require.Equal(t, time.Date(2025, 2, 10, 17, 30, 0, 0, time.UTC), sched.MidUTC)
	require.Equal(t, time.Date(2025, 2, 10, 17, 45, 0, 0, time.UTC), sched.HoldingsMidUTC)
	require.Equal(t, time.Date(2025, 2, 10, 20, 45, 0, 0, time.UTC), sched.CloseUTC)
	require.Equal(t, time.Date(2025, 2, 10, 21, 15, 0, 0, time.UTC), sched.UniverseUTC)
}

func TestIsTradingDaySkipsWeekendsAndHolidays(t *testing.T) {
	cfg := testConfig()
	holidays := map[string]bool{"2025-02-10": true}

	require.False(t, IsTradingDay(cfg, time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC), holidays)) // Saturday
	require.False(t, IsTradingDay(cfg, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), holidays)) // holiday
	require.True(t, IsTradingDay(cfg, time.Date(2025, 2, 11, 0, 0, 0, 0, time.UTC), holidays))
}

// TestGraceWindowRunsOrSkips directly validates P10's worked example:
// open_utc=14:30Z, grace_min=2; starting at 14:31:30Z runs, starting at
// 14:33:00Z is skipped as "missed by 3m".
func TestGraceWindowRunsOrSkips(t *testing.T) {
	openUTC := time.Date(2025, 2, 10, 14, 30, 0, 0, time.UTC)

	d1 := DecideRun(time.Date(2025, 2, 10, 14, 31, 30, 0, time.UTC), openUTC, 2)
	require.True(t, d1.Run)

	d2 := DecideRun(time.Date(2025, 2, 10, 14, 33, 0, 0, time.UTC), openUTC, 2)
	require.False(t, d2.Run)
	require.Equal(t, 3*time.Minute, d2.LateBy)
}

func TestDecideRunWaitsForFutureTarget(t *testing.T) {
	target := time.Date(2025, 2, 10, 14, 30, 0, 0, time.UTC)
	d := DecideRun(time.Date(2025, 2, 10, 14, 0, 0, 0, time.UTC), target, 2)
	require.True(t, d.ShouldWait)
	require.Equal(t, target, d.Target)
}

func newTestResolver(t *testing.T) *identity.Resolver {
	t.Helper()
	r, err := identity.New(t.TempDir(), types.Identity4{Entity: "ACME", Jurisdiction: "US", Broker: "ALPACA", BotID: "BOT1"})
	require.NoError(t, err)
	return r
}

// TestControlFlagsKillTakesPriorityOverStop validates S5: with both flags
// present, kill must win.
func TestControlFlagsKillTakesPriorityOverStop(t *testing.T) {
	r := newTestResolver(t)
	flags := lifecycle.NewFlags(r)

	killPath, err := r.ControlFlagPath(types.ControlKill)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(killPath, []byte{}, 0o644))
	stopPath, err := r.ControlFlagPath(types.ControlStop)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(stopPath, []byte{}, 0o644))

	flag, err := CheckControlFlags(flags)
	require.NoError(t, err)
	require.Equal(t, types.ControlKill, flag)
}

func TestScheduleFileRoundTrip(t *testing.T) {
	cfg := testConfig()
	sched, err := ComputeSchedule(cfg, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), time.Now())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "schedule.json")
	require.NoError(t, WriteSchedule(path, sched))

	loaded, err := ReadSchedule(path)
	require.NoError(t, err)
	require.Equal(t, sched.TradingDate, loaded.TradingDate)
	require.True(t, sched.OpenUTC.Equal(loaded.OpenUTC))
}

func TestLoadHolidaysIgnoresCommentsAndBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\n2025-01-01\n2025-12-25\n"), 0o644))

	holidays, err := LoadHolidays(path)
	require.NoError(t, err)
	require.True(t, holidays["2025-01-01"])
	require.True(t, holidays["2025-12-25"])
	require.Len(t, holidays, 2)
}
