package strategyworker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tbotcore/internal/atomicio"
	"tbotcore/internal/identity"
	"tbotcore/internal/lifecycle"
	"tbotcore/internal/types"
)

// runnableLifecycleStates is the pre-run lifecycle gate: strategy workers
// only proceed when the bot's lifecycle token is one of these.
var runnableLifecycleStates = map[types.LifecycleState]bool{
	types.StateRunning:   true,
	types.StateTrading:   true,
	types.StateMonitoring: true,
	types.StateAnalyzing: true,
}

// force reports whether the FORCE env override is set, bypassing both the
// idempotency stamp and the lifecycle gate — used in tests and manual
// re-runs.
func force() bool {
	v := strings.TrimSpace(os.Getenv("FORCE"))
	return v != "" && v != "0" && !strings.EqualFold(v, "false")
}

// CheckLifecycleGate reports whether the current lifecycle state permits
// a strategy phase to run.
func CheckLifecycleGate(mgr *lifecycle.Manager) (bool, types.LifecycleState, error) {
	if force() {
		state, err := mgr.Get(types.StateIdle)
		return true, state, err
	}
	state, err := mgr.Get(types.StateIdle)
	if err != nil {
		return false, state, err
	}
	return runnableLifecycleStates[state], state, nil
}

// AlreadyRanToday reports whether the phase's stamp file already records
// today's UTC date, per the per-phase idempotency contract. FORCE bypasses
// this check.
func AlreadyRanToday(r *identity.Resolver, phase string, now time.Time) (bool, error) {
	if force() {
		return false, nil
	}
	path, err := r.StampFilePath(fmt.Sprintf("last_strategy_%s_utc", phase))
	if err != nil {
		return false, err
	}
	stamp, err := atomicio.ReadFirstLine(path)
	if err != nil {
		return false, err
	}
	if stamp == "" {
		return false, nil
	}
	return strings.HasPrefix(stamp, now.UTC().Format("2006-01-02")), nil
}

// StampPhaseRun writes today's UTC timestamp to the phase's idempotency
// stamp file.
func StampPhaseRun(r *identity.Resolver, phase string, now time.Time) error {
	path, err := r.StampFilePath(fmt.Sprintf("last_strategy_%s_utc", phase))
	if err != nil {
		return err
	}
	return atomicio.WriteFile(path, []byte(now.UTC().Format("2006-01-02T15:04:05Z")+"\n"), 0o644)
}

// RunStamp is the status.json entry recorded for holdings/universe/
// strategy_{open,mid,close} phase completions, per the status file's
// external-interface contract.
type RunStamp struct {
	Kind       string `json:"kind"` // "OK" or "Failed"
	LastRunUTC string `json:"last_run_utc"`
}

// WriteRunStamp writes the phase's JSON run-stamp file (e.g.
// strategy_open_last.json, holdings_manager_last.txt).
func WriteRunStamp(r *identity.Resolver, fileName string, ok bool, now time.Time) error {
	dir, err := r.LogsDir()
	if err != nil {
		return err
	}
	kind := "OK"
	if !ok {
		kind = "Failed"
	}
	body := fmt.Sprintf(`{"kind":%q,"last_run_utc":%q}`, kind, now.UTC().Format("2006-01-02T15:04:05Z"))
	return atomicio.WriteFile(filepath.Join(dir, fileName), []byte(body+"\n"), 0o644)
}
