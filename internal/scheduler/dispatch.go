package scheduler

import (
	"time"

	"tbotcore/internal/lifecycle"
	"tbotcore/internal/types"
)

// RunDecision is the outcome of evaluating one phase boundary.
type RunDecision struct {
	Run        bool
	ShouldWait bool          // true: caller should sleep until Target then re-decide
	Target     time.Time
	LateBy     time.Duration // only meaningful when Run is true and LateBy > 0
}

// DecideRun implements _should_run_or_skip: a zero target means "no
// scheduled time, run now"; a future target means wait; a past target
// within grace runs immediately; beyond grace it is skipped.
func DecideRun(now, target time.Time, graceMin int) RunDecision {
	if target.IsZero() {
		return RunDecision{Run: true}
	}
	if now.Before(target) {
		return RunDecision{ShouldWait: true, Target: target}
	}
	late := now.Sub(target)
	grace := time.Duration(graceMin) * time.Minute
	if late <= grace {
		return RunDecision{Run: true, LateBy: late}
	}
	return RunDecision{Run: false, LateBy: late}
}

// CheckControlFlags reports the boundary-check control flag in effect, if
// any, giving kill strict priority over stop, mirroring _boundary_check.
func CheckControlFlags(flags *lifecycle.Flags) (types.ControlFlag, error) {
	killed, err := flags.Check(types.ControlKill)
	if err != nil {
		return "", err
	}
	if killed {
		return types.ControlKill, nil
	}
	stopped, err := flags.Check(types.ControlStop)
	if err != nil {
		return "", err
	}
	if stopped {
		return types.ControlStop, nil
	}
	return "", nil
}
