// Command dispatcher runs one trading day's phase schedule to completion,
// grounded on runtime/schedule_dispatcher.py's main().
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"tbotcore/internal/config"
	"tbotcore/internal/identity"
	"tbotcore/internal/lifecycle"
	"tbotcore/internal/logging"
	"tbotcore/internal/scheduler"
	"tbotcore/internal/types"
)

type phaseStep struct {
	name       string
	session    string
	target     func(*types.Schedule) time.Time
	state      types.LifecycleState
	phaseLog   string
}

func steps(sched *types.Schedule) []phaseStep {
	return []phaseStep{
		{name: "OPEN", session: "open", target: func(s *types.Schedule) time.Time { return s.OpenUTC }, state: types.StateTrading, phaseLog: "open"},
		{name: "HOLDINGS(open)", session: "holdings_open", target: func(s *types.Schedule) time.Time { return s.HoldingsOpenUTC }, state: types.StateUpdating, phaseLog: "holdings_open"},
		{name: "MID", session: "mid", target: func(s *types.Schedule) time.Time { return s.MidUTC }, state: types.StateTrading, phaseLog: "mid"},
		{name: "HOLDINGS(mid)", session: "holdings_mid", target: func(s *types.Schedule) time.Time { return s.HoldingsMidUTC }, state: types.StateUpdating, phaseLog: "holdings_mid"},
		{name: "CLOSE", session: "close", target: func(s *types.Schedule) time.Time { return s.CloseUTC }, state: types.StateTrading, phaseLog: "close"},
		{name: "UNIVERSE", session: "universe", target: func(s *types.Schedule) time.Time { return s.UniverseUTC }, state: types.StateUpdating, phaseLog: "universe"},
	}
}

func phaseWorkerPath() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "phaseworker")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if p, err := exec.LookPath("phaseworker"); err == nil {
		return p
	}
	return "phaseworker"
}

func runPhaseWorker(session, logPath string) int {
	cmd := exec.Command(phaseWorkerPath(), "--session="+session)
	cmd.Env = os.Environ()
	lf, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logging.Errorf("dispatcher: cannot open phase log %s: %v", logPath, err)
		return 1
	}
	defer lf.Close()
	cmd.Stdout = lf
	cmd.Stderr = lf
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		return 1
	}
	return 0
}

func main() {
	cfg := config.Load()
	id := types.Identity4{Entity: cfg.EntityCode, Jurisdiction: cfg.JurisdictionCode, Broker: cfg.BrokerCode, BotID: cfg.BotID}
	resolver, err := identity.New(cfg.RootDir, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dispatcher: invalid identity: %v\n", err)
		os.Exit(1)
	}
	logging.Configure("dispatcher", id.String())

	statusPath, err := resolver.StatusPath()
	if err != nil {
		logging.Errorf("dispatcher: resolve status path: %v", err)
		os.Exit(1)
	}
	mgr := lifecycle.NewManager(resolver)
	flags := lifecycle.NewFlags(resolver)

	schedPath, err := resolver.SchedulePath()
	if err != nil {
		logging.Errorf("dispatcher: resolve schedule path: %v", err)
		os.Exit(1)
	}
	sched, err := scheduler.ReadSchedule(schedPath)
	if err != nil {
		_ = scheduler.AppendDispatcherLog(resolver, fmt.Sprintf("ERROR reading schedule.json: %v", err))
		_ = scheduler.WriteStatus(statusPath, map[string]any{"dispatcher_status": "failed", "message": fmt.Sprintf("schedule read error: %v", err)})
		_ = mgr.Set(types.StateError, "schedule_read_error")
		os.Exit(1)
	}

	lockPath, err := resolver.DispatcherLockPath(sched.TradingDate)
	if err != nil {
		logging.Errorf("dispatcher: resolve lock path: %v", err)
		os.Exit(1)
	}
	if _, err := os.Stat(lockPath); err == nil {
		_ = scheduler.AppendDispatcherLog(resolver, fmt.Sprintf("Lock exists for %s; another dispatcher likely ran. Exiting.", sched.TradingDate))
		_ = scheduler.WriteStatus(statusPath, map[string]any{"dispatcher_status": "already_ran", "trading_date": sched.TradingDate})
		os.Exit(0)
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	if err := os.WriteFile(lockPath, []byte(ts+"\n"), 0o644); err != nil {
		logging.Warnf("dispatcher: cannot write lock: %v", err)
	}

	_ = scheduler.WriteStatus(statusPath, map[string]any{"dispatcher_status": "running", "trading_date": sched.TradingDate})

	rcNonzero := false
	for _, step := range steps(sched) {
		if flag, err := scheduler.CheckControlFlags(flags); err == nil && flag != "" {
			switch flag {
			case types.ControlKill:
				_ = mgr.Set(types.StateShutdownTriggered, "kill")
				_ = scheduler.AppendDispatcherLog(resolver, "Kill flag detected. Aborting.")
				_ = scheduler.WriteStatus(statusPath, map[string]any{"dispatcher_status": "aborted", "reason": "kill"})
			case types.ControlStop:
				_ = mgr.Set(types.StateGracefulClosingPositions, "stop")
				_ = scheduler.AppendDispatcherLog(resolver, "Stop flag detected. Halting further phases.")
				_ = scheduler.WriteStatus(statusPath, map[string]any{"dispatcher_status": "stopped", "reason": "stop"})
			}
			os.Exit(0)
		}

		target := step.target(sched)
		decision := scheduler.DecideRun(time.Now().UTC(), target, cfg.PhaseGraceMin)
		for decision.ShouldWait {
			sleepFor := time.Until(decision.Target)
			if sleepFor > 60*time.Second {
				sleepFor = 60 * time.Second
			}
			time.Sleep(sleepFor)
			decision = scheduler.DecideRun(time.Now().UTC(), target, cfg.PhaseGraceMin)
		}
		if !decision.Run {
			_ = scheduler.AppendDispatcherLog(resolver, fmt.Sprintf("%s: missed by %dm %ds (> grace) → skipping.", step.name, int(decision.LateBy.Minutes()), int(decision.LateBy.Seconds())%60))
			continue
		}
		if decision.LateBy > 0 {
			_ = scheduler.AppendDispatcherLog(resolver, fmt.Sprintf("%s: late by %ds (≤ %dm grace) → running now.", step.name, int(decision.LateBy.Seconds()), cfg.PhaseGraceMin))
		}

		_ = mgr.Set(step.state, step.session)
		logPath, err := scheduler.PhaseLogPath(resolver, step.phaseLog)
		if err != nil {
			logging.Errorf("dispatcher: resolve phase log path: %v", err)
			rcNonzero = true
			continue
		}
		_ = scheduler.AppendDispatcherLog(resolver, fmt.Sprintf("Exec[%s]: phaseworker --session=%s", step.name, step.session))
		rc := runPhaseWorker(step.session, logPath)
		_ = scheduler.AppendDispatcherLog(resolver, fmt.Sprintf("Exit[%s]: %d", step.name, rc))
		if rc != 0 {
			rcNonzero = true
		}
	}

	_ = mgr.Set(types.StateIdle, "dispatcher_complete")
	rcFlag := 0
	if rcNonzero {
		rcFlag = 1
	}
	_ = scheduler.WriteStatus(statusPath, map[string]any{"dispatcher_status": "complete", "rc_nonzero": rcFlag})
	_ = scheduler.AppendDispatcherLog(resolver, fmt.Sprintf("Dispatcher complete. rc_nonzero=%d", rcFlag))
	os.Exit(rcFlag)
}
