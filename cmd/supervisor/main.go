// Command supervisor computes the daily schedule and spawns one
// dispatcher subprocess per trading day, grounded on the teacher's
// AutoTrader.Run/Stop loop shape and runtime/schedule_dispatcher.py's
// caller conventions.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tbotcore/internal/config"
	"tbotcore/internal/identity"
	"tbotcore/internal/lifecycle"
	"tbotcore/internal/logging"
	"tbotcore/internal/scheduler"
	"tbotcore/internal/types"
)

const version = "1.0.0"

func dispatcherPath() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "dispatcher")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if p, err := exec.LookPath("dispatcher"); err == nil {
		return p
	}
	return "dispatcher"
}

// terminateGracefully sends SIGTERM, waits up to 8s, then SIGKILL.
func terminateGracefully(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(8 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}

func main() {
	cfg := config.Load()
	id := types.Identity4{Entity: cfg.EntityCode, Jurisdiction: cfg.JurisdictionCode, Broker: cfg.BrokerCode, BotID: cfg.BotID}
	resolver, err := identity.New(cfg.RootDir, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "supervisor: invalid identity: %v\n", err)
		os.Exit(1)
	}
	logging.BootBanner("supervisor", id.String(), version)
	logging.Configure("supervisor", id.String())

	mgr := lifecycle.NewManager(resolver)
	statusPath, err := resolver.StatusPath()
	if err != nil {
		logging.Errorf("supervisor: resolve status path: %v", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	holidaysPath, err := resolver.HolidaysPath()
	if err != nil {
		logging.Errorf("supervisor: resolve holidays path: %v", err)
		os.Exit(1)
	}
	holidays, err := scheduler.LoadHolidays(holidaysPath)
	if err != nil {
		logging.Errorf("supervisor: load holidays: %v", err)
		os.Exit(1)
	}

	sched, err := scheduler.ComputeSchedule(cfg, now, now)
	if err != nil {
		logging.Errorf("supervisor: compute schedule: %v", err)
		_ = mgr.Set(types.StateError, "schedule_compute_error")
		os.Exit(1)
	}

	schedPath, err := resolver.SchedulePath()
	if err != nil {
		logging.Errorf("supervisor: resolve schedule path: %v", err)
		os.Exit(1)
	}
	if err := scheduler.WriteSchedule(schedPath, sched); err != nil {
		logging.Errorf("supervisor: write schedule: %v", err)
		os.Exit(1)
	}

	if !scheduler.IsTradingDay(cfg, now, holidays) {
		logging.Infof("supervisor: %s is not a trading day, skipping dispatch", sched.TradingDate)
		_ = scheduler.WriteStatus(statusPath, map[string]any{
			"supervisor_status": "skipped", "schedule": sched.TradingDate, "trading_date": sched.TradingDate,
		})
		_ = mgr.Set(types.StateIdle, "non_trading_day")
		os.Exit(0)
	}

	_ = scheduler.WriteStatus(statusPath, map[string]any{
		"supervisor_status": "running", "schedule": sched.TradingDate, "trading_date": sched.TradingDate,
	})
	_ = mgr.Set(types.StateRunning, "supervisor_start")

	logging.Infof("supervisor: dispatching trading day %s", sched.TradingDate)
	cmd := exec.Command(dispatcherPath())
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		logging.Errorf("supervisor: spawn dispatcher: %v", err)
		_ = mgr.Set(types.StateError, "dispatcher_spawn_error")
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case sig := <-sigCh:
		logging.Infof("supervisor: received %s, terminating dispatcher", sig)
		terminateGracefully(cmd)
		_ = mgr.Set(types.StateIdle, "signal_"+sig.String())
		_ = scheduler.WriteStatus(statusPath, map[string]any{"supervisor_status": "stopped"})
	case err := <-waitCh:
		if err != nil {
			logging.Errorf("supervisor: dispatcher exited with error: %v", err)
		} else {
			logging.Info("supervisor: dispatcher completed")
		}
		_ = mgr.Set(types.StateIdle, "dispatcher_exited")
		_ = scheduler.WriteStatus(statusPath, map[string]any{"supervisor_status": "idle"})
	}
}
