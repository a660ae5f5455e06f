package scheduler

import (
	"fmt"
	"path/filepath"
	"time"

	"tbotcore/internal/atomicio"
	"tbotcore/internal/identity"
)

// AppendDispatcherLog appends one line to logs/schedule_dispatcher.log,
// mirroring schedule_dispatcher.py's _log.
func AppendDispatcherLog(r *identity.Resolver, msg string) error {
	dir, err := r.LogsDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "schedule_dispatcher.log")
	ts := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	return atomicio.AppendLine(path, fmt.Sprintf("%s [dispatcher] %s", ts, msg))
}

// PhaseLogPath returns the per-phase subprocess output log path.
func PhaseLogPath(r *identity.Resolver, phase string) (string, error) {
	dir, err := r.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, phase+".log"), nil
}
