// Package lifecycle manages the single-file process-wide lifecycle token
// (control/bot_state.txt) plus its companion history log, grounded on
// support/bot_state_manager.py.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"tbotcore/internal/atomicio"
	"tbotcore/internal/identity"
	"tbotcore/internal/types"
)

// idleAllowedReasons mirrors _IDLE_ALLOWED_REASONS: setting "idle" without
// one of these reasons is allowed but logged as a caution by the caller.
var idleAllowedReasons = map[string]bool{
	"stop":                true,
	"kill":                true,
	"stop/kill":           true,
	"operator_stop":       true,
	"operator_kill":       true,
	"shutdown":            true,
	"shutdown_triggered":  true,
	"test:clear":          true,
}

// Manager reads and writes the lifecycle token file for one identity.
type Manager struct {
	resolver *identity.Resolver
}

func NewManager(r *identity.Resolver) *Manager {
	return &Manager{resolver: r}
}

// Get returns the current state, normalized to lowercase; def is returned
// if the file is missing or empty.
func (m *Manager) Get(def types.LifecycleState) (types.LifecycleState, error) {
	path, err := m.resolver.BotStatePath()
	if err != nil {
		return "", err
	}
	raw, err := atomicio.ReadFirstLine(path)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return def, nil
	}
	return types.LifecycleState(strings.ToLower(raw)), nil
}

// IdleAllowed reports whether reason is one of the explicit Stop/Kill/
// Shutdown reasons permitted to set "idle" without a caution log.
func IdleAllowed(reason string) bool {
	return idleAllowedReasons[strings.ToLower(reason)]
}

// Set writes a new lifecycle state atomically and appends a history line.
// Unknown states are rejected. Setting "idle" with a reason outside
// idleAllowedReasons is permitted but the caller is expected to log a
// caution (mirrors set_state's _warn-and-proceed behavior).
func (m *Manager) Set(state types.LifecycleState, reason string) error {
	s := types.LifecycleState(strings.ToLower(string(state)))
	if s == "" {
		return fmt.Errorf("lifecycle: state is empty")
	}
	if !types.ValidLifecycleStates[s] {
		return fmt.Errorf("lifecycle: invalid state %q", state)
	}

	path, err := m.resolver.BotStatePath()
	if err != nil {
		return err
	}
	if err := atomicio.WriteFile(path, []byte(string(s)+"\n"), 0o644); err != nil {
		return err
	}

	histPath, err := m.resolver.HistoryLogPath()
	if err != nil {
		return err
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	line := fmt.Sprintf("%s %s", ts, s)
	if reason != "" {
		line += fmt.Sprintf(" reason=%s", reason)
	}
	return atomicio.AppendLine(histPath, line)
}

// EnsureState reports whether the current state is one of expected.
func (m *Manager) EnsureState(expected ...types.LifecycleState) (bool, types.LifecycleState, error) {
	cur, err := m.Get(types.StateRunning)
	if err != nil {
		return false, "", err
	}
	for _, e := range expected {
		if cur == e {
			return true, cur, nil
		}
	}
	return false, cur, nil
}

// Flags reads/clears the presence-based control flag files.
type Flags struct {
	resolver *identity.Resolver
}

func NewFlags(r *identity.Resolver) *Flags {
	return &Flags{resolver: r}
}

// Check reports whether a flag file exists.
func (f *Flags) Check(flag types.ControlFlag) (bool, error) {
	path, err := f.resolver.ControlFlagPath(flag)
	if err != nil {
		return false, err
	}
	return fileExists(path)
}

// Clear removes a flag file if present; existence is the only signal, so
// handling a flag means deleting it.
func (f *Flags) Clear(flag types.ControlFlag) error {
	path, err := f.resolver.ControlFlagPath(flag)
	if err != nil {
		return err
	}
	if err := removeIfExists(path); err != nil {
		return err
	}
	return nil
}
