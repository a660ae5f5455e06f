// Package identity resolves on-disk locations deterministically from an
// Identity4, grounded on support/path_resolver.py's CATEGORIES/
// get_output_path/resolve_*_path functions.
package identity

import (
	"os"
	"path/filepath"

	"tbotcore/internal/types"
)

// Resolver derives every category directory and file path for one
// Identity4 rooted at RootDir.
type Resolver struct {
	RootDir  string
	Identity types.Identity4
}

// New validates id and returns a Resolver rooted at root.
func New(root string, id types.Identity4) (*Resolver, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{RootDir: root, Identity: id}, nil
}

// outputDir is <root>/output/<identity-string>, mirroring
// resolve_output_folder_path.
func (r *Resolver) outputDir() string {
	return filepath.Join(r.RootDir, "output", r.Identity.String())
}

// categoryDir returns <outputDir>/<category>, creating it if needed —
// matching get_output_path's mkdir-on-access behavior.
func (r *Resolver) categoryDir(category string) (string, error) {
	dir := filepath.Join(r.outputDir(), category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (r *Resolver) LogsDir() (string, error)      { return r.categoryDir("logs") }
func (r *Resolver) LedgersDir() (string, error)   { return r.categoryDir("ledgers") }
func (r *Resolver) SummariesDir() (string, error) { return r.categoryDir("summaries") }
func (r *Resolver) TradesDir() (string, error)    { return r.categoryDir("trades") }
func (r *Resolver) ScreenersDir() (string, error) { return r.categoryDir("screeners") }

// ControlDir holds the presence-based control flag files and the
// lifecycle token file; it lives outside the per-category output tree,
// matching get_bot_state_path's separate "control" root.
func (r *Resolver) ControlDir() (string, error) {
	dir := filepath.Join(r.RootDir, "control")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// BotStatePath is the single lifecycle token file.
func (r *Resolver) BotStatePath() (string, error) {
	dir, err := r.ControlDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bot_state.txt"), nil
}

// ControlFlagPath returns the path for a presence-based control flag.
func (r *Resolver) ControlFlagPath(flag types.ControlFlag) (string, error) {
	dir, err := r.ControlDir()
	if err != nil {
		return "", err
	}
	name := string(flag)
	if name == string(types.ControlTestMode) {
		return filepath.Join(dir, "test_mode.flag"), nil
	}
	return filepath.Join(dir, name+".txt"), nil
}

// LedgerDBPath returns the SQLite ledger database file path.
func (r *Resolver) LedgerDBPath() (string, error) {
	dir, err := r.LedgersDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, r.Identity.String()+"_BOT_ledger.db"), nil
}

// CoaDir holds the COA account tree, metadata, and mapping table files.
func (r *Resolver) CoaDir() (string, error) {
	dir := filepath.Join(r.outputDir(), "accounting")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (r *Resolver) CoaJSONPath() (string, error) {
	dir, err := r.CoaDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "coa.json"), nil
}

func (r *Resolver) CoaMetadataPath() (string, error) {
	dir, err := r.CoaDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "coa_metadata.json"), nil
}

func (r *Resolver) CoaAuditLogPath() (string, error) {
	dir, err := r.CoaDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "coa_audit.log"), nil
}

// MappingLivePath is the live coa_mapping_table.json file.
func (r *Resolver) MappingLivePath() (string, error) {
	dir, err := r.CoaDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "coa_mapping_table.json"), nil
}

// MappingVersionsDir holds one snapshot file per version_id.
func (r *Resolver) MappingVersionsDir() (string, error) {
	dir, err := r.CoaDir()
	if err != nil {
		return "", err
	}
	versions := filepath.Join(dir, "versions")
	if err := os.MkdirAll(versions, 0o755); err != nil {
		return "", err
	}
	return versions, nil
}

// MappingAuditPath is the mapping table's own JSONL audit trail.
func (r *Resolver) MappingAuditPath() (string, error) {
	dir, err := r.CoaDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "coa_mapping_audit.jsonl"), nil
}

// LedgerAuditPath is the immutable double-entry posting audit trail.
func (r *Resolver) LedgerAuditPath() (string, error) {
	dbPath, err := r.LedgerDBPath()
	if err != nil {
		return "", err
	}
	auditDir := filepath.Join(filepath.Dir(dbPath), "audit")
	if err := os.MkdirAll(auditDir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(auditDir, "ledger_audit.jsonl"), nil
}

// SchedulePath is today's computed phase schedule.
func (r *Resolver) SchedulePath() (string, error) {
	dir, err := r.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "schedule.json"), nil
}

// StatusPath is the UI-facing status document.
func (r *Resolver) StatusPath() (string, error) {
	dir, err := r.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "status.json"), nil
}

// HistoryLogPath is the lifecycle token file's companion append log.
func (r *Resolver) HistoryLogPath() (string, error) {
	dir, err := r.LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bot_state_history.log"), nil
}

// HolidaysPath is the per-identity non-trading-day list, kept under the
// identity's own output tree (<root>/output/<identity>/control).
func (r *Resolver) HolidaysPath() (string, error) {
	dir, err := r.categoryDir("control")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "holidays.txt"), nil
}

// StampFilePath returns the idempotency stamp path for a named phase,
// e.g. "last_strategy_open_utc.txt".
func (r *Resolver) StampFilePath(name string) (string, error) {
	dir, err := r.ControlDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".txt"), nil
}

// DispatcherLockPath returns the per-day lock file preventing duplicate
// dispatch for a given trading date (YYYY-MM-DD).
func (r *Resolver) DispatcherLockPath(tradingDate string) (string, error) {
	dir, err := r.ControlDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "dispatcher_"+tradingDate+".lock"), nil
}
