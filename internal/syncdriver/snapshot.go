package syncdriver

import (
	"fmt"
	"io"
	"os"
	"time"
)

// SnapshotLedgerDB copies the ledger DB file to a timestamped sibling
// before any mutation, per §4.7 step 1. The copy is a plain byte copy
// (not a SQLite backup API call) since WAL checkpointing happens on the
// live connection, matching the original's file-level snapshot.
func SnapshotLedgerDB(dbPath string, now time.Time) (string, error) {
	src, err := os.Open(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("syncdriver: open ledger db for snapshot: %w", err)
	}
	defer src.Close()

	ts := now.UTC().Format("20060102T150405Z")
	dst := fmt.Sprintf("%s.snapshot.%s", dbPath, ts)
	tmp := dst + ".tmp"

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("syncdriver: create snapshot temp file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("syncdriver: copy ledger db: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("syncdriver: fsync snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("syncdriver: rename snapshot into place: %w", err)
	}
	return dst, nil
}
