package syncdriver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotLedgerDBMissingSourceIsNoop(t *testing.T) {
	path, err := SnapshotLedgerDB(filepath.Join(t.TempDir(), "missing.db"), time.Now())
	require.NoError(t, err)
	require.Empty(t, path)
}

func TestSnapshotLedgerDBCopiesBytesAndLeavesSourceIntact(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite-bytes"), 0o644))

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snapshotPath, err := SnapshotLedgerDB(dbPath, now)
	require.NoError(t, err)
	require.Equal(t, dbPath+".snapshot.20260102T030405Z", snapshotPath)

	got, err := os.ReadFile(snapshotPath)
	require.NoError(t, err)
	require.Equal(t, "sqlite-bytes", string(got))

	src, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	require.Equal(t, "sqlite-bytes", string(src))

	_, err = os.Stat(snapshotPath + ".tmp")
	require.True(t, os.IsNotExist(err))
}
