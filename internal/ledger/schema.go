// Package ledger implements the Ledger Engine (C6): double-entry posting
// primitives, compliance filtering, deduplication, balance queries,
// opening-balance bootstrap, and the audit trail, grounded on
// accounting/ledger_modules/*.py.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id TEXT,
	group_id TEXT,
	datetime_utc TEXT NOT NULL,
	symbol TEXT,
	action TEXT,
	side TEXT NOT NULL CHECK(side IN ('debit','credit')),
	quantity TEXT,
	price TEXT,
	total_value TEXT NOT NULL,
	amount TEXT,
	fee TEXT,
	commission TEXT,
	account TEXT NOT NULL,
	strategy TEXT,
	tags TEXT,
	notes TEXT,
	entity_code TEXT,
	jurisdiction_code TEXT,
	broker_code TEXT,
	bot_id TEXT,
	fitid TEXT,
	status TEXT,
	raw_broker_json TEXT,
	json_metadata TEXT,
	approval_status TEXT DEFAULT 'approved',
	created_by TEXT,
	updated_by TEXT,
	created_at TEXT,
	updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_trades_group_id ON trades(group_id);
CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account);
CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_tradeid_side ON trades(trade_id, side) WHERE trade_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS trade_groups (
	group_id TEXT PRIMARY KEY,
	datetime_utc TEXT,
	type TEXT,
	status TEXT,
	sync_run_id TEXT,
	notes TEXT
);

CREATE TABLE IF NOT EXISTS trade_group_collapsed (
	group_id TEXT PRIMARY KEY,
	collapsed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

// EnsureSchema idempotently creates the ledger tables and sets the shared
// concurrency pragmas; callers also run lots.Engine.EnsureSchema against
// the same *sql.DB for the lots/lot_closures tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("ledger: pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ledger: ensure schema: %w", err)
	}
	return nil
}

// tableColumns inspects a table's live column set via PRAGMA table_info,
// the dynamic-column approach Design Notes require in place of a fixed
// ORM mapping.
func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("ledger: table_info(%s): %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("ledger: scan table_info: %w", err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}
