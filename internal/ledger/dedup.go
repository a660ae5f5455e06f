package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"tbotcore/internal/types"
)

// TradeExists checks on-disk (trade_id, side) uniqueness, grounded on
// ledger_deduplication.py's trade_exists.
func TradeExists(ctx context.Context, db *sql.DB, tradeID string, side types.Side) (bool, error) {
	if tradeID == "" {
		return false, nil
	}
	var one int
	var err error
	if side != "" {
		err = db.QueryRowContext(ctx, `SELECT 1 FROM trades WHERE trade_id = ? AND side = ? LIMIT 1`, tradeID, string(side)).Scan(&one)
	} else {
		err = db.QueryRowContext(ctx, `SELECT 1 FROM trades WHERE trade_id = ? LIMIT 1`, tradeID).Scan(&one)
	}
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: trade_exists: %w", err)
	}
	return true, nil
}

// NormalizedInput is the minimal shape DeduplicateEntries needs: a
// trade/group identifier pair from a normalized broker record.
type NormalizedInput struct {
	TradeID string
	GroupID string
}

// DeduplicateEntries is the in-memory, pre-posting dedup pass: keeps the
// first occurrence of each trade_id, defaults group_id to trade_id when
// absent, and passes through any entry with no trade_id untouched (left
// for compliance/mapping to decide), grounded on
// ledger_deduplication.py's deduplicate_entries.
func DeduplicateEntries[T any](entries []T, key func(T) NormalizedInput, setGroupID func(T, string) T) []T {
	seen := map[string]bool{}
	result := make([]T, 0, len(entries))
	for _, e := range entries {
		k := key(e)
		if k.TradeID == "" {
			result = append(result, e)
			continue
		}
		if seen[k.TradeID] {
			continue
		}
		seen[k.TradeID] = true
		if k.GroupID == "" {
			e = setGroupID(e, k.TradeID)
		}
		result = append(result, e)
	}
	return result
}
