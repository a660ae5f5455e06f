// Package lots implements the Lots Engine (C5): FIFO/LIFO lot opening,
// allocation, and closing with pro-rata fee/proceeds apportionment and
// side-branched realized P&L, grounded on accounting/lots_engine.py.
package lots

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tbotcore/internal/errs"
	"tbotcore/internal/types"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS lots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL CHECK(side IN ('long','short')),
	qty_open TEXT NOT NULL,
	qty_remaining TEXT NOT NULL,
	unit_cost TEXT NOT NULL,
	fees_alloc TEXT NOT NULL DEFAULT '0',
	opened_trade_id TEXT,
	opened_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lots_symbol_side_remaining ON lots(symbol, side, qty_remaining);

CREATE TABLE IF NOT EXISTS lot_closures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	lot_id INTEGER NOT NULL,
	close_trade_id TEXT,
	close_qty TEXT NOT NULL,
	basis_amount TEXT NOT NULL,
	proceeds_amount TEXT NOT NULL,
	fees_alloc TEXT NOT NULL DEFAULT '0',
	realized_pnl TEXT NOT NULL,
	closed_at TEXT NOT NULL,
	FOREIGN KEY(lot_id) REFERENCES lots(id)
);
CREATE INDEX IF NOT EXISTS idx_lot_closures_lot_id ON lot_closures(lot_id);
`

// insufficientTolerance matches the 1e-10 tolerance the original applies
// before raising InsufficientInventory.
var insufficientTolerance = decimal.New(1, -10)

// Engine operates the lots/lot_closures tables over a shared *sql.DB.
type Engine struct {
	DB *sql.DB
}

func New(db *sql.DB) *Engine { return &Engine{DB: db} }

// EnsureSchema idempotently creates the lots/lot_closures tables and sets
// the concurrency pragmas the ledger as a whole relies on.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := e.DB.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("lots: pragma %q: %w", pragma, err)
		}
	}
	if _, err := e.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("lots: ensure schema: %w", err)
	}
	return nil
}

// AuditFunc is injected so internal/lots doesn't depend on internal/ledger
// for audit writes — callers pass a closure that appends an AuditEvent.
type AuditFunc func(event string, groupID string, before, after map[string]any, reason string) error

// RecordOpen inserts a new lot. For side="short", unitCost is the short
// proceeds per share.
func (e *Engine) RecordOpen(ctx context.Context, symbol string, qty, unitCost, fees decimal.Decimal, side types.LotSide, openedTradeID string, openedAt time.Time, actor string, audit AuditFunc) (int64, error) {
	if side != types.LotLong && side != types.LotShort {
		return 0, fmt.Errorf("lots: side must be 'long' or 'short', got %q", side)
	}
	if qty.Sign() <= 0 {
		return 0, fmt.Errorf("lots: qty must be > 0 for a new lot")
	}
	ts := openedAt.UTC()

	res, err := e.DB.ExecContext(ctx,
		`INSERT INTO lots(symbol, side, qty_open, qty_remaining, unit_cost, fees_alloc, opened_trade_id, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		symbol, string(side), qty.String(), qty.String(), unitCost.String(), fees.String(), openedTradeID, ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("lots: insert open: %w", err)
	}
	lotID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("lots: lastrowid: %w", err)
	}

	if audit != nil {
		_ = audit("LOT_OPENED", "", nil, map[string]any{
			"symbol": symbol, "side": string(side), "qty_open": qty.String(),
			"unit_cost": unitCost.String(), "fees_alloc": fees.String(),
		}, "")
	}
	return lotID, nil
}

// AllocateForClose scans open lots of (symbol, side) ordered FIFO or LIFO
// and returns allocations summing to qtyToClose.
func (e *Engine) AllocateForClose(ctx context.Context, symbol string, qtyToClose decimal.Decimal, side types.LotSide, policy string) ([]types.LotAllocation, error) {
	if side != types.LotLong && side != types.LotShort {
		return nil, fmt.Errorf("lots: side must be 'long' or 'short', got %q", side)
	}
	if qtyToClose.Sign() <= 0 {
		return nil, fmt.Errorf("lots: qtyToClose must be > 0")
	}

	order := "ASC"
	if policy == "LIFO" {
		order = "DESC"
	}
	rows, err := e.DB.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, qty_remaining, unit_cost, fees_alloc, opened_at, opened_trade_id
		 FROM lots WHERE symbol = ? AND side = ? AND CAST(qty_remaining AS REAL) > 0
		 ORDER BY opened_at %s, id %s`, order, order),
		symbol, string(side),
	)
	if err != nil {
		return nil, fmt.Errorf("lots: query open lots: %w", err)
	}
	defer rows.Close()

	remaining := qtyToClose
	var allocations []types.LotAllocation
	for rows.Next() {
		if remaining.Sign() <= 0 {
			break
		}
		var id int64
		var qtyRemStr, unitCostStr, feesStr, openedAtStr string
		var openedTradeID sql.NullString
		if err := rows.Scan(&id, &qtyRemStr, &unitCostStr, &feesStr, &openedAtStr, &openedTradeID); err != nil {
			return nil, fmt.Errorf("lots: scan lot: %w", err)
		}
		qtyRem, _ := decimal.NewFromString(qtyRemStr)
		unitCost, _ := decimal.NewFromString(unitCostStr)
		fees, _ := decimal.NewFromString(feesStr)
		openedAt, _ := time.Parse(time.RFC3339Nano, openedAtStr)

		take := decimal.Min(remaining, qtyRem)
		allocations = append(allocations, types.LotAllocation{
			LotID: id, Qty: take, UnitCost: unitCost, FeesAlloc: fees,
			OpenedAt: openedAt, OpenedTradeID: openedTradeID.String,
		})
		remaining = remaining.Sub(take)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lots: iterate lots: %w", err)
	}

	if remaining.GreaterThan(insufficientTolerance) {
		return nil, &errs.InsufficientInventory{
			Symbol: symbol, Side: string(side),
			Requested: qtyToClose.String(), Available: qtyToClose.Sub(remaining).String(),
		}
	}
	return allocations, nil
}

// CloseSummary is the totals returned after a successful RecordClose.
type CloseSummary struct {
	Side             types.LotSide
	QtyClosed        decimal.Decimal
	BasisTotal       decimal.Decimal
	ProceedsTotal    decimal.Decimal
	FeesTotal        decimal.Decimal
	RealizedPnLTotal decimal.Decimal
	ClosedAtUTC      time.Time
}

// RecordClose persists lot closures transactionally: decrements each
// allocated lot's qty_remaining, inserts one lot_closures row per
// allocation with pro-rata fee/proceeds shares, and computes realized P&L
// per the side-branched formula.
func (e *Engine) RecordClose(ctx context.Context, side types.LotSide, allocations []types.LotAllocation, closeTradeID string, proceedsTotal, totalCloseFees decimal.Decimal, closedAt time.Time, pnlFeesAffect bool, actor string, audit AuditFunc) (*CloseSummary, error) {
	if side != types.LotLong && side != types.LotShort {
		return nil, fmt.Errorf("lots: side must be 'long' or 'short', got %q", side)
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("lots: allocations required")
	}
	ts := closedAt.UTC()

	qtyTotal := decimal.Zero
	basisTotal := decimal.Zero
	for _, a := range allocations {
		qtyTotal = qtyTotal.Add(a.Qty)
		basisTotal = basisTotal.Add(a.Qty.Mul(a.UnitCost))
	}

	type rowCalc struct {
		alloc       types.LotAllocation
		basis       decimal.Decimal
		proceeds    decimal.Decimal
		fee         decimal.Decimal
		realized    decimal.Decimal
	}
	rowsCalc := make([]rowCalc, 0, len(allocations))
	realizedTotal := decimal.Zero
	for _, a := range allocations {
		share := decimal.Zero
		if qtyTotal.Sign() != 0 {
			share = a.Qty.Div(qtyTotal)
		}
		feePart := totalCloseFees.Mul(share)
		proceedsPart := proceedsTotal.Mul(share)
		basis := a.Qty.Mul(a.UnitCost)

		var realized decimal.Decimal
		if side == types.LotLong {
			realized = proceedsPart.Sub(basis)
		} else {
			realized = basis.Sub(proceedsPart)
		}
		if pnlFeesAffect {
			realized = realized.Sub(feePart)
		}
		realizedTotal = realizedTotal.Add(realized)
		rowsCalc = append(rowsCalc, rowCalc{alloc: a, basis: basis, proceeds: proceedsPart, fee: feePart, realized: realized})
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lots: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, rc := range rowsCalc {
		var curStr string
		if err := tx.QueryRowContext(ctx, `SELECT qty_remaining FROM lots WHERE id = ?`, rc.alloc.LotID).Scan(&curStr); err != nil {
			return nil, fmt.Errorf("lots: read qty_remaining: %w", err)
		}
		cur, err := decimal.NewFromString(curStr)
		if err != nil {
			return nil, fmt.Errorf("lots: parse qty_remaining: %w", err)
		}
		next := cur.Sub(rc.alloc.Qty)
		if _, err := tx.ExecContext(ctx,
			`UPDATE lots SET qty_remaining = ? WHERE id = ?`,
			next.String(), rc.alloc.LotID,
		); err != nil {
			return nil, fmt.Errorf("lots: update qty_remaining: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lot_closures(lot_id, close_trade_id, close_qty, basis_amount, proceeds_amount, fees_alloc, realized_pnl, closed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rc.alloc.LotID, closeTradeID, rc.alloc.Qty.String(), rc.basis.String(), rc.proceeds.String(), rc.fee.String(), rc.realized.String(), ts.Format(time.RFC3339Nano),
		); err != nil {
			return nil, fmt.Errorf("lots: insert closure: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("lots: commit: %w", err)
	}

	if audit != nil {
		_ = audit("LOT_CLOSED", "", nil, map[string]any{
			"side": string(side), "qty_closed": qtyTotal.String(), "basis_total": basisTotal.String(),
			"proceeds_total": proceedsTotal.String(), "fees_total": totalCloseFees.String(),
			"realized_pnl_total": realizedTotal.String(),
		}, "")
	}

	return &CloseSummary{
		Side: side, QtyClosed: qtyTotal, BasisTotal: basisTotal,
		ProceedsTotal: proceedsTotal, FeesTotal: totalCloseFees,
		RealizedPnLTotal: realizedTotal, ClosedAtUTC: ts,
	}, nil
}
