package strategyworker

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"tbotcore/internal/types"
)

// OpenPosition summarizes one symbol/side's remaining open inventory as a
// single weighted-average entry price, the shape the trailing-stop helper
// needs per call.
type OpenPosition struct {
	Symbol      string
	Side        types.LotSide
	QtyRemaining decimal.Decimal
	EntryPrice  decimal.Decimal // qty-weighted average unit_cost across open lots
}

// OpenPositions reads every lot with qty_remaining > 0 from the shared
// lots table and collapses it to one weighted-average position per
// (symbol, side), grounded on lots.go's schema.
func OpenPositions(ctx context.Context, db *sql.DB) ([]OpenPosition, error) {
	rows, err := db.QueryContext(ctx, `SELECT symbol, side, qty_remaining, unit_cost FROM lots WHERE qty_remaining != '0'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type agg struct {
		qty  decimal.Decimal
		cost decimal.Decimal // qty-weighted sum of unit_cost*qty
	}
	byKey := map[string]*agg{}
	order := []string{}
	sides := map[string]types.LotSide{}
	symbols := map[string]string{}

	for rows.Next() {
		var symbol, sideStr, qtyStr, costStr string
		if err := rows.Scan(&symbol, &sideStr, &qtyStr, &costStr); err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			return nil, err
		}
		if qty.IsZero() {
			continue
		}
		cost, err := decimal.NewFromString(costStr)
		if err != nil {
			return nil, err
		}
		side := types.LotSide(sideStr)
		key := symbol + "|" + sideStr
		a, ok := byKey[key]
		if !ok {
			a = &agg{qty: decimal.Zero, cost: decimal.Zero}
			byKey[key] = a
			order = append(order, key)
			sides[key] = side
			symbols[key] = symbol
		}
		a.qty = a.qty.Add(qty)
		a.cost = a.cost.Add(cost.Mul(qty))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]OpenPosition, 0, len(order))
	for _, key := range order {
		a := byKey[key]
		entry := decimal.Zero
		if !a.qty.IsZero() {
			entry = a.cost.Div(a.qty)
		}
		out = append(out, OpenPosition{
			Symbol:       symbols[key],
			Side:         sides[key],
			QtyRemaining: a.qty,
			EntryPrice:   entry,
		})
	}
	return out, nil
}
