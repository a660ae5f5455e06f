package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tbotcore/internal/types"
)

// AccountBalance is one account's window-scoped balance computation,
// grounded on ledger_balance.py's calculate_account_balances.
type AccountBalance struct {
	OpeningBalance decimal.Decimal
	Debits         decimal.Decimal
	Credits        decimal.Decimal
	ClosingBalance decimal.Decimal
}

// tsCandidates are the timestamp columns a trades table may carry, in
// COALESCE priority order; only those present in the live table are used.
var tsCandidates = []string{"timestamp_utc", "datetime_utc", "created_at_utc", "DTPOSTED", "posted_at_utc"}

// CalculateAccountBalances computes opening/window/closing balances per
// account. windowStart defaults to UTC midnight of asOf's date. Amounts
// are quantized to 1e-4 per types.BalanceExp.
func CalculateAccountBalances(ctx context.Context, db *sql.DB, asOf time.Time, windowStart *time.Time) (map[string]*AccountBalance, error) {
	cols, err := tableColumns(ctx, db, "trades")
	if err != nil {
		return nil, err
	}
	tsCols := []string{}
	for _, c := range tsCandidates {
		if slices.Contains(cols, c) {
			tsCols = append(tsCols, c)
		}
	}
	tsColumn := "COALESCE(" + strings.Join(append(tsCols, "NULL"), ", ") + ")"

	asOf = asOf.UTC()
	start := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	if windowStart != nil {
		start = windowStart.UTC()
	}
	asOfStr := asOf.Format(time.RFC3339Nano)
	startStr := start.Format(time.RFC3339Nano)

	out := map[string]*AccountBalance{}
	get := func(acct string) *AccountBalance {
		if b, ok := out[acct]; ok {
			return b
		}
		b := &AccountBalance{OpeningBalance: decimal.Zero, Debits: decimal.Zero, Credits: decimal.Zero, ClosingBalance: decimal.Zero}
		out[acct] = b
		return b
	}

	openRows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT account, SUM(CAST(total_value AS REAL)) FROM trades WHERE %s < ? GROUP BY account`, tsColumn), startStr)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening balance query: %w", err)
	}
	if err := scanBalanceRows(openRows, func(acct string, amt float64) {
		get(acct).OpeningBalance = types.SanitizeBalance(decimal.NewFromFloat(amt))
	}); err != nil {
		return nil, err
	}

	winRows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT account,
			SUM(CASE WHEN (COALESCE(side,'')='debit' OR CAST(total_value AS REAL) > 0) THEN ABS(CAST(total_value AS REAL)) ELSE 0 END),
			SUM(CASE WHEN (COALESCE(side,'')='credit' OR CAST(total_value AS REAL) < 0) THEN ABS(CAST(total_value AS REAL)) ELSE 0 END)
		 FROM trades WHERE %s >= ? AND %s <= ? GROUP BY account`, tsColumn, tsColumn), startStr, asOfStr)
	if err != nil {
		return nil, fmt.Errorf("ledger: window balance query: %w", err)
	}
	defer winRows.Close()
	for winRows.Next() {
		var acct string
		var debits, credits float64
		if err := winRows.Scan(&acct, &debits, &credits); err != nil {
			return nil, fmt.Errorf("ledger: scan window balances: %w", err)
		}
		b := get(acct)
		b.Debits = types.SanitizeBalance(decimal.NewFromFloat(debits))
		b.Credits = types.SanitizeBalance(decimal.NewFromFloat(credits))
	}
	if err := winRows.Err(); err != nil {
		return nil, err
	}

	closeRows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT account, SUM(CAST(total_value AS REAL)) FROM trades WHERE %s <= ? GROUP BY account`, tsColumn), asOfStr)
	if err != nil {
		return nil, fmt.Errorf("ledger: closing balance query: %w", err)
	}
	closingSeen := map[string]bool{}
	if err := scanBalanceRows(closeRows, func(acct string, amt float64) {
		get(acct).ClosingBalance = types.SanitizeBalance(decimal.NewFromFloat(amt))
		closingSeen[acct] = true
	}); err != nil {
		return nil, err
	}

	for acct, b := range out {
		if !closingSeen[acct] {
			b.ClosingBalance = types.SanitizeBalance(b.OpeningBalance.Add(b.Debits).Sub(b.Credits))
		}
	}
	return out, nil
}

func scanBalanceRows(rows *sql.Rows, fn func(account string, amount float64)) error {
	defer rows.Close()
	for rows.Next() {
		var acct string
		var amt sql.NullFloat64
		if err := rows.Scan(&acct, &amt); err != nil {
			return fmt.Errorf("ledger: scan balance row: %w", err)
		}
		fn(acct, amt.Float64)
	}
	return rows.Err()
}
