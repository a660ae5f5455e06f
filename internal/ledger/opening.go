package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tbotcore/internal/coa"
	"tbotcore/internal/types"
)

// BrokerPosition is one position row of a broker account snapshot, used
// only by the opening-balance bootstrap.
type BrokerPosition struct {
	Symbol      string
	Quantity    decimal.Decimal
	HasQuantity bool
	Basis       decimal.Decimal
	HasBasis    bool
	MarketValue decimal.Decimal
	HasMarket   bool
}

// BrokerSnapshot is the minimal account snapshot needed to seed an empty
// ledger, grounded on ledger_opening_balance.py's broker_snapshot dict.
type BrokerSnapshot struct {
	AsOfUTC   time.Time
	Cash      decimal.Decimal
	HasCash   bool
	Positions []BrokerPosition
}

func metaGet(ctx context.Context, tx *sql.Tx, key string) (string, bool, error) {
	var v string
	err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func metaSet(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// PostOpeningBalancesIfNeeded detects an empty, not-yet-seeded ledger and
// posts one balanced batch of opening legs (cash + per-symbol positions)
// against COA accounts resolved by name path, grounded on
// ledger_opening_balance.py's post_opening_balances_if_needed. Returns true
// only when it actually posted in this call.
func (p *Poster) PostOpeningBalancesIfNeeded(ctx context.Context, coaAccounts []coa.FlatAccount, syncRunID string, snapshot BrokerSnapshot) (bool, error) {
	asOf := snapshot.AsOfUTC
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	groupID := fmt.Sprintf("OPENING_BALANCE_%s", asOf.Format("20060102"))

	cashCode, _ := coa.FindCodeByNamePath(coaAccounts, "Assets:Brokerage:Cash")
	eqOpeningCode, _ := coa.FindCodeByNamePath(coaAccounts, "Equity:OpeningBalances")

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("ledger: opening balances begin tx: %w", err)
	}
	defer tx.Rollback()

	posted, _, err := metaGet(ctx, tx, "opening_balances_posted")
	if err != nil {
		return false, err
	}
	if posted == "true" {
		return false, nil
	}

	var rowCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&rowCount); err != nil {
		return false, fmt.Errorf("ledger: opening balances count trades: %w", err)
	}
	if rowCount > 0 {
		if err := metaSet(ctx, tx, "opening_balances_posted", "true"); err != nil {
			return false, err
		}
		return false, tx.Commit()
	}

	groupCols, err := tableColumns(ctx, p.DB, "trade_groups")
	if err == nil && len(groupCols) > 0 {
		if err := insertTradeGroup(ctx, tx, groupCols, groupID, asOf, syncRunID); err != nil {
			return false, err
		}
	}

	var legs []legRow
	if snapshot.HasCash && !snapshot.Cash.IsZero() {
		if cashCode == "" || eqOpeningCode == "" {
			return false, fmt.Errorf("ledger: opening balance requires Assets:Brokerage:Cash and Equity:OpeningBalances accounts")
		}
		cashAmt := snapshot.Cash.Round(2)
		legs = append(legs,
			legRow{groupID: groupID, ts: asOf, account: cashCode, totalValue: cashAmt, action: "ob_post", strategy: "open", tags: "opening_balance,cash", notes: "Opening cash", syncRunID: syncRunID},
			legRow{groupID: groupID, ts: asOf, account: eqOpeningCode, totalValue: cashAmt.Neg(), action: "ob_post", strategy: "open", tags: "opening_balance,equity", notes: "Opening equity offset (cash)", syncRunID: syncRunID},
		)
	}

	for _, pos := range snapshot.Positions {
		symbol := pos.Symbol
		var value decimal.Decimal
		usedMarket := false
		switch {
		case pos.HasBasis:
			value = pos.Basis
		case pos.HasMarket:
			value = pos.MarketValue
			usedMarket = true
		default:
			continue
		}
		if value.IsZero() {
			continue
		}

		symbolEquityCode, ok := coa.FindCodeByNamePath(coaAccounts, fmt.Sprintf("Assets:Brokerage:Equity:%s", symbol))
		if !ok || symbolEquityCode == "" {
			symbolEquityCode, _ = coa.FindCodeByNamePath(coaAccounts, "Assets:Brokerage:Equity")
		}
		if symbolEquityCode == "" || eqOpeningCode == "" {
			return false, fmt.Errorf("ledger: opening balance requires COA accounts for position %s", symbol)
		}

		noteSuffix := " (@ basis)"
		if usedMarket {
			noteSuffix = " (est @ MV)"
		}
		amt := value.Round(2)
		var qty decimal.Decimal
		hasQty := pos.HasQuantity
		if hasQty {
			qty = pos.Quantity
		}
		legs = append(legs,
			legRow{groupID: groupID, ts: asOf, account: symbolEquityCode, symbol: symbol, qty: qty, hasQty: hasQty, totalValue: amt, action: "ob_post", strategy: "open", tags: fmt.Sprintf("opening_balance,position,%s", symbol), notes: "Opening position " + symbol + noteSuffix, syncRunID: syncRunID},
			legRow{groupID: groupID, ts: asOf, account: eqOpeningCode, symbol: symbol, totalValue: amt.Neg(), action: "ob_post", strategy: "open", tags: "opening_balance,equity", notes: "Opening equity offset (" + symbol + ")", syncRunID: syncRunID},
		)
	}

	total := decimal.Zero
	for _, l := range legs {
		total = total.Add(l.totalValue)
	}
	if !total.Round(2).IsZero() {
		return false, fmt.Errorf("ledger: opening balance legs not balanced (sum=%s)", total.String())
	}

	cols, err := tableColumns(ctx, p.DB, "trades")
	if err != nil {
		return false, err
	}
	for _, l := range legs {
		if err := insertOpeningLeg(ctx, tx, cols, l, p.Identity); err != nil {
			return false, err
		}
	}

	if err := metaSet(ctx, tx, "opening_balances_posted", "true"); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("ledger: opening balances commit: %w", err)
	}

	return true, p.Audit.Append("opening_balance_posted", nil, "system", nil, map[string]any{
		"legs_count": len(legs), "positions_count": len(snapshot.Positions),
	}, "", syncRunID, groupID, "", nil)
}

type legRow struct {
	groupID    string
	ts         time.Time
	account    string
	symbol     string
	qty        decimal.Decimal
	hasQty     bool
	totalValue decimal.Decimal
	action     string
	strategy   string
	tags       string
	notes      string
	syncRunID  string
}

func insertTradeGroup(ctx context.Context, tx *sql.Tx, cols []string, groupID string, asOf time.Time, syncRunID string) error {
	values := map[string]any{
		"group_id": groupID, "datetime_utc": asOf.Format(time.RFC3339Nano),
		"type": "OPENING_BALANCE", "status": "posted", "sync_run_id": syncRunID,
		"notes": "Auto-posted opening balances",
	}
	return insertIntersecting(ctx, tx, "trade_groups", cols, values)
}

func insertOpeningLeg(ctx context.Context, tx *sql.Tx, cols []string, l legRow, identity types.IdentityTags) error {
	values := map[string]any{
		"group_id": l.groupID, "datetime_utc": l.ts.Format(time.RFC3339Nano),
		"account": l.account, "total_value": l.totalValue.String(),
		"action": l.action, "strategy": l.strategy, "tags": l.tags, "notes": l.notes,
		"status": "ok", "side": string(sideFor(l.totalValue)),
		"entity_code": identity.EntityCode, "jurisdiction_code": identity.JurisdictionCode,
		"broker_code": identity.BrokerCode, "bot_id": identity.BotID,
		"approval_status": "approved",
		"created_at":      time.Now().UTC().Format(time.RFC3339Nano),
		"updated_at":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if l.symbol != "" {
		values["symbol"] = l.symbol
	}
	if l.hasQty {
		values["quantity"] = l.qty.String()
	}
	return insertIntersecting(ctx, tx, "trades", cols, values)
}

func insertIntersecting(ctx context.Context, tx *sql.Tx, table string, cols []string, values map[string]any) error {
	colSet := map[string]bool{}
	for _, c := range cols {
		colSet[c] = true
	}
	var insertCols []string
	var args []any
	for k, v := range values {
		if colSet[k] {
			insertCols = append(insertCols, k)
			args = append(args, v)
		}
	}
	if len(insertCols) == 0 {
		return nil
	}
	placeholders := make([]string, len(insertCols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinCols(insertCols), joinCols(placeholders))
	_, err := tx.ExecContext(ctx, stmt, args...)
	return err
}
