package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tbotcore/internal/coa"
	"tbotcore/internal/lots"
	"tbotcore/internal/types"
)

// FeesAffectRealizedPnL mirrors ledger_posting.py's FEES_AFFECT_REALIZED_PNL
// module constant: by default fees are expensed separately and do not
// reduce realized P&L.
const FeesAffectRealizedPnL = false

// Meta carries the optional per-call overrides post_buy/post_sell/etc.
// accept via their meta dict in the original.
type Meta struct {
	Actor    string
	GroupID  string
	Strategy string
	Tags     string
}

func (m Meta) actor() string {
	if m.Actor == "" {
		return "system"
	}
	return m.Actor
}

func (m Meta) groupID(fallback string) string {
	if m.GroupID != "" {
		return m.GroupID
	}
	return fallback
}

// Poster wires a ledger DB, lots engine, COA account resolution, and audit
// writer together for the post_* family of operations.
type Poster struct {
	DB       *sql.DB
	Lots     *lots.Engine
	Accounts map[string]string
	Audit    *AuditWriter
	Identity types.IdentityTags
}

func NewPoster(db *sql.DB, lotsEngine *lots.Engine, accounts map[string]string, audit *AuditWriter, identity types.IdentityTags) *Poster {
	return &Poster{DB: db, Lots: lotsEngine, Accounts: accounts, Audit: audit, Identity: identity}
}

// insertLegs inserts all legs of one journal in a single transaction,
// mirroring _insert_legs' dynamic PRAGMA table_info column intersection.
// The journal's trade_id is checked for existence once before the loop,
// refusing to re-post a whole journal that was already written; a debit
// and a credit leg of the same journal legitimately share a trade_id and
// must not be deduped against each other.
func (p *Poster) insertLegs(ctx context.Context, legs []types.TradeLeg) error {
	cols, err := tableColumns(ctx, p.DB, "trades")
	if err != nil {
		return err
	}
	colSet := map[string]bool{}
	for _, c := range cols {
		colSet[c] = true
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback()

	if tradeID := journalTradeID(legs); tradeID != "" {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM trades WHERE trade_id = ? LIMIT 1`, tradeID).Scan(&exists)
		if err == nil {
			return tx.Commit() // journal already posted; refuse re-insert
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("ledger: check existing trade_id: %w", err)
		}
	}

	now := time.Now().UTC()
	for _, leg := range legs {
		values := map[string]any{
			"trade_id": nullableString(leg.TradeID), "group_id": nullableString(leg.GroupID),
			"datetime_utc": leg.DatetimeUTC.Format(time.RFC3339Nano), "symbol": nullableString(leg.Symbol),
			"action": nullableString(leg.Action), "side": string(leg.Side),
			"quantity": decimalOrNil(leg.Quantity), "price": decimalOrNil(leg.Price),
			"total_value": leg.TotalValue.String(), "amount": decimalOrNil(leg.Amount),
			"fee": decimalOrNil(leg.Fee), "commission": decimalOrNil(leg.Commission),
			"account": leg.Account, "strategy": nullableString(leg.Strategy),
			"tags": nullableString(leg.Tags), "notes": nullableString(leg.Notes),
			"entity_code": leg.Identity.EntityCode, "jurisdiction_code": leg.Identity.JurisdictionCode,
			"broker_code": leg.Identity.BrokerCode, "bot_id": leg.Identity.BotID,
			"fitid": nullableString(leg.FITID), "status": nullableString(leg.Status),
			"raw_broker_json": rawJSONOrNil(leg.RawBrokerJSON), "json_metadata": rawJSONOrNil(leg.JSONMetadata),
			"approval_status": "approved", "created_by": p.identityActor(leg), "updated_by": p.identityActor(leg),
			"created_at": now.Format(time.RFC3339Nano), "updated_at": now.Format(time.RFC3339Nano),
		}

		var insertCols []string
		var args []any
		for _, c := range cols {
			if c == "id" {
				continue
			}
			if v, ok := values[c]; ok {
				insertCols = append(insertCols, c)
				args = append(args, v)
			}
		}
		placeholders := make([]string, len(insertCols))
		for i := range placeholders {
			placeholders[i] = "?"
		}
		stmt := fmt.Sprintf("INSERT INTO trades (%s) VALUES (%s)", joinCols(insertCols), joinCols(placeholders))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("ledger: insert leg: %w", err)
		}
	}
	return tx.Commit()
}

func (p *Poster) identityActor(leg types.TradeLeg) string { return "system" }

func journalTradeID(legs []types.TradeLeg) string {
	for _, l := range legs {
		if l.TradeID != "" {
			return l.TradeID
		}
	}
	return ""
}

func joinCols(cols []string) string {
	s := ""
	for i, c := range cols {
		if i > 0 {
			s += ", "
		}
		s += c
	}
	return s
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decimalOrNil(d decimal.Decimal) any {
	return d.String()
}

func rawJSONOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func leg(ts time.Time, symbol, action string, side types.Side, totalValue decimal.Decimal, groupID, tradeID, strategy, tags, notes string, identity types.IdentityTags) types.TradeLeg {
	return types.TradeLeg{
		DatetimeUTC: ts, Symbol: symbol, Action: action, Side: side,
		TotalValue: totalValue, Amount: totalValue.Abs(),
		GroupID: groupID, TradeID: tradeID, Strategy: strategy, Tags: tags, Notes: notes,
		Identity: identity,
	}
}

// sideFor returns debit for a positive total_value and credit for
// negative, the sign convention every post_* primitive follows.
func sideFor(totalValue decimal.Decimal) types.Side {
	if totalValue.Sign() >= 0 {
		return types.SideDebit
	}
	return types.SideCredit
}

func feeLegs(ts time.Time, symbol string, fee decimal.Decimal, cashAccount, feesAccount, groupID, tradeID, strategy, tags string, identity types.IdentityTags) []types.TradeLeg {
	if fee.IsZero() {
		return nil
	}
	feeAmt := types.SanitizeMoney(fee)
	return []types.TradeLeg{
		withSide(leg(ts, symbol, "FEE_EXPENSE", "", feeAmt, groupID, tradeID, strategy, tags, "Brokerage fee (debit)", identity), feesAccount),
		withSide(leg(ts, symbol, "FEE_CASH", "", feeAmt.Neg(), groupID, tradeID, strategy, tags, "Brokerage fee cash (credit)", identity), cashAccount),
	}
}

func withSide(l types.TradeLeg, account string) types.TradeLeg {
	l.Side = sideFor(l.TotalValue)
	l.Account = account
	return l
}

func withQtyPrice(l types.TradeLeg, qty, price decimal.Decimal) types.TradeLeg {
	l.Quantity = qty
	l.Price = price
	return l
}

// PostBuy opens a long lot and writes the BUY_EQUITY/BUY_CASH (+ optional
// fee) legs, grounded on ledger_posting.py's post_buy.
func (p *Poster) PostBuy(ctx context.Context, symbol string, qty, price, fee decimal.Decimal, tradeID string, ts time.Time, meta Meta) error {
	groupID := meta.groupID(tradeID)
	amt := types.SanitizeMoney(qty.Mul(price))

	if _, err := p.Lots.RecordOpen(ctx, symbol, qty, price, decimal.Zero, types.LotLong, tradeID, ts, meta.actor(), p.Audit.ToLotsAuditFunc(meta.actor(), groupID)); err != nil {
		return fmt.Errorf("ledger: post_buy open lot: %w", err)
	}

	legs := []types.TradeLeg{
		withQtyPrice(withSide(leg(ts, symbol, "BUY_EQUITY", "", amt, groupID, tradeID, meta.Strategy, meta.Tags, "BUY equity (debit)", p.Identity), coa.EquityAccount(p.Accounts, symbol)), qty, price),
		withSide(leg(ts, symbol, "BUY_CASH", "", amt.Neg(), groupID, tradeID, meta.Strategy, meta.Tags, "BUY cash (credit)", p.Identity), p.Accounts["cash"]),
	}
	legs = append(legs, feeLegs(ts, symbol, fee, p.Accounts["cash"], p.Accounts["fees"], groupID, tradeID, meta.Strategy, meta.Tags, p.Identity)...)

	if err := p.insertLegs(ctx, legs); err != nil {
		return err
	}
	return p.Audit.Append("TRADE_POSTED_LONG_BUY", nil, meta.actor(), nil, map[string]any{"qty": qty.String(), "price": price.String(), "fee": fee.String()}, "post_buy", "", groupID, "", nil)
}

// PostSell closes a long position FIFO and writes SELL_CASH/SELL_BASIS
// (+ REALIZED_PNL if nonzero, + optional fee), grounded on post_sell.
func (p *Poster) PostSell(ctx context.Context, symbol string, qty, price, fee decimal.Decimal, tradeID string, ts time.Time, meta Meta) (realized decimal.Decimal, err error) {
	groupID := meta.groupID(tradeID)
	proceeds := types.SanitizeMoney(qty.Mul(price))

	allocations, err := p.Lots.AllocateForClose(ctx, symbol, qty, types.LotLong, "FIFO")
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: post_sell allocate: %w", err)
	}
	summary, err := p.Lots.RecordClose(ctx, types.LotLong, allocations, tradeID, proceeds, fee, ts, FeesAffectRealizedPnL, meta.actor(), p.Audit.ToLotsAuditFunc(meta.actor(), groupID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: post_sell close: %w", err)
	}

	basis := types.SanitizeMoney(summary.BasisTotal)
	realized = types.SanitizeMoney(summary.RealizedPnLTotal)

	legs := []types.TradeLeg{
		withSide(leg(ts, symbol, "SELL_CASH", "", proceeds, groupID, tradeID, meta.Strategy, meta.Tags, "SELL proceeds (debit cash)", p.Identity), p.Accounts["cash"]),
		withQtyPrice(withSide(leg(ts, symbol, "SELL_BASIS", "", basis.Neg(), groupID, tradeID, meta.Strategy, meta.Tags, "SELL remove basis (credit equity)", p.Identity), coa.EquityAccount(p.Accounts, symbol)), qty, price),
	}
	if !realized.IsZero() {
		var pnlValue decimal.Decimal
		if realized.Sign() > 0 {
			pnlValue = realized.Neg() // gain -> credit
		} else {
			pnlValue = realized.Abs() // loss -> debit
		}
		legs = append(legs, withSide(leg(ts, symbol, "REALIZED_PNL", "", pnlValue, groupID, tradeID, meta.Strategy, meta.Tags, "Realized P&L on SELL", p.Identity), p.Accounts["realized_pnl"]))
	}
	legs = append(legs, feeLegs(ts, symbol, fee, p.Accounts["cash"], p.Accounts["fees"], groupID, tradeID, meta.Strategy, meta.Tags, p.Identity)...)

	if err := p.insertLegs(ctx, legs); err != nil {
		return decimal.Zero, err
	}
	if err := p.Audit.Append("TRADE_POSTED_LONG_SELL", nil, meta.actor(), nil, map[string]any{"qty": qty.String(), "price": price.String(), "fee": fee.String(), "pnl": realized.String()}, "post_sell", "", groupID, "", nil); err != nil {
		return realized, err
	}
	return realized, nil
}

// PostShortOpen opens a short lot and writes SHORT_OPEN_CASH/
// SHORT_OPEN_LIAB (+ optional fee), grounded on post_short_open.
func (p *Poster) PostShortOpen(ctx context.Context, symbol string, qty, price, fee decimal.Decimal, tradeID string, ts time.Time, meta Meta) error {
	groupID := meta.groupID(tradeID)
	proceeds := types.SanitizeMoney(qty.Mul(price))

	if _, err := p.Lots.RecordOpen(ctx, symbol, qty, price, decimal.Zero, types.LotShort, tradeID, ts, meta.actor(), p.Audit.ToLotsAuditFunc(meta.actor(), groupID)); err != nil {
		return fmt.Errorf("ledger: post_short_open open lot: %w", err)
	}

	legs := []types.TradeLeg{
		withSide(leg(ts, symbol, "SHORT_OPEN_CASH", "", proceeds, groupID, tradeID, meta.Strategy, meta.Tags, "SHORT open: receive proceeds (debit cash)", p.Identity), p.Accounts["cash"]),
		withQtyPrice(withSide(leg(ts, symbol, "SHORT_OPEN_LIAB", "", proceeds.Neg(), groupID, tradeID, meta.Strategy, meta.Tags, "SHORT open: liability (credit)", p.Identity), coa.ShortAccount(p.Accounts, symbol)), qty, price),
	}
	legs = append(legs, feeLegs(ts, symbol, fee, p.Accounts["cash"], p.Accounts["fees"], groupID, tradeID, meta.Strategy, meta.Tags, p.Identity)...)

	if err := p.insertLegs(ctx, legs); err != nil {
		return err
	}
	return p.Audit.Append("TRADE_POSTED_SHORT_OPEN", nil, meta.actor(), nil, map[string]any{"qty": qty.String(), "price": price.String(), "fee": fee.String()}, "post_short_open", "", groupID, "", nil)
}

// PostShortCover closes a short position FIFO and writes
// SHORT_COVER_LIAB/SHORT_COVER_CASH (+ REALIZED_PNL_SHORT if nonzero,
// + optional fee), grounded on post_short_cover.
func (p *Poster) PostShortCover(ctx context.Context, symbol string, qty, price, fee decimal.Decimal, tradeID string, ts time.Time, meta Meta) (realized decimal.Decimal, err error) {
	groupID := meta.groupID(tradeID)
	coverCost := types.SanitizeMoney(qty.Mul(price))

	allocations, err := p.Lots.AllocateForClose(ctx, symbol, qty, types.LotShort, "FIFO")
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: post_short_cover allocate: %w", err)
	}
	summary, err := p.Lots.RecordClose(ctx, types.LotShort, allocations, tradeID, coverCost, fee, ts, FeesAffectRealizedPnL, meta.actor(), p.Audit.ToLotsAuditFunc(meta.actor(), groupID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: post_short_cover close: %w", err)
	}

	basis := types.SanitizeMoney(summary.BasisTotal)
	realized = types.SanitizeMoney(summary.RealizedPnLTotal)

	legs := []types.TradeLeg{
		withQtyPrice(withSide(leg(ts, symbol, "SHORT_COVER_LIAB", "", basis, groupID, tradeID, meta.Strategy, meta.Tags, "SHORT cover: remove liability (debit)", p.Identity), coa.ShortAccount(p.Accounts, symbol)), qty, price),
		withSide(leg(ts, symbol, "SHORT_COVER_CASH", "", coverCost.Neg(), groupID, tradeID, meta.Strategy, meta.Tags, "SHORT cover: pay cash (credit)", p.Identity), p.Accounts["cash"]),
	}
	if !realized.IsZero() {
		var pnlValue decimal.Decimal
		if realized.Sign() > 0 {
			pnlValue = realized.Neg()
		} else {
			pnlValue = realized.Abs()
		}
		legs = append(legs, withSide(leg(ts, symbol, "REALIZED_PNL_SHORT", "", pnlValue, groupID, tradeID, meta.Strategy, meta.Tags, "Realized P&L on SHORT cover", p.Identity), p.Accounts["realized_pnl"]))
	}
	legs = append(legs, feeLegs(ts, symbol, fee, p.Accounts["cash"], p.Accounts["fees"], groupID, tradeID, meta.Strategy, meta.Tags, p.Identity)...)

	if err := p.insertLegs(ctx, legs); err != nil {
		return decimal.Zero, err
	}
	if err := p.Audit.Append("TRADE_POSTED_SHORT_COVER", nil, meta.actor(), nil, map[string]any{"qty": qty.String(), "price": price.String(), "fee": fee.String(), "pnl": realized.String()}, "post_short_cover", "", groupID, "", nil); err != nil {
		return realized, err
	}
	return realized, nil
}

// PostDeposit records an owner cash contribution, grounded on post_deposit.
func (p *Poster) PostDeposit(ctx context.Context, amount decimal.Decimal, tradeID string, ts time.Time, meta Meta) error {
	groupID := meta.groupID(tradeID)
	amt := types.SanitizeMoney(amount)
	legs := []types.TradeLeg{
		withSide(leg(ts, "", "DEPOSIT_CASH", "", amt, groupID, tradeID, "", "", "Deposit received", p.Identity), p.Accounts["cash"]),
		withSide(leg(ts, "", "DEPOSIT_EQUITY", "", amt.Neg(), groupID, tradeID, "", "", "Owner contribution", p.Identity), p.Accounts["equity_contrib"]),
	}
	if err := p.insertLegs(ctx, legs); err != nil {
		return err
	}
	return p.Audit.Append("CASH_DEPOSIT", nil, meta.actor(), nil, map[string]any{"amount": amt.String()}, "post_deposit", "", groupID, "", nil)
}

// PostWithdrawal records an owner cash draw, grounded on post_withdrawal.
func (p *Poster) PostWithdrawal(ctx context.Context, amount decimal.Decimal, tradeID string, ts time.Time, meta Meta) error {
	groupID := meta.groupID(tradeID)
	amt := types.SanitizeMoney(amount)
	legs := []types.TradeLeg{
		withSide(leg(ts, "", "WITHDRAWAL_EQUITY", "", amt, groupID, tradeID, "", "", "Owner withdrawal", p.Identity), p.Accounts["owner_withdrawals"]),
		withSide(leg(ts, "", "WITHDRAWAL_CASH", "", amt.Neg(), groupID, tradeID, "", "", "Withdrawal cash", p.Identity), p.Accounts["cash"]),
	}
	if err := p.insertLegs(ctx, legs); err != nil {
		return err
	}
	return p.Audit.Append("CASH_WITHDRAWAL", nil, meta.actor(), nil, map[string]any{"amount": amt.String()}, "post_withdrawal", "", groupID, "", nil)
}

// PostDividend records dividend income, grounded on post_dividend.
func (p *Poster) PostDividend(ctx context.Context, amount decimal.Decimal, tradeID, symbol string, ts time.Time, meta Meta) error {
	groupID := meta.groupID(tradeID)
	amt := types.SanitizeMoney(amount)
	legs := []types.TradeLeg{
		withSide(leg(ts, symbol, "DIVIDEND_CASH", "", amt, groupID, tradeID, "", "", "Dividend received", p.Identity), p.Accounts["cash"]),
		withSide(leg(ts, symbol, "DIVIDEND_INCOME", "", amt.Neg(), groupID, tradeID, "", "", "Dividend income", p.Identity), p.Accounts["dividends"]),
	}
	if err := p.insertLegs(ctx, legs); err != nil {
		return err
	}
	return p.Audit.Append("DIVIDEND_POSTED", nil, meta.actor(), nil, map[string]any{"amount": amt.String(), "symbol": symbol}, "post_dividend", "", groupID, "", nil)
}

// PostInterest records interest income, grounded on post_interest.
func (p *Poster) PostInterest(ctx context.Context, amount decimal.Decimal, tradeID string, ts time.Time, meta Meta) error {
	groupID := meta.groupID(tradeID)
	amt := types.SanitizeMoney(amount)
	legs := []types.TradeLeg{
		withSide(leg(ts, "", "INTEREST_CASH", "", amt, groupID, tradeID, "", "", "Interest received", p.Identity), p.Accounts["cash"]),
		withSide(leg(ts, "", "INTEREST_INCOME", "", amt.Neg(), groupID, tradeID, "", "", "Interest income", p.Identity), p.Accounts["interest"]),
	}
	if err := p.insertLegs(ctx, legs); err != nil {
		return err
	}
	return p.Audit.Append("INTEREST_POSTED", nil, meta.actor(), nil, map[string]any{"amount": amt.String()}, "post_interest", "", groupID, "", nil)
}

// PostFee records a standalone broker fee/commission charge, grounded on
// post_fee.
func (p *Poster) PostFee(ctx context.Context, amount decimal.Decimal, tradeID string, ts time.Time, meta Meta) error {
	groupID := meta.groupID(tradeID)
	amt := types.SanitizeMoney(amount)
	legs := []types.TradeLeg{
		withSide(leg(ts, "", "FEE_EXPENSE", "", amt, groupID, tradeID, "", "", "Broker fee (debit)", p.Identity), p.Accounts["fees"]),
		withSide(leg(ts, "", "FEE_CASH", "", amt.Neg(), groupID, tradeID, "", "", "Broker fee cash (credit)", p.Identity), p.Accounts["cash"]),
	}
	if err := p.insertLegs(ctx, legs); err != nil {
		return err
	}
	return p.Audit.Append("FEE_POSTED", nil, meta.actor(), nil, map[string]any{"amount": amt.String()}, "post_fee", "", groupID, "", nil)
}
