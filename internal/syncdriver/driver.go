package syncdriver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tbotcore/internal/coa"
	"tbotcore/internal/ledger"
	"tbotcore/internal/logging"
	"tbotcore/internal/normalize"
	"tbotcore/internal/types"
)

// Dependencies bundles everything one sync run needs, assembled by the
// cmd/syncdriver entrypoint.
type Dependencies struct {
	Poster     *ledger.Poster
	Audit      *ledger.AuditWriter
	Accounts   map[string]string
	Compliance ledger.ComplianceConfig
	Identity   types.Identity4
}

// Result summarizes one sync run for logging and audit extras.
type Result struct {
	SyncRunID    string
	TradesFetched int
	CashFetched   int
	Posted        int
	Rejected      int
	Deduplicated  int
}

// Run executes the full §4.7 pipeline against one date range.
func Run(ctx context.Context, deps Dependencies, adapter BrokerAdapter, from, to time.Time) (Result, error) {
	result := Result{SyncRunID: uuid.NewString()}

	rawTrades, err := adapter.FetchTrades(from, to)
	if err != nil {
		return result, fmt.Errorf("fetch trades: %w", err)
	}
	rawCash, err := adapter.FetchCashActivities(from, to)
	if err != nil {
		return result, fmt.Errorf("fetch cash activities: %w", err)
	}
	result.TradesFetched = len(rawTrades)
	result.CashFetched = len(rawCash)
	responseHash := hashResponses(rawTrades, rawCash)

	trades := make([]*types.TradeRecord, 0, len(rawTrades))
	for _, raw := range rawTrades {
		rec, err := normalize.Trade(raw, deps.Identity)
		if err != nil {
			logging.Warnf("syncdriver: normalize trade: %v", err)
			continue
		}
		trades = append(trades, rec)
	}
	cash := make([]*types.CashRecord, 0, len(rawCash))
	for _, raw := range rawCash {
		rec, err := normalize.Cash(raw, deps.Identity)
		if err != nil {
			logging.Warnf("syncdriver: normalize cash: %v", err)
			continue
		}
		cash = append(cash, rec)
	}

	preDedupTrades, preDedupCash := len(trades), len(cash)
	trades = ledger.DeduplicateEntries(trades, tradeKey, setTradeGroupID)
	cash = ledger.DeduplicateEntries(cash, cashKey, setCashGroupID)
	result.Deduplicated = (preDedupTrades - len(trades)) + (preDedupCash - len(cash))

	for _, rec := range trades {
		exists, err := ledger.TradeExists(ctx, deps.Poster.DB, rec.FITID, "")
		if err != nil {
			return result, fmt.Errorf("check trade exists: %w", err)
		}
		if exists {
			continue
		}

		entries := tradeComplianceEntries(rec, deps.Accounts)
		ok, reasons := ledger.ValidateEntries(entries, deps.Compliance, nil, deps.Audit)
		if !ok {
			logging.Warnf("syncdriver: trade %s rejected: %v", rec.FITID, reasons)
			result.Rejected++
			continue
		}

		if err := postTrade(ctx, deps.Poster, rec, result.SyncRunID); err != nil {
			return result, fmt.Errorf("post trade %s: %w", rec.FITID, err)
		}
		result.Posted++
	}

	for _, rec := range cash {
		exists, err := ledger.TradeExists(ctx, deps.Poster.DB, rec.FITID, "")
		if err != nil {
			return result, fmt.Errorf("check cash exists: %w", err)
		}
		if exists {
			continue
		}

		entries := cashComplianceEntries(rec, deps.Accounts)
		ok, reasons := ledger.ValidateEntries(entries, deps.Compliance, nil, deps.Audit)
		if !ok {
			logging.Warnf("syncdriver: cash activity %s rejected: %v", rec.FITID, reasons)
			result.Rejected++
			continue
		}

		if err := postCash(ctx, deps.Poster, rec, result.SyncRunID); err != nil {
			return result, fmt.Errorf("post cash %s: %w", rec.FITID, err)
		}
		result.Posted++
	}

	if deps.Audit != nil {
		_ = deps.Audit.Append("sync_run_completed", nil, "syncdriver", nil, nil, "", result.SyncRunID, "", "", map[string]any{
			"sync_run_id": result.SyncRunID, "response_hash": responseHash,
			"trades_fetched": result.TradesFetched, "cash_fetched": result.CashFetched,
			"posted": result.Posted, "rejected": result.Rejected,
		})
	}
	return result, nil
}

func hashResponses(trades, cash []normalize.RawFields) string {
	h := sha256.New()
	enc, _ := json.Marshal(struct {
		Trades []normalize.RawFields `json:"trades"`
		Cash   []normalize.RawFields `json:"cash"`
	}{trades, cash})
	h.Write(enc)
	return hex.EncodeToString(h.Sum(nil))
}

func tradeKey(r *types.TradeRecord) ledger.NormalizedInput {
	return ledger.NormalizedInput{TradeID: r.FITID, GroupID: r.GroupID}
}

func setTradeGroupID(r *types.TradeRecord, groupID string) *types.TradeRecord {
	r.GroupID = groupID
	return r
}

func cashKey(r *types.CashRecord) ledger.NormalizedInput {
	return ledger.NormalizedInput{TradeID: r.FITID, GroupID: r.GroupID}
}

func setCashGroupID(r *types.CashRecord, groupID string) *types.CashRecord {
	r.GroupID = groupID
	return r
}

// tradeComplianceEntries builds the debit/credit leg candidates a posted
// trade would produce, so the compliance filter can reject before any
// lot or ledger mutation happens.
func tradeComplianceEntries(r *types.TradeRecord, accounts map[string]string) []ledger.Entry {
	equityAccount := coa.EquityAccount(accounts, r.Symbol)
	ts := r.DTPosted
	base := ledger.Entry{
		TotalValue: r.TotalValue, HasTotalValue: true,
		TimestampUTC: &ts, AuditReference: r.FITID, GroupID: r.GroupID, FITID: r.FITID,
	}
	debit := base
	debit.Account = equityAccount
	debit.Side = "debit"
	credit := base
	credit.Account = accounts["cash"]
	credit.Side = "credit"
	return []ledger.Entry{debit, credit}
}

func cashComplianceEntries(r *types.CashRecord, accounts map[string]string) []ledger.Entry {
	ts := r.DTPosted
	base := ledger.Entry{
		TotalValue: r.Amount, HasTotalValue: true,
		TimestampUTC: &ts, AuditReference: r.FITID, GroupID: r.GroupID, FITID: r.FITID,
	}
	debit := base
	debit.Account = accounts["cash"]
	debit.Side = "debit"
	credit := base
	credit.Account = cashCounterAccount(r, accounts)
	credit.Side = "credit"
	return []ledger.Entry{debit, credit}
}

func cashCounterAccount(r *types.CashRecord, accounts map[string]string) string {
	switch r.TRNTYPE {
	case types.TrnDividend:
		return accounts["dividends"]
	case types.TrnInterest:
		return accounts["interest"]
	case types.TrnFee:
		return accounts["fees"]
	case types.TrnDeposit:
		return accounts["equity_contrib"]
	case types.TrnWithdrawal:
		return accounts["owner_withdrawals"]
	default:
		return accounts["unallocated"]
	}
}

func postTrade(ctx context.Context, poster *ledger.Poster, r *types.TradeRecord, syncRunID string) error {
	meta := ledger.Meta{Actor: "syncdriver", GroupID: r.GroupID, Tags: fmt.Sprintf("sync_run_id=%s", syncRunID)}
	fee := r.Fee.Add(r.Commission)
	switch r.Action {
	case "buy", "long":
		return poster.PostBuy(ctx, r.Symbol, r.Quantity, r.Price, fee, r.FITID, r.DTPosted, meta)
	case "sell":
		_, err := poster.PostSell(ctx, r.Symbol, r.Quantity, r.Price, fee, r.FITID, r.DTPosted, meta)
		return err
	case "short", "sell_short", "short_open":
		return poster.PostShortOpen(ctx, r.Symbol, r.Quantity, r.Price, fee, r.FITID, r.DTPosted, meta)
	case "short_cover", "buy_to_cover", "cover":
		_, err := poster.PostShortCover(ctx, r.Symbol, r.Quantity, r.Price, fee, r.FITID, r.DTPosted, meta)
		return err
	default:
		logging.Warnf("syncdriver: unrecognized trade action %q for %s, skipping", r.Action, r.FITID)
		return nil
	}
}

func postCash(ctx context.Context, poster *ledger.Poster, r *types.CashRecord, syncRunID string) error {
	meta := ledger.Meta{Actor: "syncdriver", GroupID: r.GroupID, Tags: fmt.Sprintf("sync_run_id=%s", syncRunID)}
	amount := r.Amount
	switch r.TRNTYPE {
	case types.TrnDividend:
		return poster.PostDividend(ctx, amount, r.FITID, r.Symbol, r.DTPosted, meta)
	case types.TrnInterest:
		return poster.PostInterest(ctx, amount, r.FITID, r.DTPosted, meta)
	case types.TrnFee:
		return poster.PostFee(ctx, amount.Abs(), r.FITID, r.DTPosted, meta)
	case types.TrnDeposit:
		return poster.PostDeposit(ctx, amount.Abs(), r.FITID, r.DTPosted, meta)
	case types.TrnWithdrawal:
		return poster.PostWithdrawal(ctx, amount.Abs(), r.FITID, r.DTPosted, meta)
	default:
		logging.Warnf("syncdriver: unrecognized cash TRNTYPE %q for %s, skipping", r.TRNTYPE, r.FITID)
		return nil
	}
}
