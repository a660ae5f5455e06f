// Package normalize implements the Normalizer (C4): stateless, zero-I/O
// conversion of raw broker payloads into OFX-aligned NormalizedRecords,
// grounded on broker/utils/normalizers/_common.py, _trades.py, _cash.py,
// _positions.py.
package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tbotcore/internal/types"
)

// groupNamespace is the fixed UUIDv5 namespace every group_id is derived
// from, matching _common.py's _UUID_NS.
var groupNamespace = uuid.MustParse("76b5c9f8-bf65-4b6a-9d93-2f7b0b5d7a44")

var tradeTrnType = map[string]string{
	"buy": types.TrnBuy, "long": types.TrnBuy,
	"sell": types.TrnSell, "short": types.TrnSell,
	"assignment": types.TrnTransfer, "exercise": types.TrnTransfer,
	"put": types.TrnOther, "call": types.TrnOther, "expire": types.TrnOther,
	"reorg": types.TrnOther, "inverse": types.TrnOther,
}

var cashTrnType = map[string]string{
	"DIV": types.TrnDividend, "INT": types.TrnInterest, "FEE": types.TrnFee,
	"TRANS": types.TrnXfer, "JOURNAL": types.TrnXfer,
	"WITHDRAWAL": types.TrnWithdrawal, "DEPOSIT": types.TrnDeposit,
}

func trnTypeForTrade(action string) string {
	if v, ok := tradeTrnType[strings.ToLower(action)]; ok {
		return v
	}
	return types.TrnOther
}

func trnTypeForCash(activityType string) string {
	if v, ok := cashTrnType[strings.ToUpper(activityType)]; ok {
		return v
	}
	return types.TrnOther
}

// FitidHash computes the deterministic SHA-1 hex used for FITIDs and
// stable-id seeds, joining parts with "|" exactly like fitid_hash().
func FitidHash(parts ...any) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		if p == nil {
			strs[i] = ""
			continue
		}
		strs[i] = fmt.Sprint(p)
	}
	sum := sha1.Sum([]byte(strings.Join(strs, "|")))
	return hex.EncodeToString(sum[:])
}

// UUID5 computes a deterministic UUIDv5 over joined parts under the fixed
// namespace, matching uuid5_deterministic().
func UUID5(parts ...any) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		if p == nil {
			strs[i] = ""
			continue
		}
		strs[i] = fmt.Sprint(p)
	}
	name := strings.Join(strs, "|")
	return uuid.NewSHA1(groupNamespace, []byte(name)).String()
}

// ToUTC parses a string or time.Time into UTC, returning the zero time and
// false if unparseable. Naive (no-offset) strings are interpreted as UTC.
func ToUTC(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		s = strings.Replace(s, "Z", "+00:00", 1)
		for _, layout := range []string{
			"2006-01-02T15:04:05.999999999Z07:00",
			"2006-01-02T15:04:05Z07:00",
			"2006-01-02 15:04:05Z07:00",
			"2006-01-02T15:04:05.999999999",
			"2006-01-02T15:04:05",
		} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// ToUTCISO renders a value as millisecond-precision ISO-8601 UTC with a
// trailing Z, or "" if unparseable.
func ToUTCISO(v any) string {
	t, ok := ToUTC(v)
	if !ok {
		return ""
	}
	return t.Format("2006-01-02T15:04:05.000Z")
}

// parseDTPosted resolves a raw timestamp field into UTC, falling back to
// the zero time when unparseable (the caller still gets a FITID/group_id
// computed over the string form for stability).
func parseDTPosted(v any) time.Time {
	t, ok := ToUTC(v)
	if !ok {
		return time.Time{}
	}
	return t
}

// RawFields is the generic shape a broker adapter hands the normalizer:
// string-keyed values of mixed underlying type (string, float64, etc.),
// mirroring the raw dict the original passes in untyped.
type RawFields map[string]any

func getFirst(raw RawFields, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func asDecimal(v any) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	switch x := v.(type) {
	case decimal.Decimal:
		return x
	case float64:
		return decimal.NewFromFloat(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// Trade converts a raw trade payload into a *types.TradeRecord.
func Trade(raw RawFields, identity types.Identity4) (*types.TradeRecord, error) {
	symbol := asString(getFirst(raw, "symbol", "underlying"))
	actionRaw := strings.ToLower(asString(getFirst(raw, "action", "side")))

	qty := types.SanitizeQty(asDecimal(getFirst(raw, "quantity", "qty", "filled_qty")))
	price := types.SanitizePrice(asDecimal(getFirst(raw, "price", "filled_avg_price", "fill_price")))
	fee := types.SanitizeMoney(asDecimal(getFirst(raw, "fee")))
	commission := types.SanitizeMoney(asDecimal(getFirst(raw, "commission")))
	dtUTC := ToUTCISO(getFirst(raw, "DTPOSTED", "datetime_utc", "filled_at", "transaction_time", "submitted_at"))

	totalValue := types.SanitizeMoney(qty.Mul(price))

	tradeID := asString(getFirst(raw, "trade_id", "order_id", "id"))
	stable := asString(getFirst(raw, "stable_id"))
	if stable == "" {
		stable = FitidHash(identity.Broker, "TRD", tradeID, symbol, dtUTC, price.String(), qty.String())
	}
	fitid := FitidHash("TRD", stable)
	groupSeed := asString(getFirst(raw, "order_id"))
	if groupSeed == "" {
		groupSeed = stable
	}
	if groupSeed == "" {
		groupSeed = fitid
	}
	groupID := UUID5("TRD", groupSeed)

	rawJSON, err := json.Marshal(map[string]any{"raw_broker": raw, "stable_id": stable})
	if err != nil {
		return nil, fmt.Errorf("normalize: marshal raw_broker: %w", err)
	}

	return &types.TradeRecord{
		TRNTYPE:     trnTypeForTrade(actionRaw),
		DTPosted:    parseDTPosted(dtUTC),
		FITID:       fitid,
		GroupID:     groupID,
		Symbol:      symbol,
		Action:      actionRaw,
		Quantity:    qty,
		Price:       price,
		TotalValue:  totalValue,
		Fee:         fee,
		Commission:  commission,
		Status:      asString(getFirst(raw, "status", "order_status")),
		Description: asString(getFirst(raw, "description")),
		RawBroker:   rawJSON,
		StableID:    stable,
		Identity: types.IdentityTags{
			EntityCode: identity.Entity, JurisdictionCode: identity.Jurisdiction,
			BrokerCode: identity.Broker, BotID: identity.BotID,
		},
	}, nil
}

// Cash converts a raw cash-activity payload into a *types.CashRecord.
func Cash(raw RawFields, identity types.Identity4) (*types.CashRecord, error) {
	symbol := asString(getFirst(raw, "symbol"))
	activityType := asString(getFirst(raw, "activity_type", "action", "type"))

	qty := types.SanitizeQty(asDecimal(getFirst(raw, "quantity", "qty")))
	price := types.SanitizePrice(asDecimal(getFirst(raw, "price")))
	fee := types.SanitizeMoney(asDecimal(getFirst(raw, "fee")))
	commission := types.SanitizeMoney(asDecimal(getFirst(raw, "commission")))

	amountRaw := getFirst(raw, "amount")
	var amount decimal.Decimal
	if amountRaw != nil {
		amount = types.SanitizeMoney(asDecimal(amountRaw))
	} else {
		amount = types.SanitizeMoney(qty.Mul(price))
	}
	dtUTC := ToUTCISO(getFirst(raw, "DTPOSTED", "datetime_utc", "transaction_time", "date", "post_date"))

	activityID := asString(getFirst(raw, "activity_id", "id"))
	stable := asString(getFirst(raw, "stable_id"))
	if stable == "" {
		stable = FitidHash(identity.Broker, "ACT", activityType, activityID, dtUTC, amount.String())
	}
	fitid := FitidHash("ACT", stable)
	groupSeed := activityType
	if groupSeed == "" {
		groupSeed = "UNKNOWN"
	}
	groupKey := activityID
	if groupKey == "" {
		groupKey = stable
	}
	groupID := UUID5("ACT", groupSeed, groupKey)

	rawJSON, err := json.Marshal(map[string]any{"raw_broker": raw, "stable_id": stable})
	if err != nil {
		return nil, fmt.Errorf("normalize: marshal raw_broker: %w", err)
	}

	return &types.CashRecord{
		TRNTYPE:      trnTypeForCash(activityType),
		DTPosted:     parseDTPosted(dtUTC),
		FITID:        fitid,
		GroupID:      groupID,
		Symbol:       symbol,
		ActivityType: activityType,
		Quantity:     qty,
		Price:        price,
		Amount:       amount,
		Fee:          fee,
		Commission:   commission,
		Status:       asString(getFirst(raw, "status")),
		Description:  asString(getFirst(raw, "description")),
		RawBroker:    rawJSON,
		StableID:     stable,
		Identity: types.IdentityTags{
			EntityCode: identity.Entity, JurisdictionCode: identity.Jurisdiction,
			BrokerCode: identity.Broker, BotID: identity.BotID,
		},
	}, nil
}

// Position converts a raw position-snapshot payload into a
// *types.PositionRecord.
func Position(raw RawFields, identity types.Identity4) (*types.PositionRecord, error) {
	symbol := asString(getFirst(raw, "symbol"))
	qty := types.SanitizeQty(asDecimal(getFirst(raw, "qty", "quantity")))
	avg := types.SanitizePrice(asDecimal(getFirst(raw, "avg_entry_price", "avg_price")))

	var marketValue decimal.Decimal
	if mv := getFirst(raw, "market_value"); mv != nil {
		marketValue = types.SanitizeMoney(asDecimal(mv))
	} else {
		marketValue = types.SanitizeMoney(qty.Mul(avg))
	}
	var costBasis decimal.Decimal
	if cb := getFirst(raw, "cost_basis"); cb != nil {
		costBasis = types.SanitizeMoney(asDecimal(cb))
	} else {
		costBasis = types.SanitizeMoney(qty.Mul(avg))
	}
	dtUTC := ToUTCISO(getFirst(raw, "DTPOSTED", "datetime_utc", "updated_at", "timestamp"))

	positionID := asString(getFirst(raw, "position_id", "asset_id"))
	if positionID == "" {
		positionID = symbol
	}
	stable := asString(getFirst(raw, "stable_id"))
	if stable == "" {
		stable = FitidHash(identity.Broker, "POS", positionID, symbol, avg.String(), qty.String())
	}
	fitid := FitidHash("POS", stable)
	groupSeed := symbol
	if groupSeed == "" {
		groupSeed = "UNKNOWN"
	}
	groupID := UUID5("POS", groupSeed)

	rawJSON, err := json.Marshal(map[string]any{"raw_broker": raw, "stable_id": stable})
	if err != nil {
		return nil, fmt.Errorf("normalize: marshal raw_broker: %w", err)
	}

	return &types.PositionRecord{
		TRNTYPE:       types.TrnPosition,
		DTPosted:      parseDTPosted(dtUTC),
		FITID:         fitid,
		GroupID:       groupID,
		Symbol:        symbol,
		Qty:           qty,
		AvgEntryPrice: avg,
		MarketValue:   marketValue,
		CostBasis:     costBasis,
		RawBroker:     rawJSON,
		StableID:      stable,
		Identity: types.IdentityTags{
			EntityCode: identity.Entity, JurisdictionCode: identity.Jurisdiction,
			BrokerCode: identity.Broker, BotID: identity.BotID,
		},
	}, nil
}
