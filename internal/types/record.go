package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OFX-aligned transaction type tags, fixed per the normalizer's mapping
// tables.
const (
	TrnBuy        = "BUY"
	TrnSell       = "SELL"
	TrnTransfer   = "TRANSFER"
	TrnDividend   = "DIV"
	TrnInterest   = "INT"
	TrnFee        = "FEE"
	TrnXfer       = "XFER"
	TrnWithdrawal = "WITHDRAWAL"
	TrnDeposit    = "DEPOSIT"
	TrnPosition   = "POS"
	TrnOther      = "OTHER"
)

// RecordKind discriminates the NormalizedRecord sum type.
type RecordKind int

const (
	KindTrade RecordKind = iota
	KindCash
	KindPosition
)

// IdentityTags are stamped onto every normalized record for provenance.
type IdentityTags struct {
	EntityCode       string
	JurisdictionCode string
	BrokerCode       string
	BotID            string
}

// TradeRecord is the canonical shape of a normalized trade.
type TradeRecord struct {
	TRNTYPE     string
	DTPosted    time.Time
	FITID       string
	GroupID     string
	Symbol      string
	Action      string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	TotalValue  decimal.Decimal
	Fee         decimal.Decimal
	Commission  decimal.Decimal
	Status      string
	Description string
	RawBroker   json.RawMessage
	StableID    string
	Identity    IdentityTags
}

// CashRecord is the canonical shape of a normalized cash activity.
type CashRecord struct {
	TRNTYPE      string
	DTPosted     time.Time
	FITID        string
	GroupID      string
	Symbol       string
	ActivityType string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Amount       decimal.Decimal
	Fee          decimal.Decimal
	Commission   decimal.Decimal
	Status       string
	Description  string
	RawBroker    json.RawMessage
	StableID     string
	Identity     IdentityTags
}

// PositionRecord is the canonical shape of a normalized position snapshot.
type PositionRecord struct {
	TRNTYPE       string
	DTPosted      time.Time
	FITID         string
	GroupID       string
	Symbol        string
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
	MarketValue   decimal.Decimal
	CostBasis     decimal.Decimal
	RawBroker     json.RawMessage
	StableID      string
	Identity      IdentityTags
}

// NormalizedRecord is the tagged-sum-type replacement for the original's
// free-form dicts (Design Notes: "Runtime reflection / dict-typed
// records"). Exactly one of Trade/Cash/Position is populated, selected by
// Kind.
type NormalizedRecord struct {
	Kind     RecordKind
	Trade    *TradeRecord
	Cash     *CashRecord
	Position *PositionRecord
}

// FITID returns the deterministic id regardless of which variant is set.
func (r NormalizedRecord) FITID() string {
	switch r.Kind {
	case KindTrade:
		return r.Trade.FITID
	case KindCash:
		return r.Cash.FITID
	case KindPosition:
		return r.Position.FITID
	default:
		return ""
	}
}

// GroupID returns the journal group id regardless of which variant is set.
func (r NormalizedRecord) GroupID() string {
	switch r.Kind {
	case KindTrade:
		return r.Trade.GroupID
	case KindCash:
		return r.Cash.GroupID
	case KindPosition:
		return r.Position.GroupID
	default:
		return ""
	}
}
