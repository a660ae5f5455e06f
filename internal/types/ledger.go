package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Side of a double-entry leg.
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// TradeLeg is a single OFX-aligned ledger row: one side of a double-entry
// journal. Field set mirrors the original ledger's `trades` table exactly
// so the dynamic-column insertion in internal/ledger can map struct fields
// to whichever columns a given database actually carries.
type TradeLeg struct {
	ID              int64
	TradeID         string
	GroupID         string
	DatetimeUTC     time.Time
	Symbol          string
	Action          string
	Side            Side
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	TotalValue      decimal.Decimal // signed: +debit, -credit
	Amount          decimal.Decimal // magnitude
	Fee             decimal.Decimal
	Commission      decimal.Decimal
	Account         string
	Strategy        string
	Tags            string
	Notes           string
	Identity        IdentityTags
	FITID           string
	Status          string
	RawBrokerJSON   json.RawMessage
	JSONMetadata    json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Lot tracks a long or short inventory position opened at a cost basis
// (long) or short-proceeds-per-share (short).
type LotSide string

const (
	LotLong  LotSide = "long"
	LotShort LotSide = "short"
)

type Lot struct {
	ID             int64
	Symbol         string
	Side           LotSide
	QtyOpen        decimal.Decimal
	QtyRemaining   decimal.Decimal
	UnitCost       decimal.Decimal
	FeesAlloc      decimal.Decimal
	OpenedTradeID  string
	OpenedAtUTC    time.Time
}

// LotClosure records one allocation against a lot made during a close.
type LotClosure struct {
	ID              int64
	LotID           int64
	CloseTradeID    string
	CloseQty        decimal.Decimal
	BasisAmount     decimal.Decimal
	ProceedsAmount  decimal.Decimal
	FeesAlloc       decimal.Decimal
	RealizedPnL     decimal.Decimal
	ClosedAtUTC     time.Time
}

// LotAllocation is one slice of an allocate-for-close result, referencing
// the open lot it draws from.
type LotAllocation struct {
	LotID         int64
	Qty           decimal.Decimal
	UnitCost      decimal.Decimal
	FeesAlloc     decimal.Decimal
	OpenedAt      time.Time
	OpenedTradeID string
}

// MappingRow is one immutable, append-only row of the COA mapping table.
type MappingRow struct {
	RuleCode      string
	DebitAccount  string
	CreditAccount string
	Active        bool
	VersionID     int64
	UpdatedBy     string
	UpdatedAtUTC  time.Time
	Reason        string
	Match         MatchDiscriminators
}

// MatchDiscriminators is the subset of discriminators a mapping rule was
// keyed on; zero-value fields are "don't care" for fallback matching.
type MatchDiscriminators struct {
	Broker      string
	Type        string
	Subtype     string
	Description string
}

// Account is one node of the Chart of Accounts forest.
type Account struct {
	Code     string
	Name     string
	Active   bool
	Children []*Account
}

// AuditEvent is the fixed shape of every line appended to
// <ledger_dir>/audit/ledger_audit.jsonl, grounded on ledger_audit.py's
// log_audit_event field set.
type AuditEvent struct {
	TSUTC          time.Time       `json:"ts_utc"`
	Action         string          `json:"action"`
	EntryID        *int64          `json:"entry_id"`
	Actor          string          `json:"actor"`
	Reason         string          `json:"reason,omitempty"`
	AuditReference string          `json:"audit_reference,omitempty"`
	GroupID        string          `json:"group_id,omitempty"`
	FITID          string          `json:"fitid,omitempty"`
	Before         json.RawMessage `json:"before,omitempty"`
	After          json.RawMessage `json:"after,omitempty"`
	EntityCode     string          `json:"entity_code"`
	JurisdictionCode string        `json:"jurisdiction_code"`
	BrokerCode     string          `json:"broker_code"`
	BotID          string          `json:"bot_id"`
	Extra          map[string]any  `json:"-"`
}

// MarshalJSON flattens Extra keys alongside the fixed fields without
// overwriting them, mirroring log_audit_event's setdefault merge.
func (e AuditEvent) MarshalJSON() ([]byte, error) {
	type alias AuditEvent
	base, err := json.Marshal(alias(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return base, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		if _, exists := m[k]; exists {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		m[k] = raw
	}
	return json.Marshal(m)
}
