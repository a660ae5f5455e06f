package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tbotcore/internal/errs"
)

// Entry is a single pre-write ledger leg candidate, matching the fields
// ledger_compliance_filter.py's _validate_entry inspects.
type Entry struct {
	ID              *int64
	Account         string
	Side            string // "debit" | "credit"
	TotalValue      decimal.Decimal
	HasTotalValue   bool
	TimestampUTC    *time.Time
	AllowZeroValue  bool
	AuditReference  string
	GroupID         string
	FITID           string
	Broker, Type, Subtype, Description, Code string
}

// ComplianceConfig mirrors the filter's env-tunable policy knobs.
type ComplianceConfig struct {
	MaxAbsAmount       decimal.Decimal
	EnforceDateWindow  bool
	MaxBackdateDays    int
	MaxFutureMinutes   int
}

func hasAccount(account string) bool {
	a := strings.TrimSpace(account)
	return a != "" && !strings.HasPrefix(a, "Uncategorized")
}

// validateEntry returns the RejectReason for a single entry, or "" if it
// passes. mappingResolvable lets the caller report whether a fallback COA
// mapping lookup would resolve the entry when it has no explicit account
// (the Go equivalent of map_transaction_to_accounts succeeding).
func validateEntry(e Entry, cfg ComplianceConfig, mappingResolvable bool) errs.RejectReason {
	if !hasAccount(e.Account) {
		if !mappingResolvable {
			return errs.RejectUnmappedOrMissingAcct
		}
	}

	side := strings.ToLower(e.Side)
	if side != "debit" && side != "credit" {
		return errs.RejectInvalidSide
	}

	if !e.HasTotalValue {
		return errs.RejectInvalidTotalValue
	}
	if e.TotalValue.IsZero() && !e.AllowZeroValue {
		return errs.RejectZeroTotalValue
	}
	if e.TotalValue.Abs().GreaterThan(cfg.MaxAbsAmount) {
		return errs.RejectAmountExceedsPolicy
	}

	if e.TimestampUTC == nil {
		return errs.RejectMissingTimestamp
	}
	if cfg.EnforceDateWindow {
		now := time.Now().UTC()
		ts := e.TimestampUTC.UTC()
		if ts.Before(now.AddDate(0, 0, -cfg.MaxBackdateDays)) {
			return errs.RejectTimestampTooOld
		}
		if ts.After(now.Add(time.Duration(cfg.MaxFutureMinutes) * time.Minute)) {
			return errs.RejectTimestampInFuture
		}
	}
	return ""
}

// ValidateEntries validates a batch; for each rejection it appends a
// compliance_reject audit event (before=the raw entry) via audit, matching
// _audit_reject's exact action/reason/before shape, and returns the
// accumulated reject reasons alongside an ok flag.
func ValidateEntries(entries []Entry, cfg ComplianceConfig, mappingResolvable func(Entry) bool, audit *AuditWriter) (bool, []errs.RejectReason) {
	var rejects []errs.RejectReason
	for _, e := range entries {
		resolvable := false
		if mappingResolvable != nil {
			resolvable = mappingResolvable(e)
		}
		reason := validateEntry(e, cfg, resolvable)
		if reason == "" {
			continue
		}
		rejects = append(rejects, reason)
		if audit != nil {
			_ = audit.Append("compliance_reject", e.ID, "system", entrySnapshot(e), nil, string(reason), e.AuditReference, e.GroupID, e.FITID, map[string]any{"module": "ledger_compliance_filter"})
		}
	}
	return len(rejects) == 0, rejects
}

func entrySnapshot(e Entry) map[string]any {
	return map[string]any{
		"account": e.Account, "side": e.Side, "total_value": e.TotalValue.String(),
		"group_id": e.GroupID, "fitid": e.FITID,
	}
}
