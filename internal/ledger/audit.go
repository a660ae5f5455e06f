package ledger

import (
	"encoding/json"
	"time"

	"tbotcore/internal/atomicio"
	"tbotcore/internal/types"
)

// AuditWriter appends immutable JSONL records to the ledger audit trail.
type AuditWriter struct {
	Path     string
	Identity IdentityCodes
}

// IdentityCodes carries the four identity tags every audit record stamps,
// matching log_audit_event's get_bot_identity() split.
type IdentityCodes struct {
	EntityCode       string
	JurisdictionCode string
	BrokerCode       string
	BotID            string
}

func NewAuditWriter(path string, identity IdentityCodes) *AuditWriter {
	return &AuditWriter{Path: path, Identity: identity}
}

// Append writes one audit event. entryID is nil for pre-insert rejects
// (the original's compliance_reject event carries entry_id=None).
func (w *AuditWriter) Append(action string, entryID *int64, actor string, before, after any, reason, auditReference, groupID, fitid string, extra map[string]any) error {
	var beforeRaw, afterRaw json.RawMessage
	var err error
	if before != nil {
		beforeRaw, err = json.Marshal(before)
		if err != nil {
			return err
		}
	}
	if after != nil {
		afterRaw, err = json.Marshal(after)
		if err != nil {
			return err
		}
	}

	event := types.AuditEvent{
		TSUTC: time.Now().UTC(), Action: action, EntryID: entryID, Actor: actor,
		Reason: reason, AuditReference: auditReference, GroupID: groupID, FITID: fitid,
		Before: beforeRaw, After: afterRaw,
		EntityCode: w.Identity.EntityCode, JurisdictionCode: w.Identity.JurisdictionCode,
		BrokerCode: w.Identity.BrokerCode, BotID: w.Identity.BotID,
		Extra: extra,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return atomicio.AppendLine(w.Path, string(data))
}

// ToLotsAuditFunc adapts the writer to internal/lots.AuditFunc so the lots
// engine's LOT_OPENED/LOT_CLOSED events land in the same audit trail.
func (w *AuditWriter) ToLotsAuditFunc(actor, groupID string) func(event, gid string, before, after map[string]any, reason string) error {
	return func(event, gid string, before, after map[string]any, reason string) error {
		g := gid
		if g == "" {
			g = groupID
		}
		return w.Append(event, nil, actor, before, after, reason, "", g, "", nil)
	}
}
