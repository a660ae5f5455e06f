// Package mapping implements the COA Mapping Table (C3): an append-only,
// versioned rule table with snapshot+rollback, grounded on
// accounting/coa_mapping_table.py.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tbotcore/internal/atomicio"
	"tbotcore/internal/errs"
	"tbotcore/internal/types"
)

// Match is the subset of discriminators a rule was keyed on or a
// transaction carries for lookup.
type Match struct {
	Broker      string `json:"broker,omitempty"`
	Type        string `json:"type,omitempty"`
	Subtype     string `json:"subtype,omitempty"`
	Description string `json:"description,omitempty"`
}

// RuleCode computes the deterministic rule key from a Match, mirroring
// _rule_code's colon-join of broker/type/subtype/description.
func RuleCode(m Match) string {
	return strings.Join([]string{
		strings.TrimSpace(m.Broker),
		strings.TrimSpace(m.Type),
		strings.TrimSpace(m.Subtype),
		strings.TrimSpace(m.Description),
	}, ":")
}

type row struct {
	Code          string    `json:"code"`
	DebitAccount  string    `json:"debit_account"`
	CreditAccount string    `json:"credit_account"`
	Active        bool      `json:"active"`
	VersionID     int64     `json:"version_id"`
	UpdatedBy     string    `json:"updated_by"`
	UpdatedAtUTC  string    `json:"updated_at_utc"`
	Reason        string    `json:"reason"`
	Match         Match     `json:"match"`
}

type historyEntry struct {
	VersionID   int64  `json:"version_id"`
	TimestampUTC string `json:"timestamp_utc"`
	User        string `json:"user"`
	Reason      string `json:"reason"`
	RowCount    int    `json:"row_count"`
}

type unmappedEntry struct {
	Transaction  map[string]string `json:"transaction"`
	FlaggedAtUTC string            `json:"flagged_at_utc"`
	FlaggedBy    string            `json:"flagged_by"`
}

type meta struct {
	EntityCode       string `json:"entity_code"`
	JurisdictionCode string `json:"jurisdiction_code"`
	BrokerCode       string `json:"broker_code"`
	BotID            string `json:"bot_id"`
	CreatedAtUTC     string `json:"created_at_utc"`
	UpdatedAtUTC     string `json:"updated_at_utc"`
	CoaVersion       string `json:"coa_version"`
	VersionID        int64  `json:"version_id"`
}

type table struct {
	Meta     meta            `json:"meta"`
	Version  int64           `json:"version"`
	Rows     []row           `json:"rows"`
	History  []historyEntry  `json:"history"`
	Unmapped []unmappedEntry `json:"unmapped"`
}

// Store reads/writes the mapping table live file, version snapshots, and
// audit log for one identity.
type Store struct {
	LivePath     string
	VersionsDir  string
	AuditLogPath string
	Identity     types.Identity4
}

func NewStore(livePath, versionsDir, auditLogPath string, identity types.Identity4) *Store {
	return &Store{LivePath: livePath, VersionsDir: versionsDir, AuditLogPath: auditLogPath, Identity: identity}
}

func utcNow() time.Time { return time.Now().UTC() }

func iso(t time.Time) string { return t.Format("2006-01-02T15:04:05.000000Z07:00") }

func (s *Store) bootstrap(now time.Time) (*table, error) {
	ts := iso(now)
	t := &table{
		Meta: meta{
			EntityCode: s.Identity.Entity, JurisdictionCode: s.Identity.Jurisdiction,
			BrokerCode: s.Identity.Broker, BotID: s.Identity.BotID,
			CreatedAtUTC: ts, UpdatedAtUTC: ts, CoaVersion: "v1.0.0", VersionID: 1,
		},
		Version: 1,
	}
	if err := s.writeJSON(s.LivePath, t); err != nil {
		return nil, err
	}
	snapName := fmt.Sprintf("coa_mapping_v%d_%s.json", t.Meta.VersionID, strings.ReplaceAll(ts, ":", "-"))
	if err := s.writeJSON(filepath.Join(s.VersionsDir, snapName), t); err != nil {
		return nil, err
	}
	_ = s.audit(map[string]any{"event": "bootstrap", "meta": t.Meta})
	return t, nil
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("mapping: marshal: %w", err)
	}
	return atomicio.WriteFile(path, data, 0o644)
}

func (s *Store) readTable(path string) (*table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &errs.ValidationError{Subject: "mapping table", Msg: err.Error()}
	}
	return &t, nil
}

func (s *Store) audit(event map[string]any) error {
	event["ts_utc"] = iso(utcNow())
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("mapping: marshal audit: %w", err)
	}
	return atomicio.AppendLine(s.AuditLogPath, string(data))
}

// Load reads the live table, lazily bootstrapping it if missing.
func (s *Store) Load() (*table, error) {
	if _, err := os.Stat(s.LivePath); err != nil {
		if os.IsNotExist(err) {
			return s.bootstrap(utcNow())
		}
		return nil, fmt.Errorf("mapping: stat live file: %w", err)
	}
	t, err := s.readTable(s.LivePath)
	if err != nil {
		return nil, err
	}
	t.Version = t.Meta.VersionID
	return t, nil
}

// ListActive returns every currently-active row, for API/UI display.
func (s *Store) ListActive() ([]*types.MappingRow, error) {
	t, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]*types.MappingRow, 0, len(t.Rows))
	for _, r := range t.Rows {
		if r.Active {
			out = append(out, toMappingRow(r))
		}
	}
	return out, nil
}

// LoadVersion loads a specific snapshot by version id.
func (s *Store) LoadVersion(versionID int64) (*table, error) {
	matches, err := filepath.Glob(filepath.Join(s.VersionsDir, fmt.Sprintf("coa_mapping_v%d_*.json", versionID)))
	if err != nil {
		return nil, fmt.Errorf("mapping: glob snapshots: %w", err)
	}
	if len(matches) == 0 {
		return nil, &errs.NotFoundError{Resource: fmt.Sprintf("coa mapping snapshot v%d", versionID)}
	}
	sort.Strings(matches)
	t, err := s.readTable(matches[len(matches)-1])
	if err != nil {
		return nil, err
	}
	t.Version = t.Meta.VersionID
	return t, nil
}

func (s *Store) save(t *table, user, reason string) (*table, error) {
	t.Meta.VersionID++
	now := iso(utcNow())
	t.Meta.UpdatedAtUTC = now
	t.Version = t.Meta.VersionID

	h := historyEntry{VersionID: t.Meta.VersionID, TimestampUTC: now, User: user, Reason: reason, RowCount: len(t.Rows)}
	t.History = append(t.History, h)

	if err := s.writeJSON(s.LivePath, t); err != nil {
		return nil, err
	}
	snapName := fmt.Sprintf("coa_mapping_v%d_%s.json", t.Meta.VersionID, strings.ReplaceAll(now, ":", "-"))
	if err := s.writeJSON(filepath.Join(s.VersionsDir, snapName), t); err != nil {
		return nil, err
	}
	_ = s.audit(map[string]any{"event": "save", "version_id": h.VersionID, "timestamp_utc": h.TimestampUTC, "user": h.User, "reason": h.Reason, "row_count": h.RowCount})
	return t, nil
}

// AssignRule is one assign() request.
type AssignRule struct {
	Match         Match
	Code          string // explicit override; computed from Match if empty
	DebitAccount  string
	CreditAccount string
}

// Assign deactivates any currently active row for the rule's code and
// appends a new immutable row, bumping version_id.
func (s *Store) Assign(rule AssignRule, user, reason string) (*types.MappingRow, int64, error) {
	t, err := s.Load()
	if err != nil {
		return nil, 0, err
	}
	code := rule.Code
	if code == "" {
		code = RuleCode(rule.Match)
	}
	for i := range t.Rows {
		if t.Rows[i].Code == code && t.Rows[i].Active {
			t.Rows[i].Active = false
		}
	}
	if reason == "" {
		reason = "manual assignment"
	}
	next := t.Meta.VersionID + 1
	now := utcNow()
	newRow := row{
		Code: code, DebitAccount: rule.DebitAccount, CreditAccount: rule.CreditAccount,
		Active: true, VersionID: next, UpdatedBy: user, UpdatedAtUTC: iso(now), Reason: reason, Match: rule.Match,
	}
	t.Rows = append(t.Rows, newRow)

	if _, err := s.save(t, user, reason); err != nil {
		return nil, 0, err
	}
	return toMappingRow(newRow), t.Meta.VersionID, nil
}

func toMappingRow(r row) *types.MappingRow {
	ts, _ := time.Parse("2006-01-02T15:04:05.000000Z07:00", r.UpdatedAtUTC)
	return &types.MappingRow{
		RuleCode: r.Code, DebitAccount: r.DebitAccount, CreditAccount: r.CreditAccount,
		Active: r.Active, VersionID: r.VersionID, UpdatedBy: r.UpdatedBy, UpdatedAtUTC: ts, Reason: r.Reason,
		Match: types.MatchDiscriminators{Broker: r.Match.Broker, Type: r.Match.Type, Subtype: r.Match.Subtype, Description: r.Match.Description},
	}
}

// GetForTransaction resolves the active row for a transaction's
// discriminators: exact rule-code match first (highest version_id wins
// ties), else a fallback exact match over the active rows' Match fields.
func (s *Store) GetForTransaction(want Match) (*types.MappingRow, bool, error) {
	t, err := s.Load()
	if err != nil {
		return nil, false, err
	}
	code := RuleCode(want)

	var candidates []row
	for _, r := range t.Rows {
		if r.Code == code && r.Active {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].VersionID < candidates[j].VersionID })
		return toMappingRow(candidates[len(candidates)-1]), true, nil
	}

	sorted := append([]row(nil), t.Rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VersionID < sorted[j].VersionID })
	for _, r := range sorted {
		if !r.Active {
			continue
		}
		if matchEquals(r.Match, want) {
			return toMappingRow(r), true, nil
		}
	}
	return nil, false, nil
}

func matchEquals(have, want Match) bool {
	if want.Broker != "" && have.Broker != want.Broker {
		return false
	}
	if want.Type != "" && have.Type != want.Type {
		return false
	}
	if want.Subtype != "" && have.Subtype != want.Subtype {
		return false
	}
	if want.Description != "" && have.Description != want.Description {
		return false
	}
	return true
}

// Rollback loads snapshot version_id, then re-saves its rows as a new
// version bumped past the live table's current version_id (not the
// snapshot's own frozen one), so history stays strictly monotonic even
// when rolling back to an older version than the live table has seen.
func (s *Store) Rollback(versionID int64) error {
	snap, err := s.LoadVersion(versionID)
	if err != nil {
		return err
	}
	live, err := s.Load()
	if err != nil {
		return err
	}
	snap.Meta.VersionID = live.Meta.VersionID
	_ = s.audit(map[string]any{"event": "rollback_requested", "to_version": versionID})
	_, err = s.save(snap, "system", fmt.Sprintf("rollback to v%d", versionID))
	return err
}

// Import replaces rows wholesale with a new version_id.
func (s *Store) Import(rows []AssignRule, user string) error {
	t, err := s.Load()
	if err != nil {
		return err
	}
	next := t.Meta.VersionID + 1
	now := iso(utcNow())
	newRows := make([]row, 0, len(rows))
	for _, r := range rows {
		code := r.Code
		if code == "" {
			code = RuleCode(r.Match)
		}
		newRows = append(newRows, row{
			Code: code, DebitAccount: r.DebitAccount, CreditAccount: r.CreditAccount,
			Active: true, VersionID: next, UpdatedBy: user, UpdatedAtUTC: now, Reason: "imported", Match: r.Match,
		})
	}
	t.Rows = newRows
	_, err = s.save(t, user, "imported mapping")
	return err
}

// EnsureRequired verifies required COA account prefixes are referenced by
// at least one active row, supporting an "x"-suffixed wildcard prefix
// match (e.g. "111x" matches any account beginning with "111").
func (s *Store) EnsureRequired(required []string) error {
	if len(required) == 0 {
		required = []string{"111x", "103x", "1120", "1130", "4080", "4090"}
	}
	t, err := s.Load()
	if err != nil {
		return err
	}
	var accounts []string
	for _, r := range t.Rows {
		if !r.Active {
			continue
		}
		if r.DebitAccount != "" {
			accounts = append(accounts, r.DebitAccount)
		}
		if r.CreditAccount != "" {
			accounts = append(accounts, r.CreditAccount)
		}
	}

	var missing []string
	for _, needle := range required {
		prefix := needle
		if strings.HasSuffix(needle, "x") {
			prefix = needle[:len(needle)-1]
		}
		found := false
		for _, a := range accounts {
			if strings.HasPrefix(a, prefix) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, needle)
		}
	}
	if len(missing) > 0 {
		return &errs.ValidationError{Subject: "mapping", Msg: fmt.Sprintf("required COA codes missing: %s", strings.Join(missing, ", "))}
	}
	return nil
}

// Export serializes the live table as indented JSON.
func (s *Store) Export() ([]byte, error) {
	t, err := s.Load()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(t, "", "  ")
}

// FlagUnmapped records a transaction that had no mapping match, for
// operator review.
func (s *Store) FlagUnmapped(txn map[string]string, user string) error {
	t, err := s.Load()
	if err != nil {
		return err
	}
	t.Unmapped = append(t.Unmapped, unmappedEntry{Transaction: txn, FlaggedAtUTC: iso(utcNow()), FlaggedBy: user})
	_ = s.audit(map[string]any{"event": "flag_unmapped", "user": user, "txn": txn})
	_, err = s.save(t, user, "unmapped_txn")
	return err
}

// VersionID returns the live table's current version.
func (s *Store) VersionID() (int64, error) {
	t, err := s.Load()
	if err != nil {
		return 0, err
	}
	return t.Meta.VersionID, nil
}
