// Package coa implements the COA Store (C2): loading, validating, and
// atomically saving the hierarchical Chart of Accounts forest, grounded
// on the original's tbot_ledger_coa.json / tbot_ledger_coa_metadata.json
// pair and the spec's §4.1 description.
package coa

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"tbotcore/internal/atomicio"
	"tbotcore/internal/errs"
	"tbotcore/internal/types"
)

// Metadata mirrors the companion document next to the account tree.
type Metadata struct {
	CurrencyCode     string    `json:"currency_code"`
	EntityCode       string    `json:"entity_code"`
	JurisdictionCode string    `json:"jurisdiction_code"`
	CoaVersion       string    `json:"coa_version"`
	CreatedAtUTC     time.Time `json:"created_at_utc"`
	LastUpdatedUTC   time.Time `json:"last_updated_utc"`
}

// FlatAccount is one flattened view row: code, name, and colon-delimited
// path from the forest root.
type FlatAccount struct {
	Code string
	Name string
	Path string
}

// Loaded is the result of Load(): the raw forest plus two flattened views.
type Loaded struct {
	Accounts               []*types.Account
	AccountsFlat           []FlatAccount
	AccountsFlatDropdown   []FlatAccount // excludes inactive nodes
}

// Store reads/writes the COA tree and metadata at fixed paths.
type Store struct {
	TreePath     string
	MetadataPath string
	AuditLogPath string
}

func NewStore(treePath, metadataPath, auditLogPath string) *Store {
	return &Store{TreePath: treePath, MetadataPath: metadataPath, AuditLogPath: auditLogPath}
}

// Load reads the account forest and flattens it into code/name and
// code/label dropdown views, excluding inactive nodes from the dropdown.
func (s *Store) Load() (*Loaded, error) {
	data, err := os.ReadFile(s.TreePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.NotFoundError{Resource: s.TreePath}
		}
		return nil, fmt.Errorf("coa: read tree: %w", err)
	}
	var accounts []*types.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, &errs.ValidationError{Subject: "coa tree", Msg: err.Error()}
	}
	if err := Validate(accounts); err != nil {
		return nil, err
	}

	var flat, dropdown []FlatAccount
	var walk func(nodes []*types.Account, prefix string)
	walk = func(nodes []*types.Account, prefix string) {
		for _, n := range nodes {
			path := n.Name
			if prefix != "" {
				path = prefix + ":" + n.Name
			}
			row := FlatAccount{Code: n.Code, Name: n.Name, Path: path}
			flat = append(flat, row)
			if n.Active {
				dropdown = append(dropdown, row)
			}
			if len(n.Children) > 0 {
				walk(n.Children, path)
			}
		}
	}
	walk(accounts, "")

	return &Loaded{Accounts: accounts, AccountsFlat: flat, AccountsFlatDropdown: dropdown}, nil
}

// Validate checks the forest is non-empty, every node has code+name, and
// codes are unique across the whole tree.
func Validate(accounts []*types.Account) error {
	if len(accounts) == 0 {
		return &errs.ValidationError{Subject: "coa tree", Msg: "forest is empty"}
	}
	seen := map[string]bool{}
	var walk func(nodes []*types.Account) error
	walk = func(nodes []*types.Account) error {
		for _, n := range nodes {
			if n.Code == "" {
				return &errs.ValidationError{Subject: "coa node", Msg: "missing code"}
			}
			if n.Name == "" {
				return &errs.ValidationError{Subject: n.Code, Msg: "missing name"}
			}
			if seen[n.Code] {
				return &errs.ValidationError{Subject: n.Code, Msg: "duplicate code"}
			}
			seen[n.Code] = true
			if n.Children != nil {
				if err := walk(n.Children); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(accounts)
}

// Save validates, atomically writes the tree, bumps metadata's
// last_updated_utc, and prepends a bounded (last 100) audit log entry
// with a unified-diff of the JSON.
func (s *Store) Save(accounts []*types.Account, user, summary string, now time.Time) error {
	if err := Validate(accounts); err != nil {
		return err
	}

	before, _ := os.ReadFile(s.TreePath)

	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("coa: marshal tree: %w", err)
	}
	if err := atomicio.WriteFile(s.TreePath, data, 0o644); err != nil {
		return fmt.Errorf("coa: write tree: %w", err)
	}

	if err := s.touchMetadata(now); err != nil {
		return err
	}

	diff := unifiedDiff(string(before), string(data))
	return s.appendAudit(user, summary, diff, now)
}

func (s *Store) touchMetadata(now time.Time) error {
	var meta Metadata
	if data, err := os.ReadFile(s.MetadataPath); err == nil {
		_ = json.Unmarshal(data, &meta)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("coa: read metadata: %w", err)
	}
	meta.LastUpdatedUTC = now.UTC()
	if meta.CreatedAtUTC.IsZero() {
		meta.CreatedAtUTC = now.UTC()
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("coa: marshal metadata: %w", err)
	}
	return atomicio.WriteFile(s.MetadataPath, data, 0o644)
}

type auditEntry struct {
	TSUTC   time.Time `json:"ts_utc"`
	User    string    `json:"user"`
	Summary string    `json:"summary"`
	Diff    string    `json:"diff"`
}

// appendAudit keeps at most the last 100 entries, prepending the newest.
func (s *Store) appendAudit(user, summary, diff string, now time.Time) error {
	var entries []auditEntry
	if data, err := os.ReadFile(s.AuditLogPath); err == nil {
		_ = json.Unmarshal(data, &entries)
	}
	entries = append([]auditEntry{{TSUTC: now.UTC(), User: user, Summary: summary, Diff: diff}}, entries...)
	if len(entries) > 100 {
		entries = entries[:100]
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("coa: marshal audit: %w", err)
	}
	return atomicio.WriteFile(s.AuditLogPath, data, 0o644)
}

// unifiedDiff produces a minimal line-based diff; this is not a full LCS
// diff, just enough to record what changed in the bounded audit log.
func unifiedDiff(before, after string) string {
	if before == after {
		return ""
	}
	beforeLines := strings.Split(before, "\n")
	afterLines := strings.Split(after, "\n")
	var b strings.Builder
	max := len(beforeLines)
	if len(afterLines) > max {
		max = len(afterLines)
	}
	for i := 0; i < max; i++ {
		var bl, al string
		if i < len(beforeLines) {
			bl = beforeLines[i]
		}
		if i < len(afterLines) {
			al = afterLines[i]
		}
		if bl == al {
			continue
		}
		if bl != "" {
			fmt.Fprintf(&b, "-%s\n", bl)
		}
		if al != "" {
			fmt.Fprintf(&b, "+%s\n", al)
		}
	}
	return b.String()
}
