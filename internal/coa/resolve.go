package coa

import (
	"encoding/json"
	"os"
	"strings"
)

// DefaultAccounts are the fixed fallback account paths used when the live
// COA tree has no keyword match, grounded on ledger_posting.py's
// DEFAULT_ACCOUNTS.
var DefaultAccounts = map[string]string{
	"cash":              "Assets:Brokerage:Cash",
	"equity_prefix":     "Assets:Brokerage:Equity:",
	"short_prefix":      "Liabilities:Short Positions:",
	"fees":              "Expenses:Brokerage Fees",
	"realized_pnl":      "Income:Realized Gains - Equities",
	"dividends":         "Income:Dividends Earned",
	"interest":          "Income:Interest Income",
	"equity_contrib":    "Equity:Capital Contributions",
	"owner_withdrawals": "Equity:Owner Withdrawals",
	"opening_equity":    "Equity:Opening Balances",
	"unallocated":       "Equity:Unallocated Equity Positions",
}

type coaNode struct {
	Name     string    `json:"name"`
	Title    string    `json:"title"`
	Label    string    `json:"label"`
	Code     string    `json:"code"`
	Children []coaNode `json:"children"`
}

type coaDoc struct {
	Accounts []coaNode `json:"accounts"`
}

// CoalesceAccounts reads the COA JSON at treePath and keyword-matches
// account name paths into the same roles DEFAULT_ACCOUNTS covers, falling
// back to the default path for any role with no match. Matching is
// tolerant to arbitrary prefixes/numbering, mirroring
// ledger_posting.py's _coalesce_accounts.
func CoalesceAccounts(treePath string) map[string]string {
	acc := make(map[string]string, len(DefaultAccounts))
	for k, v := range DefaultAccounts {
		acc[k] = v
	}

	data, err := os.ReadFile(treePath)
	if err != nil {
		return acc
	}

	var nodes []coaNode
	var doc coaDoc
	if err := json.Unmarshal(data, &doc); err == nil && len(doc.Accounts) > 0 {
		nodes = doc.Accounts
	} else {
		_ = json.Unmarshal(data, &nodes)
	}

	found := map[string]string{}
	pick := func(key, full string, isPrefix bool) {
		if _, ok := found[key]; ok {
			return
		}
		if isPrefix && !strings.HasSuffix(full, ":") {
			full += ":"
		}
		found[key] = full
	}

	var walk func(nodes []coaNode, path string)
	walk = func(nodes []coaNode, path string) {
		for _, n := range nodes {
			name := strings.TrimSpace(firstNonEmpty(n.Name, n.Title, n.Label, n.Code))
			full := strings.Trim(path+name, ":")
			lower := strings.ToLower(full)

			if strings.Contains(lower, "broker") && strings.Contains(lower, "cash") {
				pick("cash", full, false)
			}
			if (strings.Contains(lower, "broker") || strings.Contains(lower, "brokerage")) &&
				(strings.Contains(lower, "equities") || strings.Contains(lower, "equity") || strings.Contains(lower, "stock")) {
				pick("equity_prefix", full, true)
			}
			if strings.Contains(lower, "short") && (strings.Contains(lower, "liab") || strings.Contains(lower, "position")) {
				pick("short_prefix", full, true)
			}
			if strings.Contains(lower, "realized") && strings.Contains(lower, "gain") {
				pick("realized_pnl", full, false)
			}
			if strings.Contains(lower, "dividend") {
				pick("dividends", full, false)
			}
			if strings.Contains(lower, "interest") {
				pick("interest", full, false)
			}
			if strings.Contains(lower, "broker fee") || strings.Contains(lower, "brokerage fee") || strings.Contains(lower, "commission") {
				pick("fees", full, false)
			}
			if strings.Contains(lower, "capital") && strings.Contains(lower, "contribution") {
				pick("equity_contrib", full, false)
			}
			if strings.Contains(lower, "owner") && strings.Contains(lower, "withdraw") {
				pick("owner_withdrawals", full, false)
			}
			if strings.Contains(lower, "opening") && strings.Contains(lower, "balance") {
				pick("opening_equity", full, false)
			}
			if strings.Contains(lower, "unallocated") {
				pick("unallocated", full, false)
			}

			if len(n.Children) > 0 {
				walk(n.Children, full+":")
			}
		}
	}
	walk(nodes, "")

	for k, v := range found {
		acc[k] = v
	}
	return acc
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// EquityAccount returns the per-symbol equity account path.
func EquityAccount(acc map[string]string, symbol string) string {
	if symbol == "" {
		symbol = "UNKNOWN"
	}
	return acc["equity_prefix"] + strings.ToUpper(symbol)
}

// ShortAccount returns the per-symbol short-liability account path.
func ShortAccount(acc map[string]string, symbol string) string {
	if symbol == "" {
		symbol = "UNKNOWN"
	}
	return acc["short_prefix"] + strings.ToUpper(symbol)
}

// FindCodeByNamePath looks up a flattened COA view for an entry whose
// colon-delimited Path matches namePath case-insensitively, grounded on
// ledger_opening_balance.py's _find_code_by_name_path.
func FindCodeByNamePath(flat []FlatAccount, namePath string) (string, bool) {
	target := strings.ToLower(namePath)
	for _, f := range flat {
		if strings.ToLower(f.Path) == target {
			return f.Code, true
		}
	}
	return "", false
}
