package mapping

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tbotcore/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	id := types.Identity4{Entity: "ACME", Jurisdiction: "US", Broker: "ALPACA", BotID: "BOT01"}
	return NewStore(
		filepath.Join(dir, "coa_mapping_table.json"),
		filepath.Join(dir, "versions"),
		filepath.Join(dir, "coa_mapping_audit.jsonl"),
		id,
	)
}

func TestBootstrapStartsAtVersionOne(t *testing.T) {
	s := newTestStore(t)
	v, err := s.VersionID()
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
}

// TestAssignThenRollbackMonotonicVersion exercises S3: assign bumps
// version_id 1->2 and deactivates any prior active row for the same rule
// code; rollback(1) produces version_id=3 with rows equal to snapshot v1,
// not a restore-in-place to v1.
func TestAssignThenRollbackMonotonicVersion(t *testing.T) {
	s := newTestStore(t)

	rule := AssignRule{
		Match:         Match{Broker: "ALPACA", Type: "DIV"},
		DebitAccount:  "Cash",
		CreditAccount: "Income:Dividends",
	}
	row1, v, err := s.Assign(rule, "u1", "initial")
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
	require.True(t, row1.Active)
	require.Equal(t, "ALPACA:DIV::", row1.RuleCode)

	snapV1, err := s.LoadVersion(1)
	require.NoError(t, err)
	require.Empty(t, snapV1.Rows)

	v3, err := s.VersionID()
	require.NoError(t, err)
	require.Equal(t, int64(2), v3)

	require.NoError(t, s.Rollback(1))

	vAfter, err := s.VersionID()
	require.NoError(t, err)
	require.Equal(t, int64(3), vAfter)

	t3, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, t3.Rows, "rollback to v1 restores v1's empty row set")
}

func TestAssignDeactivatesPriorRowForSameCode(t *testing.T) {
	s := newTestStore(t)
	rule := AssignRule{Match: Match{Broker: "ALPACA", Type: "DIV"}, DebitAccount: "Cash", CreditAccount: "Income:Dividends"}

	_, _, err := s.Assign(rule, "u1", "first")
	require.NoError(t, err)

	rule2 := rule
	rule2.CreditAccount = "Income:Dividends:Qualified"
	row2, _, err := s.Assign(rule2, "u1", "correction")
	require.NoError(t, err)
	require.True(t, row2.Active)

	t2, err := s.Load()
	require.NoError(t, err)
	activeCount := 0
	for _, r := range t2.Rows {
		if r.Active {
			activeCount++
		}
	}
	require.Equal(t, 1, activeCount, "only the newest row for a rule code stays active")
}

func TestGetForTransactionExactThenFallback(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Assign(AssignRule{
		Match:         Match{Broker: "ALPACA", Type: "DIV"},
		DebitAccount:  "Cash",
		CreditAccount: "Income:Dividends",
	}, "u1", "seed")
	require.NoError(t, err)

	row, found, err := s.GetForTransaction(Match{Broker: "ALPACA", Type: "DIV"})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Income:Dividends", row.CreditAccount)

	_, found, err = s.GetForTransaction(Match{Broker: "ALPACA", Type: "INTEREST"})
	require.NoError(t, err)
	require.False(t, found)
}

func TestEnsureRequiredWildcardPrefix(t *testing.T) {
	s := newTestStore(t)
	err := s.EnsureRequired([]string{"111x"})
	require.Error(t, err, "no rows yet, required prefix unmet")

	_, _, err = s.Assign(AssignRule{
		Match:         Match{Broker: "ALPACA", Type: "BUY"},
		DebitAccount:  "1110-Brokerage-Equity",
		CreditAccount: "1030-Cash",
	}, "u1", "seed")
	require.NoError(t, err)

	require.NoError(t, s.EnsureRequired([]string{"111x"}))
}
