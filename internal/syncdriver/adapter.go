// Package syncdriver orchestrates one broker sync run: snapshot, fetch,
// normalize, dedupe, compliance-filter, opening-balance bootstrap, and
// double-entry posting, per §4.7. Broker HTTP adapters are out of scope
// for the core (see spec's out-of-scope collaborators); BrokerAdapter is
// the seam production wiring implements, and FileFixtureAdapter is the
// only adapter shipped here, grounded on the teacher's Trader interface
// shape (trader/auto_trader.go, trader/alpaca_trader.go).
package syncdriver

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tbotcore/internal/normalize"
)

// BrokerAdapter fetches raw broker payloads for a date range. Each
// returned map is passed through normalize.Trade/Cash unmodified.
type BrokerAdapter interface {
	FetchTrades(from, to time.Time) ([]normalize.RawFields, error)
	FetchCashActivities(from, to time.Time) ([]normalize.RawFields, error)
}

// fixtureFile is the on-disk shape a FileFixtureAdapter reads.
type fixtureFile struct {
	Trades          []normalize.RawFields `json:"trades"`
	CashActivities  []normalize.RawFields `json:"cash_activities"`
}

// FileFixtureAdapter replays a recorded JSON fixture instead of calling a
// live broker, used by tests and by operators running the sync driver
// against recorded data.
type FileFixtureAdapter struct {
	data fixtureFile
}

// LoadFileFixtureAdapter reads a fixture file shaped
// {"trades": [...], "cash_activities": [...]}.
func LoadFileFixtureAdapter(path string) (*FileFixtureAdapter, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data fixtureFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse sync fixture %s: %w", path, err)
	}
	return &FileFixtureAdapter{data: data}, nil
}

func (f *FileFixtureAdapter) FetchTrades(from, to time.Time) ([]normalize.RawFields, error) {
	return f.data.Trades, nil
}

func (f *FileFixtureAdapter) FetchCashActivities(from, to time.Time) ([]normalize.RawFields, error) {
	return f.data.CashActivities, nil
}
