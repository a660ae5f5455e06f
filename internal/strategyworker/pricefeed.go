package strategyworker

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// PriceFeed supplies the current price and optional ATR a strategy
// worker needs to evaluate trailing stops. Broker market-data adapters
// are out of scope for the core; production wiring supplies its own
// implementation at the call site.
type PriceFeed interface {
	Quote(symbol string) (price decimal.Decimal, atr *decimal.Decimal, err error)
}

// fixtureQuote is one row of a FileFixturePriceFeed's backing JSON file.
type fixtureQuote struct {
	Symbol string  `json:"symbol"`
	Price  string  `json:"price"`
	ATR    *string `json:"atr,omitempty"`
}

// FileFixturePriceFeed reads quotes from a JSON file, used in tests and
// dry runs in place of a live broker market-data adapter.
type FileFixturePriceFeed struct {
	quotes map[string]fixtureQuote
}

// LoadFileFixturePriceFeed parses a JSON array of {symbol, price, atr?}.
func LoadFileFixturePriceFeed(path string) (*FileFixturePriceFeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []fixtureQuote
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse price fixture %s: %w", path, err)
	}
	feed := &FileFixturePriceFeed{quotes: make(map[string]fixtureQuote, len(rows))}
	for _, r := range rows {
		feed.quotes[r.Symbol] = r
	}
	return feed, nil
}

func (f *FileFixturePriceFeed) Quote(symbol string) (decimal.Decimal, *decimal.Decimal, error) {
	q, ok := f.quotes[symbol]
	if !ok {
		return decimal.Zero, nil, fmt.Errorf("no fixture quote for %s", symbol)
	}
	price, err := decimal.NewFromString(q.Price)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if q.ATR == nil {
		return price, nil, nil
	}
	atr, err := decimal.NewFromString(*q.ATR)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return price, &atr, nil
}
