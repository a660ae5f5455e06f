package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tbotcore/internal/types"
)

func testIdentity() types.Identity4 {
	return types.Identity4{Entity: "ACME", Jurisdiction: "US", Broker: "ALPACA", BotID: "BOT01"}
}

func TestTradeFITIDStableAcrossRenormalization(t *testing.T) {
	raw := RawFields{
		"symbol": "AAPL", "action": "buy", "quantity": 5.0, "price": 100.0,
		"fee": 0.5, "trade_id": "T1", "datetime_utc": "2025-02-10T14:30:00Z",
	}
	rec1, err := Trade(raw, testIdentity())
	require.NoError(t, err)
	rec2, err := Trade(raw, testIdentity())
	require.NoError(t, err)
	require.Equal(t, rec1.FITID, rec2.FITID)
	require.Equal(t, rec1.GroupID, rec2.GroupID)
}

func TestTradeEconomicsAndTRNTYPE(t *testing.T) {
	raw := RawFields{
		"symbol": "AAPL", "action": "buy", "quantity": 5.0, "price": 100.0,
		"fee": 0.5, "trade_id": "T1", "datetime_utc": "2025-02-10T14:30:00Z",
	}
	rec, err := Trade(raw, testIdentity())
	require.NoError(t, err)
	require.Equal(t, types.TrnBuy, rec.TRNTYPE)
	require.True(t, rec.TotalValue.Equal(rec.Quantity.Mul(rec.Price)))
	require.False(t, rec.DTPosted.IsZero())
}

func TestCashFallsBackToQtyTimesPriceWhenAmountMissing(t *testing.T) {
	raw := RawFields{"activity_type": "DIV", "quantity": 1.0, "price": 12.5, "activity_id": "A1"}
	rec, err := Cash(raw, testIdentity())
	require.NoError(t, err)
	require.Equal(t, types.TrnDividend, rec.TRNTYPE)
	require.True(t, rec.Amount.Equal(rec.Quantity.Mul(rec.Price)))
}

func TestPositionDefaultsToPOS(t *testing.T) {
	raw := RawFields{"symbol": "MSFT", "qty": 10.0, "avg_entry_price": 300.0}
	rec, err := Position(raw, testIdentity())
	require.NoError(t, err)
	require.Equal(t, types.TrnPosition, rec.TRNTYPE)
	require.True(t, rec.MarketValue.Equal(rec.Qty.Mul(rec.AvgEntryPrice)))
}

func TestUnknownActionMapsToOther(t *testing.T) {
	raw := RawFields{"symbol": "AAPL", "action": "reorg", "quantity": 1.0, "price": 1.0}
	rec, err := Trade(raw, testIdentity())
	require.NoError(t, err)
	require.Equal(t, types.TrnOther, rec.TRNTYPE)
}
