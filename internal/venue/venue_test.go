package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKrakenSymbol_RemapsBTCToXBT(t *testing.T) {
	assert.Equal(t, "XBTUSDT", krakenSymbol("BTCUSDT"))
	assert.Equal(t, "ETHUSDT", krakenSymbol("ETHUSDT"))
}

func TestSymbolWithDash_SplitsQuoteCurrency(t *testing.T) {
	assert.Equal(t, "BTC-USDT", symbolWithDash("BTCUSDT"))
	assert.Equal(t, "ETH-USDT", symbolWithDash("ETHUSDT"))
}

func TestOkxInstID_AppendsSwapSuffix(t *testing.T) {
	assert.Equal(t, "BTC-USDT-SWAP", okxInstID("BTCUSDT"))
}

func TestIntervalToMinutes_KnownIntervals(t *testing.T) {
	assert.Equal(t, 1, intervalToMinutes("1m"))
	assert.Equal(t, 60, intervalToMinutes("1h"))
	assert.Equal(t, 1440, intervalToMinutes("1d"))
}

func TestOkxBar_MapsHourAndDayToUppercase(t *testing.T) {
	assert.Equal(t, "1H", okxBar("1h"))
	assert.Equal(t, "1D", okxBar("1d"))
	assert.Equal(t, "15m", okxBar("15m"))
}

func TestLiveBook_ApplyDiffSortsAndDropsZeroSize(t *testing.T) {
	b := newLiveBook("btcusdt")
	b.applyDiff([]byte(`{"bids":[["100.0","1.5"],["101.0","0.0"],["99.0","2.0"]],"asks":[["102.0","1.0"],["103.0","0.5"]]}`))

	snap := b.snapshot("BTCUSDT")
	assert.Equal(t, 100.0, snap.BestBid)
	assert.Equal(t, 102.0, snap.BestAsk)
	assert.Len(t, snap.Bids, 2) // the zero-size level at 101.0 is dropped
	assert.Equal(t, 99.0, snap.Bids[1].Price)
}
