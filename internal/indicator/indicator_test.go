package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRSI_InsufficientHistoryInvalid(t *testing.T) {
	r := RSI([]float64{1, 2, 3}, 14)
	assert.False(t, r.IsValid)
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 0, 20)
	p := 100.0
	for i := 0; i < 20; i++ {
		closes = append(closes, p)
		p += 1
	}
	r := RSI(closes, 14)
	assert.True(t, r.IsValid)
	assert.InDelta(t, 100.0, r.Value, 0.001)
}

func TestSMA_MatchesArithmeticMean(t *testing.T) {
	r := SMA([]float64{1, 2, 3, 4, 5}, 5)
	assert.True(t, r.IsValid)
	assert.InDelta(t, 3.0, r.Value, 1e-9)
}

func TestEMA_SeedsWithSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	series := EMASeries(closes, 5)
	assert.InDelta(t, 3.0, series[4], 1e-9) // first valid EMA value equals the SMA seed
}

func TestBollinger_BandsStraddleMiddle(t *testing.T) {
	closes := []float64{10, 11, 9, 10, 12, 8, 10, 11, 9, 10}
	bands := Bollinger(closes, 10, 2.0)
	assert.True(t, bands.IsValid)
	assert.Greater(t, bands.Upper, bands.Middle)
	assert.Less(t, bands.Lower, bands.Middle)
}

func TestMomentum_ZeroChangeIsZero(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100}
	r := Momentum(closes, 4)
	assert.True(t, r.IsValid)
	assert.InDelta(t, 0.0, r.Value, 1e-9)
}

func TestVWAP_SingleBarEqualsTypicalPrice(t *testing.T) {
	r := VWAP([]float64{10}, []float64{8}, []float64{9}, []float64{100})
	assert.True(t, r.IsValid)
	assert.InDelta(t, 9.0, r.Value, 1e-9)
}

func TestATR_NoLookaheadOnShortHistory(t *testing.T) {
	r := ATR([]float64{1, 2}, []float64{1, 2}, []float64{1, 2}, 14)
	assert.False(t, r.IsValid)
	assert.True(t, math.IsNaN(r.Value))
}
