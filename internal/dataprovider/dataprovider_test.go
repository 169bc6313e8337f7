package dataprovider

import (
	"testing"
	"time"

	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	candles  []signal.Candle
	higherTF []signal.Candle
}

func (f fakeSource) Candles(symbol, interval string) ([]signal.Candle, error) { return f.candles, nil }
func (f fakeSource) HigherTimeframeCandles(symbol, higherInterval string) ([]signal.Candle, error) {
	return f.higherTF, nil
}
func (f fakeSource) LatestFunding(symbol string) (float64, error)      { return 0.0001, nil }
func (f fakeSource) LatestOpenInterest(symbol string) (float64, error) { return 1000.0, nil }

func mkCandle(t time.Time) signal.Candle {
	return signal.Candle{Symbol: "BTCUSDT", Interval: "1h", OpenTime: t, Close: 100}
}

func TestAssemble_FreshDataSucceeds(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	candles := []signal.Candle{mkCandle(now.Add(-2 * time.Hour)), mkCandle(now.Add(-1 * time.Hour)), mkCandle(now.Add(-20 * time.Minute))}

	p := &Provider{Source: fakeSource{candles: candles}, Cache: NewMemoryCache(), Cfg: DefaultFreshnessConfig(), Now: func() time.Time { return now }}
	inputs, err := p.Assemble("BTCUSDT", "1h", "4h")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", inputs.Symbol)
	assert.Len(t, inputs.Candles, 3)
}

func TestAssemble_StaleDataReturnsFreshnessError(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	candles := []signal.Candle{mkCandle(now.Add(-5 * time.Hour))}

	p := &Provider{Source: fakeSource{candles: candles}, Cache: NewMemoryCache(), Cfg: DefaultFreshnessConfig(), Now: func() time.Time { return now }}
	_, err := p.Assemble("BTCUSDT", "1h", "4h")
	require.Error(t, err)
	var freshErr *xerrors.DataFreshnessError
	require.ErrorAs(t, err, &freshErr)
}

func TestAssemble_UnresolvedGapReturnsGapError(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	candles := []signal.Candle{
		mkCandle(now.Add(-6 * time.Hour)),
		mkCandle(now.Add(-10 * time.Minute)), // ~6h jump, way beyond tolerance
	}

	p := &Provider{Source: fakeSource{candles: candles}, Cache: NewMemoryCache(), Cfg: DefaultFreshnessConfig(), Now: func() time.Time { return now }}
	_, err := p.Assemble("BTCUSDT", "1h", "4h")
	require.Error(t, err)
	var gapErr *xerrors.DataGapError
	require.ErrorAs(t, err, &gapErr)
}

func TestAssemble_CachesSnapshot(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	candles := []signal.Candle{mkCandle(now.Add(-20 * time.Minute))}

	cache := NewMemoryCache()
	p := &Provider{Source: fakeSource{candles: candles}, Cache: cache, Cfg: DefaultFreshnessConfig(), Now: func() time.Time { return now }}
	_, err := p.Assemble("BTCUSDT", "1h", "4h")
	require.NoError(t, err)

	_, ok := cache.Get("signalinputs:BTCUSDT:1h")
	assert.True(t, ok)
}
