package ingest

import (
	"testing"
	"time"

	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkCandle(venue string, t time.Time, close_, volume float64) signal.Candle {
	return signal.Candle{Symbol: "BTCUSDT", Interval: "1h", OpenTime: t, Open: close_, High: close_, Low: close_, Close: close_, Volume: volume, Source: venue}
}

func TestCurate_PrefersDeepestLiquidityPerBucket(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	frames := []VenueFrame{
		{Venue: "binance", Candles: []signal.Candle{mkCandle("binance", t0, 100, 500)}},
		{Venue: "kraken", Candles: []signal.Candle{mkCandle("kraken", t0, 101, 900)}},
	}

	curated := Curate(frames, "BTCUSDT", "1h", time.Hour)
	require.Len(t, curated.Candles, 1)
	assert.Equal(t, "kraken", curated.Candles[0].Source)
	assert.Equal(t, 101.0, curated.Candles[0].Close)
}

func TestCurate_ForwardFillsSmallGap(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	frames := []VenueFrame{{Venue: "binance", Candles: []signal.Candle{
		mkCandle("binance", t0, 100, 500),
		mkCandle("binance", t0.Add(2*time.Hour), 103, 400), // 1 missing bar at t0+1h
	}}}

	curated := Curate(frames, "BTCUSDT", "1h", time.Hour)
	require.Len(t, curated.Candles, 3)
	assert.Equal(t, "fill", curated.Candles[1].Source)
	assert.Equal(t, 100.0, curated.Candles[1].Close)
	assert.Equal(t, 0.0, curated.Candles[1].Volume)
	assert.Equal(t, 1, curated.FillCount)
	assert.Empty(t, curated.Gaps)
}

func TestCurate_LargeGapRecordedNotFilled(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	frames := []VenueFrame{{Venue: "binance", Candles: []signal.Candle{
		mkCandle("binance", t0, 100, 500),
		mkCandle("binance", t0.Add(6*time.Hour), 103, 400), // 5 missing bars, exceeds MaxFillBars
	}}}

	curated := Curate(frames, "BTCUSDT", "1h", time.Hour)
	require.Len(t, curated.Candles, 2) // unfilled: only the two real bars
	require.Len(t, curated.Gaps, 1)
	assert.Equal(t, 5, curated.Gaps[0].Bars)
}

func TestAnnotateRelativeVolume_NeutralBeforeLookbackFull(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]signal.Candle, 5)
	for i := range candles {
		candles[i] = mkCandle("binance", t0.Add(time.Duration(i)*time.Hour), 100, 500)
	}
	annotateRelativeVolume(candles)
	for _, c := range candles {
		assert.Equal(t, 1.0, c.RelativeVolume)
	}
}

func TestAnnotateRelativeVolume_SurgeAboveAverage(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]signal.Candle, RelativeVolumeLookback+1)
	for i := 0; i < RelativeVolumeLookback; i++ {
		candles[i] = mkCandle("binance", t0.Add(time.Duration(i)*time.Hour), 100, 100)
	}
	candles[RelativeVolumeLookback] = mkCandle("binance", t0.Add(time.Duration(RelativeVolumeLookback)*time.Hour), 100, 300)

	annotateRelativeVolume(candles)
	assert.InDelta(t, 3.0, candles[RelativeVolumeLookback].RelativeVolume, 1e-9)
}
