package backtest

import (
	"testing"
	"time"

	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/stretchr/testify/assert"
)

func mkTrade(entry, exit, qty float64) signal.Trade {
	return signal.Trade{EntryPrice: entry, ExitPrice: exit, Quantity: qty, PnLUSD: (exit - entry) * qty}
}

func TestCalculate_EmptyTradesReturnsZeroMetrics(t *testing.T) {
	m := Calculate(nil, nil, 10000, 10000, time.Now(), time.Now())
	assert.Equal(t, Metrics{}, m)
}

func TestCalculate_WinRateAndProfitFactor(t *testing.T) {
	trades := []signal.Trade{
		mkTrade(100, 110, 10), // +100
		mkTrade(100, 90, 10),  // -100
		mkTrade(100, 120, 10), // +200
	}
	equity := []float64{10000, 10100, 10000, 10200}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 90)

	m := Calculate(trades, equity, 10000, 10200, start, end)
	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 66.67, m.WinRatePct, 0.1)
	assert.InDelta(t, 3.0, m.ProfitFactor, 0.01)
}

func TestCalculate_CAGRPositiveOverAYear(t *testing.T) {
	trades := []signal.Trade{mkTrade(100, 110, 10)}
	equity := []float64{10000, 11000}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	m := Calculate(trades, equity, 10000, 11000, start, end)
	assert.InDelta(t, 10.0, m.CAGR, 0.5)
}

func TestMaxDrawdownPct_TracksLargestDeclineFromRunningPeak(t *testing.T) {
	dd := maxDrawdownPct([]float64{100, 120, 90, 130, 80})
	assert.InDelta(t, 38.46, dd, 0.1) // (130-80)/130
}

func TestMaxDrawdownPct_ZeroForMonotonicIncrease(t *testing.T) {
	dd := maxDrawdownPct([]float64{100, 110, 120, 130})
	assert.Equal(t, 0.0, dd)
}

func TestCalculate_CalmarDividesCAGRByMaxDrawdown(t *testing.T) {
	trades := []signal.Trade{mkTrade(100, 110, 10), mkTrade(100, 95, 10)}
	equity := []float64{10000, 11000, 10500}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	m := Calculate(trades, equity, 10000, 10500, start, end)
	if m.MaxDrawdownPct > 0 {
		assert.InDelta(t, m.CAGR/m.MaxDrawdownPct, m.Calmar, 0.01)
	}
}
