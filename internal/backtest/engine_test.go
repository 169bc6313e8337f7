package backtest

import (
	"testing"
	"time"

	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkCandleSeries(n int, start float64, step float64) []signal.Candle {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]signal.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		candles[i] = signal.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price * 1.01,
			Low:      price * 0.99,
			Close:    price + step,
			Volume:   1000,
		}
		price += step
	}
	return candles
}

func TestRunCampaign_EnterOnceAndExitOnTakeProfit(t *testing.T) {
	candles := mkCandleSeries(10, 100, 1)
	window := Window{Start: candles[0].OpenTime, End: candles[len(candles)-1].OpenTime, Role: RoleTest}

	entered := false
	strategy := func(history []signal.Candle, idx int) *EntrySignal {
		if entered || idx == 0 {
			return nil
		}
		entered = true
		last := history[len(history)-1]
		return &EntrySignal{
			Direction:  signal.DirectionBuy,
			StopLoss:   last.Close * 0.9,
			TakeProfit: last.Close * 1.02,
		}
	}

	params := Params{Symbol: "BTCUSDT", Interval: "1h", InitialCapital: 10000, RiskPerTradePct: 0.01}
	result, err := RunCampaign(params, candles, window, strategy, DefaultExecutionModel())
	require.NoError(t, err)

	assert.NotEmpty(t, result.Trades)
	assert.Equal(t, CampaignID(params, window.Start, window.End), result.CampaignID)
	assert.Len(t, result.EquityCurve, len(candles))
}

func TestRunCampaign_FlatStrategyProducesNoTrades(t *testing.T) {
	candles := mkCandleSeries(5, 100, 0.1)
	window := Window{Start: candles[0].OpenTime, End: candles[len(candles)-1].OpenTime, Role: RoleTest}

	strategy := func(history []signal.Candle, idx int) *EntrySignal { return nil }
	params := Params{Symbol: "BTCUSDT", Interval: "1h", InitialCapital: 10000, RiskPerTradePct: 0.01}

	result, err := RunCampaign(params, candles, window, strategy, DefaultExecutionModel())
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Equal(t, params.InitialCapital, result.FinalCapital)
}

func TestRunCampaign_ForceClosesOpenPositionAtWindowEnd(t *testing.T) {
	candles := mkCandleSeries(6, 100, 0.05)
	window := Window{Start: candles[0].OpenTime, End: candles[len(candles)-1].OpenTime, Role: RoleTest}

	opened := false
	strategy := func(history []signal.Candle, idx int) *EntrySignal {
		if opened || idx != 1 {
			return nil
		}
		opened = true
		last := history[len(history)-1]
		return &EntrySignal{Direction: signal.DirectionBuy, StopLoss: last.Close * 0.5, TakeProfit: last.Close * 5}
	}

	params := Params{Symbol: "BTCUSDT", Interval: "1h", InitialCapital: 10000, RiskPerTradePct: 0.01}
	result, err := RunCampaign(params, candles, window, strategy, DefaultExecutionModel())
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, string(ExitTimeout), result.Trades[0].ExitReason)
}
