package main

import (
	"github.com/quantcandle/signalengine/internal/backtest"
	"github.com/quantcandle/signalengine/internal/indicator"
	"github.com/quantcandle/signalengine/internal/regime"
	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/strategy"
)

// replayStrategy adapts the live strategy ensemble (C5/C6) into a
// backtest.StrategyFunc: at every bar it re-detects regime, re-runs the
// aggregator against the candle history visible up to that bar, and
// opens a position whenever the ensemble is not flat, sized off an ATR
// band exactly as internal/orchestrator does for live publication — so
// a backtest campaign exercises the same decision path a recommendation
// would.
func replayStrategy(agg *strategy.Aggregator, detector *regime.Detector) backtest.StrategyFunc {
	return func(history []signal.Candle, idx int) *backtest.EntrySignal {
		if idx < 20 {
			return nil // not enough history for indicators to warm up
		}
		window := history[:idx+1]

		closes := closesOf(window)
		highs := highsOf(window)
		lows := lowsOf(window)

		adx := indicator.ADX(highs, lows, closes, 14)
		ema := indicator.EMASeries(closes, 20)
		bb := indicator.Bollinger(closes, 20, 2.0)
		volNow := indicator.RealizedVolatility(closes, 20, 365*24)
		volAvg := indicator.RealizedVolatility(closes, 60, 365*24)

		var emaSlope float64
		if len(ema) >= 2 && !isNaN(ema[len(ema)-1]) && !isNaN(ema[len(ema)-2]) && ema[len(ema)-2] != 0 {
			emaSlope = (ema[len(ema)-1] - ema[len(ema)-2]) / ema[len(ema)-2] * 100
		}
		var bbWidth float64
		if bb.IsValid && bb.Middle != 0 {
			bbWidth = (bb.Upper - bb.Lower) / bb.Middle * 100
		}

		ind := regime.Indicators{
			ADX:               valueOrZero(adx),
			EMASlopePct:       emaSlope,
			RealizedVolAnnPct: valueOrZero(volNow) * 100,
			VolAvgAnnPct:      valueOrZero(volAvg) * 100,
			BBWidthPct:        bbWidth,
		}

		detection := detector.DetectRegime(ind)
		inputs := signal.SignalDataInputs{
			Symbol:   "",
			Interval: "",
			Candles:  window,
			HigherTF: window,
		}
		decision := agg.Aggregate(inputs, detection.Regime)
		if decision.Direction == signal.DirectionHold {
			return nil
		}

		entry := closes[len(closes)-1]
		atr := indicator.ATR(highs, lows, closes, 14)
		atrVal := entry * 0.02
		if atr.IsValid {
			atrVal = atr.Value
		}

		sig := &backtest.EntrySignal{Direction: decision.Direction}
		if decision.Direction == signal.DirectionBuy {
			sig.StopLoss = entry - 1.5*atrVal
			sig.TakeProfit = entry + 2.5*atrVal
		} else {
			sig.StopLoss = entry + 1.5*atrVal
			sig.TakeProfit = entry - 2.5*atrVal
		}
		return sig
	}
}

func closesOf(candles []signal.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func highsOf(candles []signal.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func lowsOf(candles []signal.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

func valueOrZero(r indicator.Result) float64 {
	if !r.IsValid {
		return 0
	}
	return r.Value
}

func isNaN(v float64) bool { return v != v }
