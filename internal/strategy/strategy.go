// Package strategy implements the four stateless ensemble strategies and
// the regime-weighted aggregator (C6). Each strategy is a pure function
// of signal.SignalDataInputs plus its own parameter struct — no shared
// state, no I/O, so the same inputs always produce the same vote.
//
// Grounded on the teacher's internal/domain/regime/weights.go preset
// shape (per-factor weight tables combined into a single score) and its
// internal/scoring residual-composition idiom (weighted factor sum
// clipped into a bounded range), retargeted here from a single
// composite score into one StrategyVote per named strategy.
package strategy

import (
	"math"

	"github.com/quantcandle/signalengine/internal/indicator"
	"github.com/quantcandle/signalengine/internal/signal"
)

// Strategy is the shared contract every ensemble member implements.
type Strategy interface {
	Name() string
	Evaluate(in signal.SignalDataInputs) signal.StrategyVote
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

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func directionFromScore(score float64, deadband float64) signal.Direction {
	switch {
	case score > deadband:
		return signal.DirectionBuy
	case score < -deadband:
		return signal.DirectionSell
	default:
		return signal.DirectionHold
	}
}

// MomentumTrend votes with trend direction using EMA slope and ADX
// confirmation: strong trend + aligned momentum => high-confidence vote
// in the trend's direction.
type MomentumTrend struct {
	FastPeriod, SlowPeriod, ADXPeriod int
}

func NewMomentumTrend() *MomentumTrend {
	return &MomentumTrend{FastPeriod: 12, SlowPeriod: 26, ADXPeriod: 14}
}

func (s *MomentumTrend) Name() string { return "momentum_trend" }

func (s *MomentumTrend) Evaluate(in signal.SignalDataInputs) signal.StrategyVote {
	closes := closesOf(in.Candles)
	if len(closes) < s.SlowPeriod+s.ADXPeriod {
		return signal.StrategyVote{Strategy: s.Name(), Direction: signal.DirectionHold, Rationale: "insufficient history"}
	}

	fast := indicator.EMA(closes, s.FastPeriod)
	slow := indicator.EMA(closes, s.SlowPeriod)
	adx := indicator.ADX(highsOf(in.Candles), lowsOf(in.Candles), closes, s.ADXPeriod)
	if !fast.IsValid || !slow.IsValid || !adx.IsValid {
		return signal.StrategyVote{Strategy: s.Name(), Direction: signal.DirectionHold, Rationale: "indicator warm-up"}
	}

	spreadPct := (fast.Value - slow.Value) / slow.Value
	trendStrength := clamp01(adx.Value / 50.0)
	score := spreadPct * 10 * trendStrength

	return signal.StrategyVote{
		Strategy:   s.Name(),
		Direction:  directionFromScore(score, 0.05),
		Confidence: clamp01(math.Abs(score)),
		Rationale:  "EMA spread weighted by ADX trend strength",
	}
}

// MeanReversion votes against Bollinger-band extremes gated by RSI, on
// the premise that an overextended move against the local mean reverts.
type MeanReversion struct {
	BBPeriod  int
	BBStdDev  float64
	RSIPeriod int
}

func NewMeanReversion() *MeanReversion {
	return &MeanReversion{BBPeriod: 20, BBStdDev: 2.0, RSIPeriod: 14}
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) Evaluate(in signal.SignalDataInputs) signal.StrategyVote {
	closes := closesOf(in.Candles)
	if len(closes) < s.BBPeriod+1 {
		return signal.StrategyVote{Strategy: s.Name(), Direction: signal.DirectionHold, Rationale: "insufficient history"}
	}

	bands := indicator.Bollinger(closes, s.BBPeriod, s.BBStdDev)
	rsi := indicator.RSI(closes, s.RSIPeriod)
	if !bands.IsValid || !rsi.IsValid {
		return signal.StrategyVote{Strategy: s.Name(), Direction: signal.DirectionHold, Rationale: "indicator warm-up"}
	}

	last := closes[len(closes)-1]
	width := bands.Upper - bands.Lower
	if width == 0 {
		return signal.StrategyVote{Strategy: s.Name(), Direction: signal.DirectionHold, Rationale: "zero band width"}
	}
	position := (last - bands.Middle) / (width / 2) // -1 at lower band, +1 at upper band

	score := 0.0
	switch {
	case position > 1.0 && rsi.Value > 70:
		score = -clamp01((position - 1.0)) // price above upper band, overbought => sell
	case position < -1.0 && rsi.Value < 30:
		score = clamp01(-(position + 1.0)) // price below lower band, oversold => buy
	}

	return signal.StrategyVote{
		Strategy:   s.Name(),
		Direction:  directionFromScore(score, 0.05),
		Confidence: clamp01(math.Abs(score)),
		Rationale:  "Bollinger extreme gated by RSI overbought/oversold",
	}
}

// Breakout votes with a Keltner-channel breakout confirmed by a volume
// surge relative to the trailing average.
type Breakout struct {
	EMAPeriod, ATRPeriod int
	ATRMultiple          float64
	VolumeLookback       int
}

func NewBreakout() *Breakout {
	return &Breakout{EMAPeriod: 20, ATRPeriod: 14, ATRMultiple: 1.5, VolumeLookback: 20}
}

func (s *Breakout) Name() string { return "breakout" }

func (s *Breakout) Evaluate(in signal.SignalDataInputs) signal.StrategyVote {
	closes := closesOf(in.Candles)
	if len(closes) < s.EMAPeriod+s.VolumeLookback {
		return signal.StrategyVote{Strategy: s.Name(), Direction: signal.DirectionHold, Rationale: "insufficient history"}
	}

	channel := indicator.Keltner(highsOf(in.Candles), lowsOf(in.Candles), closes, s.EMAPeriod, s.ATRPeriod, s.ATRMultiple)
	if !channel.IsValid {
		return signal.StrategyVote{Strategy: s.Name(), Direction: signal.DirectionHold, Rationale: "indicator warm-up"}
	}

	last := in.Candles[len(in.Candles)-1]
	avgVol := 0.0
	window := in.Candles[len(in.Candles)-s.VolumeLookback:]
	for _, c := range window {
		avgVol += c.Volume
	}
	avgVol /= float64(len(window))
	volRatio := 1.0
	if avgVol > 0 {
		volRatio = last.Volume / avgVol
	}
	volConfirmed := volRatio >= 1.5

	score := 0.0
	switch {
	case last.Close > channel.Upper && volConfirmed:
		score = clamp01((last.Close - channel.Upper) / channel.Upper * 10)
	case last.Close < channel.Lower && volConfirmed:
		score = -clamp01((channel.Lower - last.Close) / channel.Lower * 10)
	}

	return signal.StrategyVote{
		Strategy:   s.Name(),
		Direction:  directionFromScore(score, 0.05),
		Confidence: clamp01(math.Abs(score)),
		Rationale:  "Keltner channel breakout confirmed by volume surge",
	}
}

// Volatility votes in the direction of the higher-timeframe slope, with
// confidence shrinking as realized volatility rises. Like the other
// strategies it reads only its inputs, not the other strategies' votes.
type Volatility struct {
	RealizedVolPeriod int
	BarsPerYear       int
}

func NewVolatility() *Volatility {
	return &Volatility{RealizedVolPeriod: 20, BarsPerYear: 365 * 24}
}

func (s *Volatility) Name() string { return "volatility" }

func (s *Volatility) Evaluate(in signal.SignalDataInputs) signal.StrategyVote {
	closes := closesOf(in.Candles)
	if len(closes) < s.RealizedVolPeriod+1 || len(in.HigherTF) < 2 {
		return signal.StrategyVote{Strategy: s.Name(), Direction: signal.DirectionHold, Rationale: "insufficient history"}
	}

	rv := indicator.RealizedVolatility(closes, s.RealizedVolPeriod, s.BarsPerYear)
	if !rv.IsValid {
		return signal.StrategyVote{Strategy: s.Name(), Direction: signal.DirectionHold, Rationale: "indicator warm-up"}
	}

	htfCloses := closesOf(in.HigherTF)
	htfSlope := (htfCloses[len(htfCloses)-1] - htfCloses[0]) / htfCloses[0]

	// Low realized vol => trust the higher-timeframe slope more (calmer
	// regimes anticipate a cleaner breakout in the prevailing direction).
	confidence := clamp01(1.0 - rv.Value/2.0)
	score := htfSlope * confidence

	return signal.StrategyVote{
		Strategy:   s.Name(),
		Direction:  directionFromScore(score, 0.01),
		Confidence: clamp01(math.Abs(score) * 10),
		Rationale:  "higher-timeframe slope weighted inversely by realized volatility",
	}
}

// Default returns the four strategies in declaration order.
func Default() []Strategy {
	return []Strategy{NewMomentumTrend(), NewMeanReversion(), NewBreakout(), NewVolatility()}
}
