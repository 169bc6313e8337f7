package strategy

import (
	"testing"

	"github.com/quantcandle/signalengine/internal/regime"
	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/stretchr/testify/assert"
)

type fixedStrategy struct {
	name string
	vote signal.StrategyVote
}

func (f fixedStrategy) Name() string { return f.name }
func (f fixedStrategy) Evaluate(signal.SignalDataInputs) signal.StrategyVote { return f.vote }

func TestAggregator_UnanimousBuyYieldsBuy(t *testing.T) {
	wm := regime.NewWeightManager()
	agg := &Aggregator{
		Strategies: []Strategy{
			fixedStrategy{name: "momentum_trend", vote: signal.StrategyVote{Strategy: "momentum_trend", Direction: signal.DirectionBuy, Confidence: 0.8}},
			fixedStrategy{name: "mean_reversion", vote: signal.StrategyVote{Strategy: "mean_reversion", Direction: signal.DirectionBuy, Confidence: 0.6}},
			fixedStrategy{name: "breakout", vote: signal.StrategyVote{Strategy: "breakout", Direction: signal.DirectionBuy, Confidence: 0.7}},
			fixedStrategy{name: "volatility", vote: signal.StrategyVote{Strategy: "volatility", Direction: signal.DirectionBuy, Confidence: 0.5}},
		},
		Weights:  wm,
		Deadband: 0.05,
	}

	decision := agg.Aggregate(signal.SignalDataInputs{}, signal.RegimeBull)
	assert.Equal(t, signal.DirectionBuy, decision.Direction)
	assert.Greater(t, decision.RawScore, 0.0)
}

func TestAggregator_SplitVotesWithinDeadbandHolds(t *testing.T) {
	wm := regime.NewWeightManager()
	agg := &Aggregator{
		Strategies: []Strategy{
			fixedStrategy{name: "momentum_trend", vote: signal.StrategyVote{Strategy: "momentum_trend", Direction: signal.DirectionBuy, Confidence: 0.05}},
			fixedStrategy{name: "mean_reversion", vote: signal.StrategyVote{Strategy: "mean_reversion", Direction: signal.DirectionSell, Confidence: 0.05}},
			fixedStrategy{name: "breakout", vote: signal.StrategyVote{Strategy: "breakout", Direction: signal.DirectionHold}},
			fixedStrategy{name: "volatility", vote: signal.StrategyVote{Strategy: "volatility", Direction: signal.DirectionHold}},
		},
		Weights:  wm,
		Deadband: 0.5,
	}

	decision := agg.Aggregate(signal.SignalDataInputs{}, signal.RegimeNeutral)
	assert.Equal(t, signal.DirectionHold, decision.Direction)
}

func TestAggregator_UsesRegimeSpecificWeights(t *testing.T) {
	wm := regime.NewWeightManager()
	agg := NewAggregator(wm)
	decision := agg.Aggregate(signal.SignalDataInputs{}, signal.RegimeStress)
	assert.Equal(t, signal.RegimeStress, decision.Regime)
	assert.InDelta(t, 0.55, decision.WeightsUsed["volatility"], 1e-9)
}
