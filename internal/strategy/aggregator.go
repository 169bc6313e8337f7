package strategy

import (
	"github.com/quantcandle/signalengine/internal/regime"
	"github.com/quantcandle/signalengine/internal/signal"
)

// directionSign maps a vote direction onto the signed scalar used to
// build the ensemble's vector-bias term.
func directionSign(d signal.Direction) float64 {
	switch d {
	case signal.DirectionBuy:
		return 1.0
	case signal.DirectionSell:
		return -1.0
	default:
		return 0.0
	}
}

// Aggregator combines per-strategy votes into a single ensemble
// decision using the active regime's weight preset.
type Aggregator struct {
	Strategies []Strategy
	Weights    *regime.WeightManager
	Deadband   float64 // minimum |weighted score| to avoid a HOLD tie-break
}

// NewAggregator wires the default strategy set against a weight manager.
func NewAggregator(weights *regime.WeightManager) *Aggregator {
	return &Aggregator{Strategies: Default(), Weights: weights, Deadband: 0.05}
}

// Aggregate runs every strategy, weights each vote's signed
// (direction * confidence) contribution by the active regime preset,
// adds a small vector-bias term (the mean raw vote sign, independent of
// confidence, so a unanimous-but-low-confidence ensemble still leans
// toward consensus rather than defaulting to HOLD), and applies the
// BUY/SELL/HOLD decision rule with a deadband tie-breaker.
func (a *Aggregator) Aggregate(in signal.SignalDataInputs, r signal.Regime) signal.EnsembleDecision {
	a.Weights.UpdateCurrentRegime(r)
	preset := a.Weights.GetActiveWeights()

	votes := make([]signal.StrategyVote, 0, len(a.Strategies))
	weighted := 0.0
	biasSum := 0.0

	for _, s := range a.Strategies {
		v := s.Evaluate(in)
		votes = append(votes, v)

		w := preset.Weights[s.Name()]
		weighted += w * directionSign(v.Direction) * v.Confidence
		biasSum += directionSign(v.Direction)
	}

	vectorBias := 0.0
	if len(a.Strategies) > 0 {
		vectorBias = biasSum / float64(len(a.Strategies)) * 0.1 // small, capped influence
	}

	rawScore := weighted + vectorBias
	direction := signal.DirectionHold
	switch {
	case rawScore > a.Deadband:
		direction = signal.DirectionBuy
	case rawScore < -a.Deadband:
		direction = signal.DirectionSell
	}

	return signal.EnsembleDecision{
		Direction:   direction,
		RawScore:    rawScore,
		Votes:       votes,
		Regime:      r,
		WeightsUsed: preset.Weights,
	}
}
