package regime

import (
	"fmt"

	"github.com/quantcandle/signalengine/internal/signal"
)

// WeightPreset assigns each strategy a vote weight for one regime. The
// weights must sum to ~1.0 so the ensemble aggregator (C6) can treat
// them directly as a convex combination.
//
// Grounded on the teacher's WeightPreset/WeightManager shape
// (internal/regime/weights.go), retargeted from per-factor scan weights
// to per-strategy ensemble weights.
type WeightPreset struct {
	Regime      signal.Regime
	Name        string
	Description string
	Weights     map[string]float64 // strategy name -> weight
}

// WeightManager stores one preset per regime and resolves the active
// one as the detector updates.
type WeightManager struct {
	presets       map[signal.Regime]*WeightPreset
	currentRegime signal.Regime
}

// NewWeightManager creates a manager seeded with the spec-default
// preset table covering all seven regimes.
func NewWeightManager() *WeightManager {
	wm := &WeightManager{
		presets:       make(map[signal.Regime]*WeightPreset),
		currentRegime: signal.RegimeNeutral,
	}
	wm.initializeDefaultPresets()
	return wm
}

func (wm *WeightManager) add(r signal.Regime, name, desc string, weights map[string]float64) {
	wm.presets[r] = &WeightPreset{Regime: r, Name: name, Description: desc, Weights: weights}
}

// initializeDefaultPresets seeds one weight table per regime across the
// four C6 strategies: momentum_trend, mean_reversion, breakout, volatility.
func (wm *WeightManager) initializeDefaultPresets() {
	wm.add(signal.RegimeBull, "Bull", "sustained uptrend, momentum dominant", map[string]float64{
		"momentum_trend": 0.45, "mean_reversion": 0.10, "breakout": 0.30, "volatility": 0.15,
	})
	wm.add(signal.RegimeBear, "Bear", "sustained downtrend, momentum dominant", map[string]float64{
		"momentum_trend": 0.45, "mean_reversion": 0.10, "breakout": 0.30, "volatility": 0.15,
	})
	wm.add(signal.RegimeRange, "Range", "compressed, mean-reversion favored", map[string]float64{
		"momentum_trend": 0.10, "mean_reversion": 0.50, "breakout": 0.15, "volatility": 0.25,
	})
	wm.add(signal.RegimeNeutral, "Neutral", "no clear axis, balanced allocation", map[string]float64{
		"momentum_trend": 0.25, "mean_reversion": 0.25, "breakout": 0.25, "volatility": 0.25,
	})
	wm.add(signal.RegimeCalm, "Calm", "low volatility, breakout anticipation", map[string]float64{
		"momentum_trend": 0.20, "mean_reversion": 0.30, "breakout": 0.40, "volatility": 0.10,
	})
	wm.add(signal.RegimeBalanced, "Balanced", "moderate volatility, no dominant axis", map[string]float64{
		"momentum_trend": 0.25, "mean_reversion": 0.25, "breakout": 0.25, "volatility": 0.25,
	})
	wm.add(signal.RegimeStress, "Stress", "high volatility, defensive emphasis", map[string]float64{
		"momentum_trend": 0.15, "mean_reversion": 0.15, "breakout": 0.15, "volatility": 0.55,
	})
}

// GetActiveWeights returns the current regime's preset, falling back to
// RegimeNeutral's balanced table if the current regime was never seeded.
func (wm *WeightManager) GetActiveWeights() *WeightPreset {
	if p, ok := wm.presets[wm.currentRegime]; ok {
		return p
	}
	return wm.presets[signal.RegimeNeutral]
}

// GetWeightsForRegime returns the preset for an explicit regime.
func (wm *WeightManager) GetWeightsForRegime(r signal.Regime) (*WeightPreset, error) {
	if p, ok := wm.presets[r]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no weight preset for regime %s", r)
}

// UpdateCurrentRegime sets the active regime from a detector result.
func (wm *WeightManager) UpdateCurrentRegime(r signal.Regime) {
	wm.currentRegime = r
}

// GetCurrentRegime returns the currently active regime.
func (wm *WeightManager) GetCurrentRegime() signal.Regime {
	return wm.currentRegime
}

// ValidateWeights checks a regime's weights sum to ~1.0 within tolerance.
func (wm *WeightManager) ValidateWeights(r signal.Regime) error {
	p, ok := wm.presets[r]
	if !ok {
		return fmt.Errorf("regime %s not found", r)
	}
	total := 0.0
	for _, w := range p.Weights {
		total += w
	}
	if total < 0.95 || total > 1.05 {
		return fmt.Errorf("weights for regime %s sum to %.3f, expected ~1.0", r, total)
	}
	return nil
}

// GetWeightDifferences compares weights between two regimes, useful for
// explaining a regime-driven ensemble-output change.
func (wm *WeightManager) GetWeightDifferences(from, to signal.Regime) (map[string]float64, error) {
	fromPreset, err := wm.GetWeightsForRegime(from)
	if err != nil {
		return nil, fmt.Errorf("invalid 'from' regime: %w", err)
	}
	toPreset, err := wm.GetWeightsForRegime(to)
	if err != nil {
		return nil, fmt.Errorf("invalid 'to' regime: %w", err)
	}

	diffs := make(map[string]float64)
	strategies := make(map[string]bool)
	for s := range fromPreset.Weights {
		strategies[s] = true
	}
	for s := range toPreset.Weights {
		strategies[s] = true
	}
	for s := range strategies {
		diffs[s] = toPreset.Weights[s] - fromPreset.Weights[s]
	}
	return diffs, nil
}
