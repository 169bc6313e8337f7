package montecarlo

import (
	"math"
	"math/rand"
	"sort"
)

// RuinConfig mirrors SurvivalSimulator's constructor arguments.
type RuinConfig struct {
	Trials        int
	HorizonMonths int
	RuinThreshold float64 // equity fraction below which a path is "ruined", e.g. 0.2
	Seed          int64
}

// RuinResult mirrors SurvivalSimulator.monte_carlo's returned dict.
type RuinResult struct {
	RuinProbability float64
	MedianDrawdown  float64
	P10Equity       float64
	P50Equity       float64
	P90Equity       float64
}

// SimulateRuin bootstrap-resamples monthlyReturns with replacement to
// build HorizonMonths-long equity paths starting at equity 1.0, and
// reports the fraction of paths that ever drop below RuinThreshold plus
// equity-path quantiles at the horizon. Ported from
// backend/app/analytics/ruin.py's SurvivalSimulator.monte_carlo.
func SimulateRuin(monthlyReturns []float64, cfg RuinConfig) RuinResult {
	if len(monthlyReturns) == 0 || cfg.Trials <= 0 || cfg.HorizonMonths <= 0 {
		return RuinResult{}
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	finals := make([]float64, cfg.Trials)
	drawdowns := make([]float64, cfg.Trials)
	ruinCount := 0

	for t := 0; t < cfg.Trials; t++ {
		equity := 1.0
		peak := 1.0
		maxDD := 0.0
		ruined := false
		for m := 0; m < cfg.HorizonMonths; m++ {
			r := monthlyReturns[rng.Intn(len(monthlyReturns))]
			equity *= 1 + r
			if equity < 0 {
				equity = 0
			}
			if equity > peak {
				peak = equity
			}
			if peak > 0 {
				dd := (peak - equity) / peak
				if dd > maxDD {
					maxDD = dd
				}
			}
			if equity <= cfg.RuinThreshold {
				ruined = true
			}
		}
		finals[t] = equity
		drawdowns[t] = maxDD
		if ruined {
			ruinCount++
		}
	}

	sort.Float64s(finals)
	sort.Float64s(drawdowns)

	return RuinResult{
		RuinProbability: float64(ruinCount) / float64(cfg.Trials),
		MedianDrawdown:  percentile(drawdowns, 0.50),
		P10Equity:       percentile(finals, 0.10),
		P50Equity:       percentile(finals, 0.50),
		P90Equity:       percentile(finals, 0.90),
	}
}

// percentile performs linear-interpolated percentile lookup on a
// pre-sorted slice, matching numpy.percentile's default behavior.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
