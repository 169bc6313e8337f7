package montecarlo

import "math/rand"

// BootstrapConfig controls the TP/SL hit-probability simulation.
type BootstrapConfig struct {
	Trials int // number of resampled paths
	Seed   int64
}

// HitProbabilityResult reports the fraction of resampled paths that hit
// the take-profit before the stop-loss, and vice versa.
type HitProbabilityResult struct {
	TPProbability float64
	SLProbability float64
	NeitherProbability float64
	Trials        int
}

// SimulateHitProbability bootstrap-resamples historical bar-to-bar
// returns (with replacement) to build synthetic forward paths from the
// entry price, and reports how often each synthetic path touches the
// take-profit or stop-loss level first. Grounded on the original
// implementation's bootstrap resampling in backend/app/analytics/ruin.py,
// generalized from equity-curve resampling to price-path resampling.
func SimulateHitProbability(returns []float64, entry, takeProfit, stopLoss float64, horizon int, cfg BootstrapConfig) HitProbabilityResult {
	if len(returns) == 0 || cfg.Trials <= 0 || horizon <= 0 {
		return HitProbabilityResult{Trials: cfg.Trials}
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	isLong := takeProfit > entry
	var tpHits, slHits int

	for t := 0; t < cfg.Trials; t++ {
		price := entry
		hitTP, hitSL := false, false
		for step := 0; step < horizon; step++ {
			r := returns[rng.Intn(len(returns))]
			price *= 1 + r
			if isLong {
				if price >= takeProfit {
					hitTP = true
					break
				}
				if price <= stopLoss {
					hitSL = true
					break
				}
			} else {
				if price <= takeProfit {
					hitTP = true
					break
				}
				if price >= stopLoss {
					hitSL = true
					break
				}
			}
		}
		if hitTP {
			tpHits++
		} else if hitSL {
			slHits++
		}
	}

	n := float64(cfg.Trials)
	return HitProbabilityResult{
		TPProbability:      float64(tpHits) / n,
		SLProbability:      float64(slHits) / n,
		NeitherProbability: float64(cfg.Trials-tpHits-slHits) / n,
		Trials:             cfg.Trials,
	}
}
