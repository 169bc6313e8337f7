package backtest

import (
	"math"
	"time"

	"github.com/quantcandle/signalengine/internal/signal"
)

// Metrics is the full performance summary for a campaign. Formulas are
// ported from original_source's calculate_metrics: CAGR from the
// capital ratio over elapsed years, Sharpe/Sortino annualized with a
// sqrt(252) trading-day factor, max drawdown from the equity curve's
// running peak, Calmar as CAGR/MaxDrawdown.
type Metrics struct {
	CAGR             float64
	Sharpe           float64
	Sortino          float64
	MaxDrawdownPct   float64
	WinRatePct       float64
	ProfitFactor     float64
	Expectancy       float64
	Calmar           float64
	TotalReturnPct   float64
	TotalTrades      int
	WinningTrades    int
	LosingTrades     int
}

// Calculate computes Metrics from a campaign's trade list, equity
// curve and capital bounds.
func Calculate(trades []signal.Trade, equityCurve []float64, initialCapital, finalCapital float64, start, end time.Time) Metrics {
	if len(trades) == 0 {
		return Metrics{}
	}

	returns := make([]float64, len(trades))
	for i, t := range trades {
		returns[i] = t.PnLUSD / (t.EntryPrice * t.Quantity)
	}

	totalReturnPct := ((finalCapital - initialCapital) / initialCapital) * 100
	years := end.Sub(start).Hours() / 24 / 365.25

	var cagr float64
	if years > 0 && finalCapital > 0 && initialCapital > 0 {
		cagr = (math.Pow(finalCapital/initialCapital, 1/years) - 1) * 100
	}

	sharpe := 0.0
	if len(returns) > 1 {
		mean, std := meanStdDev(returns)
		if std > 0 {
			sharpe = (mean / std) * math.Sqrt(252)
		}
	}

	downside := filterNegative(returns)
	sortino := sharpe
	if len(downside) > 0 {
		_, downsideStd := meanStdDev(downside)
		mean, _ := meanStdDev(returns)
		if downsideStd > 0 {
			sortino = (mean / downsideStd) * math.Sqrt(252)
		}
	} else if sharpe <= 0 {
		sortino = 0
	}

	maxDrawdown := maxDrawdownPct(equityCurve)

	var winning, losing int
	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.PnLUSD > 0 {
			winning++
			grossProfit += t.PnLUSD
		} else if t.PnLUSD < 0 {
			losing++
			grossLoss += -t.PnLUSD
		}
	}
	total := len(trades)
	winRate := 0.0
	if total > 0 {
		winRate = float64(winning) / float64(total) * 100
	}

	profitFactor := 0.0
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	}

	avgWin := avgWhere(trades, func(pnl float64) bool { return pnl > 0 })
	avgLoss := avgWhere(trades, func(pnl float64) bool { return pnl < 0 })
	winProb := 0.0
	lossProb := 0.0
	if total > 0 {
		winProb = float64(winning) / float64(total)
		lossProb = float64(losing) / float64(total)
	}
	expectancy := avgWin*winProb + avgLoss*lossProb

	calmar := 0.0
	if maxDrawdown > 0 {
		calmar = cagr / maxDrawdown
	}

	return Metrics{
		CAGR:           round2(cagr),
		Sharpe:         round2(sharpe),
		Sortino:        round2(sortino),
		MaxDrawdownPct: round2(maxDrawdown),
		WinRatePct:     round2(winRate),
		ProfitFactor:   round2(profitFactor),
		Expectancy:     round2(expectancy),
		Calmar:         round2(calmar),
		TotalReturnPct: round2(totalReturnPct),
		TotalTrades:    total,
		WinningTrades:  winning,
		LosingTrades:   losing,
	}
}

func meanStdDev(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))

	var sqSum float64
	for _, x := range xs {
		d := x - mean
		sqSum += d * d
	}
	std = math.Sqrt(sqSum / float64(len(xs)))
	return mean, std
}

func filterNegative(xs []float64) []float64 {
	var out []float64
	for _, x := range xs {
		if x < 0 {
			out = append(out, x)
		}
	}
	return out
}

func avgWhere(trades []signal.Trade, pred func(float64) bool) float64 {
	var sum float64
	var n int
	for _, t := range trades {
		if pred(t.PnLUSD) {
			sum += t.PnLUSD
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// maxDrawdownPct walks the equity curve tracking the running peak and
// returns the largest percentage decline from any peak to a subsequent
// trough.
func maxDrawdownPct(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	runningMax := equity[0]
	maxDD := 0.0
	for _, e := range equity {
		if e > runningMax {
			runningMax = e
		}
		if runningMax <= 0 {
			continue
		}
		dd := (runningMax - e) / runningMax * 100
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
