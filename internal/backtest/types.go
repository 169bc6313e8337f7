// Package backtest implements the Backtest Engine (C10): walk-forward
// window splitting with overlap detection, a Conservative Intrabar
// execution model, position lifecycle tracking with MAE/MFE, and the
// full performance metrics suite.
//
// Grounded on the teacher's internal/backtest/smoke90 (WindowResult /
// CandidateResult / MetricsSummary result-shape idiom, JSONL writer
// pattern) and march_aug/engine.go (window-by-window runner loop),
// combined with original_source/backend/app/backtesting/{time_split,
// execution,metrics}.py for the exact walk-forward split, dynamic
// slippage, and metrics formulas this spec's distillation left out.
package backtest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/quantcandle/signalengine/internal/signal"
)

// Params is the full parameter set a campaign is run with; CampaignID
// is derived from it plus the window bounds so identical re-runs are
// addressable by the same ID (spec.md's reproduce-campaign command
// relies on this).
type Params struct {
	Symbol          string
	Interval        string
	StrategyWeights map[string]float64
	InitialCapital  float64
	RiskPerTradePct float64
}

// CampaignID computes MD5(params || start || end) hex digest — the
// normative campaign identifier, matching the original implementation's
// hashing of the full parameter set plus date range so two identically
// configured runs never collide and the same run is always
// addressable by the same ID.
func CampaignID(p Params, start, end time.Time) string {
	h := md5.New()
	fmt.Fprintf(h, "%s|%s|%.6f|%.6f|%s|%s", p.Symbol, p.Interval, p.InitialCapital, p.RiskPerTradePct,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	for _, name := range []string{"momentum_trend", "mean_reversion", "breakout", "volatility"} {
		fmt.Fprintf(h, "|%s=%.6f", name, p.StrategyWeights[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PositionLifecycle tracks one open position from entry to exit,
// including trailing-stop/breakeven adjustments and excursion
// tracking.
type PositionLifecycle struct {
	Direction       signal.Direction
	EntryPrice      float64
	Quantity        float64
	StopLoss        float64
	TakeProfit      float64
	TrailingStopPct float64 // 0 disables trailing
	BreakevenAtR    float64 // move stop to entry once price has moved this many R in favor; 0 disables
	OpenedAt        time.Time

	MAE float64 // maximum adverse excursion, as a fraction of entry price
	MFE float64 // maximum favorable excursion, as a fraction of entry price
}

// CampaignResult is the full output of one backtest campaign.
type CampaignResult struct {
	CampaignID     string
	Params         Params
	Start          time.Time
	End            time.Time
	Trades         []signal.Trade
	EquityCurve    []float64
	InitialCapital float64
	FinalCapital   float64
	Metrics        Metrics
}
