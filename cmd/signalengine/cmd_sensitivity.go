package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantcandle/signalengine/internal/backtest"
	"github.com/quantcandle/signalengine/internal/candle"
	"github.com/quantcandle/signalengine/internal/regime"
	"github.com/quantcandle/signalengine/internal/strategy"
)

var sensitivityCmd = &cobra.Command{
	Use:   "sensitivity",
	Short: "Measure campaign sensitivity to perturbations of critical parameters",
	Long: `Loads a baseline parameter set, re-runs the same campaign window with
each named critical parameter perturbed +/-10%, and reports the
resulting swing in CAGR (spec.md §6 sensitivity). Max drawdown is not
reported.`,
	RunE: runSensitivity,
}

var sensitivityFlags struct {
	symbol         string
	interval       string
	startDate      string
	endDate        string
	paramsPath     string
	criticalParams string
	dataDir        string
}

// sensitivityBaseline is the JSON shape read from --params-path.
type sensitivityBaseline struct {
	Symbol          string  `json:"symbol"`
	Interval        string  `json:"interval"`
	InitialCapital  float64 `json:"initial_capital"`
	RiskPerTradePct float64 `json:"risk_per_trade_pct"`
	CostBps         float64 `json:"cost_bps"`
}

type sensitivityResult struct {
	Param       string  `json:"param"`
	BaselineVal float64 `json:"baseline_value"`
	LowVal      float64 `json:"low_value"`
	HighVal     float64 `json:"high_value"`
	BaselineCAGR float64 `json:"baseline_cagr_pct"`
	LowCAGR      float64 `json:"low_cagr_pct"`
	HighCAGR     float64 `json:"high_cagr_pct"`
	SwingPct     float64 `json:"swing_pct"`
}

func init() {
	rootCmd.AddCommand(sensitivityCmd)
	f := &sensitivityFlags
	sensitivityCmd.Flags().StringVar(&f.symbol, "symbol", "", "Symbol to test (required)")
	sensitivityCmd.Flags().StringVar(&f.interval, "interval", "1h", "Candle interval")
	sensitivityCmd.Flags().StringVar(&f.startDate, "start-date", "", "Analysis window start, RFC3339 (required)")
	sensitivityCmd.Flags().StringVar(&f.endDate, "end-date", "", "Analysis window end, RFC3339 (required)")
	sensitivityCmd.Flags().StringVar(&f.paramsPath, "params-path", "", "Path to baseline parameter JSON (required)")
	sensitivityCmd.Flags().StringVar(&f.criticalParams, "critical-params", "risk_per_trade_pct,cost_bps", "Comma-separated parameter names to perturb")
	sensitivityCmd.Flags().StringVar(&f.dataDir, "data-dir", "data/candles", "Candle store root directory")
	sensitivityCmd.MarkFlagRequired("symbol")
	sensitivityCmd.MarkFlagRequired("start-date")
	sensitivityCmd.MarkFlagRequired("end-date")
	sensitivityCmd.MarkFlagRequired("params-path")
}

func runSensitivity(cmd *cobra.Command, args []string) error {
	f := sensitivityFlags
	start, err := time.Parse(time.RFC3339, f.startDate)
	if err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("parse --start-date: %w", err)
	}
	end, err := time.Parse(time.RFC3339, f.endDate)
	if err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("parse --end-date: %w", err)
	}

	raw, err := os.ReadFile(f.paramsPath)
	if err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("read --params-path: %w", err)
	}
	var baseline sensitivityBaseline
	if err := json.Unmarshal(raw, &baseline); err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("parse --params-path: %w", err)
	}
	if baseline.Symbol == "" {
		baseline.Symbol = f.symbol
	}
	if baseline.Interval == "" {
		baseline.Interval = f.interval
	}

	store := candle.NewStore(f.dataDir)
	history, err := readHistory(store, baseline.Symbol, baseline.Interval, start, end)
	if err != nil {
		os.Exit(exitFailure)
		return err
	}

	weightMgr := regime.NewWeightManager()
	agg := strategy.NewAggregator(weightMgr)
	detector := regime.NewDetector()
	strat := replayStrategy(agg, detector)
	window := backtest.Window{Start: start, End: end, Role: backtest.RoleTest}

	runWith := func(riskPct, costBps float64) (backtest.CampaignResult, error) {
		params := backtest.Params{
			Symbol:          baseline.Symbol,
			Interval:        baseline.Interval,
			StrategyWeights: weightMgr.GetActiveWeights().Weights,
			InitialCapital:  baseline.InitialCapital,
			RiskPerTradePct: riskPct,
		}
		exec := backtest.DefaultExecutionModel()
		exec.BaseBps = costBps
		return backtest.RunCampaign(params, history, window, strat, exec)
	}

	baselineResult, err := runWith(baseline.RiskPerTradePct, baseline.CostBps)
	if err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("baseline run: %w", err)
	}

	var results []sensitivityResult
	for _, param := range strings.Split(f.criticalParams, ",") {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}

		var base, low, high float64
		var lowResult, highResult backtest.CampaignResult
		switch param {
		case "risk_per_trade_pct":
			base = baseline.RiskPerTradePct
			low, high = baseline.RiskPerTradePct*0.9, baseline.RiskPerTradePct*1.1
			lowResult, err = runWith(low, baseline.CostBps)
			if err == nil {
				highResult, err = runWith(high, baseline.CostBps)
			}
		case "cost_bps":
			base = baseline.CostBps
			low, high = baseline.CostBps*0.9, baseline.CostBps*1.1
			lowResult, err = runWith(baseline.RiskPerTradePct, low)
			if err == nil {
				highResult, err = runWith(baseline.RiskPerTradePct, high)
			}
		default:
			log.Warn().Str("param", param).Msg("unknown critical parameter, skipped")
			continue
		}
		if err != nil {
			log.Error().Str("param", param).Err(err).Msg("sensitivity run failed")
			continue
		}

		results = append(results, sensitivityResult{
			Param:        param,
			BaselineVal:  base,
			LowVal:       low,
			HighVal:      high,
			BaselineCAGR: baselineResult.Metrics.CAGR,
			LowCAGR:      lowResult.Metrics.CAGR,
			HighCAGR:     highResult.Metrics.CAGR,
			SwingPct:     highResult.Metrics.CAGR - lowResult.Metrics.CAGR,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}
