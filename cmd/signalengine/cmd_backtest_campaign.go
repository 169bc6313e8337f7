package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantcandle/signalengine/internal/backtest"
	"github.com/quantcandle/signalengine/internal/candle"
	"github.com/quantcandle/signalengine/internal/regime"
	"github.com/quantcandle/signalengine/internal/strategy"
)

var backtestCampaignCmd = &cobra.Command{
	Use:   "backtest-campaign",
	Short: "Run a walk-forward backtest campaign over a historical range",
	Long: `Splits [start, end] into train/validation/walk-forward/test windows
and runs the live strategy ensemble against each through the
Conservative Intrabar execution model (C10), printing one
CampaignResult per window as JSON.`,
	RunE: runBacktestCampaign,
}

var backtestCampaignFlags struct {
	symbol             string
	interval           string
	start              string
	end                string
	walkForwardWindow  int
	costBps            float64
	initialCapital     float64
	riskPerTradePct    float64
	dataDir            string
}

func init() {
	rootCmd.AddCommand(backtestCampaignCmd)
	f := &backtestCampaignFlags
	backtestCampaignCmd.Flags().StringVar(&f.symbol, "symbol", "", "Symbol to backtest (required)")
	backtestCampaignCmd.Flags().StringVar(&f.interval, "interval", "1h", "Candle interval")
	backtestCampaignCmd.Flags().StringVar(&f.start, "start", "", "Campaign start, RFC3339 (required)")
	backtestCampaignCmd.Flags().StringVar(&f.end, "end", "", "Campaign end, RFC3339 (required)")
	backtestCampaignCmd.Flags().IntVar(&f.walkForwardWindow, "walk-forward-window", 14, "Walk-forward fold length, days")
	backtestCampaignCmd.Flags().Float64Var(&f.costBps, "cost-bps", 5.0, "Base execution cost, basis points")
	backtestCampaignCmd.Flags().Float64Var(&f.initialCapital, "initial-capital", 10000, "Starting capital, USD")
	backtestCampaignCmd.Flags().Float64Var(&f.riskPerTradePct, "risk-per-trade-pct", 0.01, "Fraction of capital risked per trade")
	backtestCampaignCmd.Flags().StringVar(&f.dataDir, "data-dir", "data/candles", "Candle store root directory")
	backtestCampaignCmd.MarkFlagRequired("symbol")
	backtestCampaignCmd.MarkFlagRequired("start")
	backtestCampaignCmd.MarkFlagRequired("end")
}

func runBacktestCampaign(cmd *cobra.Command, args []string) error {
	f := backtestCampaignFlags
	start, err := time.Parse(time.RFC3339, f.start)
	if err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("parse --start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, f.end)
	if err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("parse --end: %w", err)
	}

	store := candle.NewStore(f.dataDir)
	history, err := readHistory(store, f.symbol, f.interval, start, end)
	if err != nil {
		os.Exit(exitFailure)
		return err
	}

	windows, err := splitForCampaign(start, end, f.walkForwardWindow)
	if err != nil {
		os.Exit(exitFailure)
		return err
	}

	weightMgr := regime.NewWeightManager()
	params := backtest.Params{
		Symbol:          f.symbol,
		Interval:        f.interval,
		StrategyWeights: weightMgr.GetActiveWeights().Weights,
		InitialCapital:  f.initialCapital,
		RiskPerTradePct: f.riskPerTradePct,
	}
	exec := backtest.DefaultExecutionModel()
	exec.BaseBps = f.costBps

	agg := strategy.NewAggregator(weightMgr)
	detector := regime.NewDetector()
	strat := replayStrategy(agg, detector)

	var results []backtest.CampaignResult
	for _, role := range []backtest.Role{backtest.RoleTrain, backtest.RoleValidation, backtest.RoleWalkForward, backtest.RoleTest} {
		for _, w := range windows[role] {
			result, err := backtest.RunCampaign(params, history, w, strat, exec)
			if err != nil {
				log.Error().Str("role", string(role)).Err(err).Msg("campaign window failed")
				continue
			}
			log.Info().Str("role", string(role)).Str("campaign_id", result.CampaignID).
				Int("trades", len(result.Trades)).Float64("final_capital", result.FinalCapital).
				Msg("window complete")
			results = append(results, result)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			os.Exit(exitFailure)
			return fmt.Errorf("encode result: %w", err)
		}
	}
	return nil
}

// splitForCampaign allocates train/validation/test proportionally
// across [start, end] (60/15/15%, remainder to walk-forward), then
// hands the walk-forward fold length off to backtest.Split.
func splitForCampaign(start, end time.Time, walkForwardDays int) (map[backtest.Role][]backtest.Window, error) {
	totalDays := int(end.Sub(start).Hours() / 24)
	if totalDays < 10 {
		totalDays = 10
	}
	trainDays := totalDays * 60 / 100
	valDays := totalDays * 15 / 100
	testDays := totalDays * 15 / 100
	if trainDays < 1 {
		trainDays = 1
	}
	if valDays < 1 {
		valDays = 1
	}
	if testDays < 1 {
		testDays = 1
	}
	return backtest.Split(start, end, trainDays, valDays, testDays, walkForwardDays)
}
