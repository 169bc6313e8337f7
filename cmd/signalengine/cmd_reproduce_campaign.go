package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantcandle/signalengine/internal/backtest"
	"github.com/quantcandle/signalengine/internal/candle"
	"github.com/quantcandle/signalengine/internal/montecarlo"
	"github.com/quantcandle/signalengine/internal/persistence/postgres"
	"github.com/quantcandle/signalengine/internal/regime"
	"github.com/quantcandle/signalengine/internal/strategy"
)

var reproduceCampaignCmd = &cobra.Command{
	Use:   "reproduce-campaign",
	Short: "Re-run a previously recorded campaign bit-for-bit",
	Long: `Looks up a persisted backtest_results row by campaign ID, re-runs
RunCampaign against the same symbol/interval/window, and writes the
reproduced CampaignResult to <output-dir>/<campaign-id>.json
(spec.md §6 reproduce-campaign). The stored row is not written out; the
only comparison made is a logged campaign-ID and trade-count check.`,
	RunE: runReproduceCampaign,
}

var reproduceCampaignFlags struct {
	campaignID string
	seed       int64
	outputDir  string
	dataDir    string
	dsn        string
}

func init() {
	rootCmd.AddCommand(reproduceCampaignCmd)
	f := &reproduceCampaignFlags
	reproduceCampaignCmd.Flags().StringVar(&f.campaignID, "campaign-id", "", "Campaign ID to reproduce (required)")
	reproduceCampaignCmd.Flags().Int64Var(&f.seed, "seed", 0, "Override the Monte Carlo seed (0 = use deterministic derivation)")
	reproduceCampaignCmd.Flags().StringVar(&f.outputDir, "output-dir", "reproductions", "Directory to write the reproduced result into")
	reproduceCampaignCmd.Flags().StringVar(&f.dataDir, "data-dir", "data/candles", "Candle store root directory")
	reproduceCampaignCmd.Flags().StringVar(&f.dsn, "database-url", os.Getenv("DATABASE_URL"), "Postgres DSN holding the backtest_results table")
	reproduceCampaignCmd.MarkFlagRequired("campaign-id")
}

func runReproduceCampaign(cmd *cobra.Command, args []string) error {
	f := reproduceCampaignFlags
	if f.dsn == "" {
		os.Exit(exitFailure)
		return fmt.Errorf("reproduce-campaign requires --database-url or DATABASE_URL (backtest_results lookup)")
	}

	cfg := postgres.DefaultConfig()
	cfg.DSN = f.dsn
	cfg.Enabled = true
	mgr, err := postgres.NewManager(cfg)
	if err != nil {
		os.Exit(exitTransport)
		return fmt.Errorf("connect to database: %w", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	row, err := mgr.Repository().BacktestResults.GetByCampaignID(ctx, f.campaignID)
	if err != nil {
		os.Exit(exitTransport)
		return fmt.Errorf("lookup campaign %s: %w", f.campaignID, err)
	}
	if row == nil {
		os.Exit(exitFailure)
		return fmt.Errorf("no backtest_results row for campaign %s", f.campaignID)
	}

	store := candle.NewStore(f.dataDir)
	history, err := readHistory(store, row.Symbol, row.Interval, row.Start, row.End)
	if err != nil {
		os.Exit(exitFailure)
		return err
	}

	seed := f.seed
	if seed == 0 {
		seed = montecarlo.DeriveSeed(row.Start, row.Symbol)
	}
	log.Info().Int64("seed", seed).Str("campaign_id", f.campaignID).Msg("reproducing campaign")

	weightMgr := regime.NewWeightManager()
	params := backtest.Params{
		Symbol:          row.Symbol,
		Interval:        row.Interval,
		StrategyWeights: weightMgr.GetActiveWeights().Weights,
		InitialCapital:  row.InitialCapital,
		RiskPerTradePct: 0.01,
	}
	window := backtest.Window{Start: row.Start, End: row.End, Role: backtest.RoleTest}

	agg := strategy.NewAggregator(weightMgr)
	detector := regime.NewDetector()
	strat := replayStrategy(agg, detector)
	exec := backtest.DefaultExecutionModel()

	result, err := backtest.RunCampaign(params, history, window, strat, exec)
	if err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("re-run campaign: %w", err)
	}

	if result.CampaignID != f.campaignID {
		log.Warn().Str("expected", f.campaignID).Str("got", result.CampaignID).
			Msg("reproduced campaign ID diverges from the requested one — parameters likely drifted")
	}

	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("create output dir: %w", err)
	}
	outPath := filepath.Join(f.outputDir, fmt.Sprintf("%s.json", f.campaignID))
	fh, err := os.Create(outPath)
	if err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("create output file: %w", err)
	}
	defer fh.Close()

	enc := json.NewEncoder(fh)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("encode result: %w", err)
	}

	divergedTrades := result.Metrics.TotalTrades != row.TotalTrades
	log.Info().Str("output", outPath).Bool("trade_count_diverged", divergedTrades).Msg("reproduction complete")
	return nil
}
