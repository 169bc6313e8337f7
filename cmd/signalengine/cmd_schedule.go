package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantcandle/signalengine/internal/candle"
	"github.com/quantcandle/signalengine/internal/persistence"
	"github.com/quantcandle/signalengine/internal/persistence/postgres"
	"github.com/quantcandle/signalengine/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the production job scheduler: ingest_all, daily_pipeline, preflight_maintenance",
	Long: `Starts the long-running scheduler (C14) that ticks ingest_all every
15 minutes, runs the daily publication pipeline once at the configured
UTC time, and runs a one-shot preflight_maintenance pass at startup.
Blocks until SIGINT/SIGTERM.`,
	RunE: runSchedule,
}

var scheduleFlags struct {
	symbols             string
	intervals           string
	venues              string
	dataDir             string
	wormDir             string
	calibratorManifest  string
	dsn                 string
	recommendationTime  string
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	f := &scheduleFlags
	scheduleCmd.Flags().StringVar(&f.symbols, "symbols", "", "Comma-separated universe symbols (required)")
	scheduleCmd.Flags().StringVar(&f.intervals, "intervals", "1h", "Comma-separated universe intervals")
	scheduleCmd.Flags().StringVar(&f.venues, "venues", "binance,kraken,okx,coinbase", "Comma-separated venue list for ingest_all")
	scheduleCmd.Flags().StringVar(&f.dataDir, "data-dir", "data/candles", "Candle store root directory")
	scheduleCmd.Flags().StringVar(&f.wormDir, "worm-dir", "data/worm", "WORM snapshot root directory")
	scheduleCmd.Flags().StringVar(&f.calibratorManifest, "calibrator-manifest", "", "Path to the fitted calibrator manifest JSON (required)")
	scheduleCmd.Flags().StringVar(&f.dsn, "database-url", os.Getenv("DATABASE_URL"), "Postgres DSN (optional; recommendations are WORM-only when unset)")
	scheduleCmd.Flags().StringVar(&f.recommendationTime, "recommendation-update-time", "00:05", "UTC HH:MM the daily pipeline fires at")
	scheduleCmd.MarkFlagRequired("symbols")
	scheduleCmd.MarkFlagRequired("calibrator-manifest")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	f := scheduleFlags

	adapters, err := buildAdapters(f.venues)
	if err != nil {
		os.Exit(exitFailure)
		return err
	}

	var recStore persistence.RecommendationsRepo
	if f.dsn != "" {
		cfg := postgres.DefaultConfig()
		cfg.DSN = f.dsn
		cfg.Enabled = true
		mgr, err := postgres.NewManager(cfg)
		if err != nil {
			os.Exit(exitTransport)
			return fmt.Errorf("connect to database: %w", err)
		}
		defer mgr.Close()
		recStore = mgr.Repository().Recommendations
	} else {
		log.Warn().Msg("no --database-url/DATABASE_URL set, recommendations will only be WORM-snapshotted")
	}

	orch, err := buildOrchestrator(f.dataDir, f.calibratorManifest, recStore, f.wormDir)
	if err != nil {
		os.Exit(exitFailure)
		return err
	}

	symbols := splitCSV(f.symbols)
	intervals := splitCSV(f.intervals)
	universe := scheduler.Universe{Symbols: symbols, Intervals: intervals}

	store := candle.NewStore(f.dataDir)
	sink := &storeCuratedSink{store: store}
	pipeline := &publishAllPipeline{
		orch:       orch,
		universe:   universe,
		windowDays: 30,
	}

	cfg := scheduler.DefaultConfig()
	cfg.RecommendationUpdateUTC = f.recommendationTime

	sched := scheduler.New(cfg, universe, adapters, scheduler.NewMemoryWindowTracker(), sink, pipeline, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Strs("symbols", symbols).Strs("intervals", intervals).Msg("scheduler starting")
	err = sched.Start(ctx)
	if err != nil && err != context.Canceled {
		os.Exit(exitFailure)
		return fmt.Errorf("scheduler stopped: %w", err)
	}
	log.Info().Msg("scheduler shut down cleanly")
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
