package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantcandle/signalengine/internal/candle"
	"github.com/quantcandle/signalengine/internal/ingest"
	"github.com/quantcandle/signalengine/internal/signal"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run a historical multi-venue backfill for one symbol/interval",
	Long: `Fetches candles from every requested venue over [start, end), reconciles
them into a single curated series, and writes one partition per UTC day
to the candle store (C1/C2/C3).`,
	RunE: runIngest,
}

var ingestFlags struct {
	symbol   string
	interval string
	start    string
	end      string
	venues   string
	dataDir  string
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestFlags.symbol, "symbol", "", "Symbol to backfill, e.g. BTCUSDT (required)")
	ingestCmd.Flags().StringVar(&ingestFlags.interval, "interval", "1h", "Candle interval")
	ingestCmd.Flags().StringVar(&ingestFlags.start, "start", "", "Backfill start, RFC3339 (required)")
	ingestCmd.Flags().StringVar(&ingestFlags.end, "end", "", "Backfill end, RFC3339 (required)")
	ingestCmd.Flags().StringVar(&ingestFlags.venues, "venues", "binance,kraken,okx,coinbase", "Comma-separated venue list")
	ingestCmd.Flags().StringVar(&ingestFlags.dataDir, "data-dir", "data/candles", "Candle store root directory")
	ingestCmd.MarkFlagRequired("symbol")
	ingestCmd.MarkFlagRequired("start")
	ingestCmd.MarkFlagRequired("end")
}

func runIngest(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(time.RFC3339, ingestFlags.start)
	if err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("parse --start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, ingestFlags.end)
	if err != nil {
		os.Exit(exitFailure)
		return fmt.Errorf("parse --end: %w", err)
	}

	adapters, err := buildAdapters(ingestFlags.venues)
	if err != nil {
		os.Exit(exitFailure)
		return err
	}

	ctx := context.Background()
	frames, errs := ingest.FetchAll(ctx, adapters, ingestFlags.symbol, ingestFlags.interval, start, end)
	for venueName, venueErr := range errs {
		log.Warn().Str("venue", venueName).Err(venueErr).Msg("venue fetch failed, excluded from reconciliation")
	}
	if len(frames) == 0 {
		log.Error().Msg("every venue failed, nothing to curate")
		os.Exit(exitTransport)
		return fmt.Errorf("no venue frames available for %s/%s", ingestFlags.symbol, ingestFlags.interval)
	}

	intervalDur := intervalToDuration(ingestFlags.interval)
	curated := ingest.Curate(frames, ingestFlags.symbol, ingestFlags.interval, intervalDur)
	log.Info().Int("candles", len(curated.Candles)).Int("fill_count", curated.FillCount).Int("gaps", len(curated.Gaps)).Msg("curated frame assembled")

	store := candle.NewStore(ingestFlags.dataDir)
	written, err := writePartitionsByDay(store, curated)
	if err != nil {
		os.Exit(exitFailure)
		return err
	}

	log.Info().Int("partitions_written", written).Msg("ingest complete")
	return nil
}

// writePartitionsByDay groups a curated frame's candles by UTC calendar
// day and writes one partition per day, matching the candle store's
// date-partitioned layout (spec.md §4.1).
func writePartitionsByDay(store *candle.Store, frame ingest.CuratedFrame) (int, error) {
	byDay := make(map[string][]int)
	order := make([]string, 0)
	for i, c := range frame.Candles {
		key := c.OpenTime.UTC().Format("2006-01-02")
		if _, ok := byDay[key]; !ok {
			order = append(order, key)
		}
		byDay[key] = append(byDay[key], i)
	}

	for _, key := range order {
		day, err := time.Parse("2006-01-02", key)
		if err != nil {
			return 0, fmt.Errorf("parse partition date %s: %w", key, err)
		}
		idxs := byDay[key]
		candles := make([]signal.Candle, 0, len(idxs))
		for _, idx := range idxs {
			candles = append(candles, frame.Candles[idx])
		}
		if err := store.WritePartition(frame.Symbol, frame.Interval, day, candles); err != nil {
			return 0, fmt.Errorf("write partition %s: %w", key, err)
		}
	}
	return len(order), nil
}
