package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantcandle/signalengine/internal/candle"
	"github.com/quantcandle/signalengine/internal/ingest"
)

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Re-curate stored partitions: gap-fill, relative-volume, checksum verify",
	Long: `Reloads each requested partition from the candle store, verifying its
checksum, re-running gap-fill and relative-volume annotation, and
rewriting the partition (C1/C3 maintenance pass).`,
	RunE: runCurate,
}

var curateFlags struct {
	interval string
	symbols  string
	date     string
	dataDir  string
}

var allIntervals = []string{"15m", "30m", "1h", "4h", "1d", "1w"}

func init() {
	rootCmd.AddCommand(curateCmd)
	curateCmd.Flags().StringVar(&curateFlags.interval, "interval", "1h", "Interval, or \"all\" for every supported interval")
	curateCmd.Flags().StringVar(&curateFlags.symbols, "symbols", "", "Comma-separated symbols to curate (required)")
	curateCmd.Flags().StringVar(&curateFlags.date, "date", "", "UTC partition date YYYY-MM-DD (defaults to today)")
	curateCmd.Flags().StringVar(&curateFlags.dataDir, "data-dir", "data/candles", "Candle store root directory")
	curateCmd.MarkFlagRequired("symbols")
}

func runCurate(cmd *cobra.Command, args []string) error {
	intervals := allIntervals
	if curateFlags.interval != "all" {
		intervals = []string{curateFlags.interval}
	}

	date := time.Now().UTC()
	if curateFlags.date != "" {
		parsed, err := time.Parse("2006-01-02", curateFlags.date)
		if err != nil {
			os.Exit(exitFailure)
			return fmt.Errorf("parse --date: %w", err)
		}
		date = parsed
	}

	store := candle.NewStore(curateFlags.dataDir)
	symbols := strings.Split(curateFlags.symbols, ",")

	var failures int
	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		for _, interval := range intervals {
			if err := curateOne(store, symbol, interval, date); err != nil {
				log.Error().Str("symbol", symbol).Str("interval", interval).Err(err).Msg("curation failed")
				failures++
				continue
			}
		}
	}

	if failures > 0 {
		os.Exit(exitFailure)
		return fmt.Errorf("%d partition(s) failed to curate", failures)
	}
	return nil
}

func curateOne(store *candle.Store, symbol, interval string, date time.Time) error {
	candles, status, err := store.ReadPartition(symbol, interval, date)
	if err != nil {
		return fmt.Errorf("read partition: %w", err)
	}
	log.Info().Str("symbol", symbol).Str("interval", interval).Int("checksum_status", int(status)).Msg("partition read")

	frames := []ingest.VenueFrame{{Venue: "stored", Candles: candles}}
	curated := ingest.Curate(frames, symbol, interval, intervalToDuration(interval))

	if len(curated.Gaps) > 0 {
		log.Warn().Str("symbol", symbol).Str("interval", interval).Int("gaps", len(curated.Gaps)).Msg("unresolved gaps after curation")
	}

	return store.WritePartition(symbol, interval, date, curated.Candles)
}
