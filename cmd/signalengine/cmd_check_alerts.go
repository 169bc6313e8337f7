package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantcandle/signalengine/internal/candle"
	"github.com/quantcandle/signalengine/internal/dataprovider"
	"github.com/quantcandle/signalengine/internal/persistence/postgres"
	"github.com/quantcandle/signalengine/internal/venue"
)

var checkAlertsCmd = &cobra.Command{
	Use:   "check-alerts",
	Short: "Check data freshness and recommendation tracking-error divergence",
	Long: `Exits non-zero when any requested symbol's curated data has gone
stale beyond C4's freshness threshold, or when the most recent
recommendation's tracking error exceeds --divergence-threshold-bps
(spec.md §6 check-alerts).`,
	RunE: runCheckAlerts,
}

type checkAlertsFlagSet struct {
	symbols                string
	interval               string
	dataDir                string
	dsn                    string
	freshnessThresholdMins int
	divergenceThresholdBps float64
	checkLiveSpread        bool
	maxSpreadBps           float64
}

var checkAlertsFlags checkAlertsFlagSet

type alertFinding struct {
	Symbol string `json:"symbol"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func init() {
	rootCmd.AddCommand(checkAlertsCmd)
	f := &checkAlertsFlags
	checkAlertsCmd.Flags().StringVar(&f.symbols, "symbols", "", "Comma-separated symbols to check (required)")
	checkAlertsCmd.Flags().StringVar(&f.interval, "interval", "1h", "Interval to check")
	checkAlertsCmd.Flags().StringVar(&f.dataDir, "data-dir", "data/candles", "Candle store root directory")
	checkAlertsCmd.Flags().StringVar(&f.dsn, "database-url", os.Getenv("DATABASE_URL"), "Postgres DSN (optional; skips divergence check when unset)")
	checkAlertsCmd.Flags().IntVar(&f.freshnessThresholdMins, "freshness-threshold-minutes", 90, "Maximum age of the latest curated candle")
	checkAlertsCmd.Flags().Float64Var(&f.divergenceThresholdBps, "divergence-threshold-bps", 50.0, "Maximum acceptable tracking-error bps on the latest recommendation")
	checkAlertsCmd.Flags().BoolVar(&f.checkLiveSpread, "check-live-spread", false, "Also sample Binance's live depth-diff websocket book for a spread-blowout check")
	checkAlertsCmd.Flags().Float64Var(&f.maxSpreadBps, "max-spread-bps", 20.0, "Maximum acceptable live bid/ask spread, basis points")
	checkAlertsCmd.MarkFlagRequired("symbols")
}

func runCheckAlerts(cmd *cobra.Command, args []string) error {
	f := checkAlertsFlags
	symbols := strings.Split(f.symbols, ",")
	store := candle.NewStore(f.dataDir)
	freshness := dataprovider.FreshnessConfig{ThresholdMinutes: f.freshnessThresholdMins, ToleranceCandles: 3}
	intervalDur := intervalToDuration(f.interval)

	var findings []alertFinding
	now := time.Now().UTC()

	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		candles, _, err := store.ReadPartition(symbol, f.interval, now)
		if err != nil || len(candles) == 0 {
			findings = append(findings, alertFinding{Symbol: symbol, Kind: "staleness", Detail: "no curated candles found for today's partition"})
			continue
		}
		latest := candles[len(candles)-1]
		age := now.Sub(latest.OpenTime.Add(intervalDur))
		threshold := time.Duration(freshness.ThresholdMinutes) * time.Minute
		if age > threshold {
			findings = append(findings, alertFinding{
				Symbol: symbol, Kind: "staleness",
				Detail: fmt.Sprintf("latest candle is %s old, exceeds %s threshold", age, threshold),
			})
		}
	}

	if f.dsn != "" {
		divergent := checkDivergence(f, symbols)
		findings = append(findings, divergent...)
	} else {
		log.Warn().Msg("no --database-url/DATABASE_URL set, skipping tracking-error divergence check")
	}

	if f.checkLiveSpread {
		findings = append(findings, checkLiveSpread(f, symbols)...)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(map[string]interface{}{
		"checked_at": now,
		"findings":   findings,
		"healthy":    len(findings) == 0,
	})

	if len(findings) > 0 {
		os.Exit(exitFailure)
	}
	return nil
}

func checkDivergence(f checkAlertsFlagSet, symbols []string) []alertFinding {
	cfg := postgres.DefaultConfig()
	cfg.DSN = f.dsn
	cfg.Enabled = true
	mgr, err := postgres.NewManager(cfg)
	if err != nil {
		return []alertFinding{{Kind: "transport", Detail: fmt.Sprintf("could not connect to database: %v", err)}}
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var findings []alertFinding
	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		recs, err := mgr.Repository().Recommendations.ListBySymbolSince(ctx, symbol, time.Now().UTC().AddDate(0, 0, -1))
		if err != nil || len(recs) == 0 {
			continue
		}
		latest := recs[0]
		if latest.TrackingErrorBPS > f.divergenceThresholdBps {
			findings = append(findings, alertFinding{
				Symbol: symbol, Kind: "divergence",
				Detail: fmt.Sprintf("tracking error %.2f bps exceeds %.2f bps threshold", latest.TrackingErrorBPS, f.divergenceThresholdBps),
			})
		}
	}
	return findings
}

// checkLiveSpread samples Binance's depth-diff websocket book (C2's
// BookStream, the near-real-time complement to the REST-polled
// OrderBookDepth the venue adapters otherwise return) and flags any
// symbol whose live bid/ask spread has blown out. The stream needs a
// moment to populate after dialing, so this polls a few times with a
// short sleep rather than taking the very first (likely empty) snapshot.
func checkLiveSpread(f checkAlertsFlagSet, symbols []string) []alertFinding {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := venue.NewBookStream()

	var findings []alertFinding
	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		var depth venue.OrderBookDepth
		for attempt := 0; attempt < 5; attempt++ {
			depth = stream.Snapshot(ctx, symbol)
			if depth.BestBid > 0 && depth.BestAsk > 0 {
				break
			}
			time.Sleep(500 * time.Millisecond)
		}
		if depth.BestBid <= 0 || depth.BestAsk <= 0 {
			findings = append(findings, alertFinding{
				Symbol: symbol, Kind: "live_book_unavailable",
				Detail: "no live depth-diff book populated within the sampling window",
			})
			continue
		}
		mid := (depth.BestBid + depth.BestAsk) / 2
		spreadBps := (depth.BestAsk - depth.BestBid) / mid * 10000
		if spreadBps > f.maxSpreadBps {
			findings = append(findings, alertFinding{
				Symbol: symbol, Kind: "spread_blowout",
				Detail: fmt.Sprintf("live spread %.2f bps exceeds %.2f bps threshold", spreadBps, f.maxSpreadBps),
			})
		}
	}
	return findings
}
