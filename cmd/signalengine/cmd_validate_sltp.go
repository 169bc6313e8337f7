package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantcandle/signalengine/internal/candle"
	"github.com/quantcandle/signalengine/internal/persistence/postgres"
	"github.com/quantcandle/signalengine/internal/signal"
)

var validateSltpCmd = &cobra.Command{
	Use:   "validate-sltp",
	Short: "Audit whether published stop-loss/take-profit levels were actually fulfilled as predicted",
	Long: `Replays stored candles against every recommendation published for
--symbol over the trailing --weeks, determines whether price action hit
the take-profit or stop-loss first, and exits non-zero if the
fulfillment rate falls below --fulfillment-threshold.`,
	RunE: runValidateSltp,
}

var validateSltpFlags struct {
	weeks                int
	symbol               string
	venue                string
	fulfillmentThreshold float64
	dataDir              string
	dsn                  string
}

type sltpOutcome struct {
	RecommendationID string  `json:"recommendation_id"`
	Direction        string  `json:"direction"`
	Fulfilled        bool    `json:"fulfilled"`
	ExitReason       string  `json:"exit_reason"`
	ExitPrice        float64 `json:"exit_price,omitempty"`
}

func init() {
	rootCmd.AddCommand(validateSltpCmd)
	f := &validateSltpFlags
	validateSltpCmd.Flags().IntVar(&f.weeks, "weeks", 4, "Trailing window to audit, in weeks")
	validateSltpCmd.Flags().StringVar(&f.symbol, "symbol", "", "Symbol to audit (required)")
	validateSltpCmd.Flags().StringVar(&f.venue, "venue", "binance", "Venue label echoed in the report; candle history is read by symbol and interval only")
	validateSltpCmd.Flags().Float64Var(&f.fulfillmentThreshold, "fulfillment-threshold", 0.6, "Minimum acceptable TP-hit fraction among non-expired recommendations")
	validateSltpCmd.Flags().StringVar(&f.dataDir, "data-dir", "data/candles", "Candle store root directory")
	validateSltpCmd.Flags().StringVar(&f.dsn, "database-url", os.Getenv("DATABASE_URL"), "Postgres DSN holding the recommendations table")
	validateSltpCmd.MarkFlagRequired("symbol")
}

func runValidateSltp(cmd *cobra.Command, args []string) error {
	f := validateSltpFlags
	if f.dsn == "" {
		os.Exit(exitFailure)
		return fmt.Errorf("validate-sltp requires --database-url or DATABASE_URL")
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

	since := time.Now().UTC().AddDate(0, 0, -7*f.weeks)
	recs, err := mgr.Repository().Recommendations.ListBySymbolSince(ctx, f.symbol, since)
	if err != nil {
		os.Exit(exitTransport)
		return fmt.Errorf("list recommendations: %w", err)
	}
	if len(recs) == 0 {
		log.Warn().Str("symbol", f.symbol).Msg("no recommendations found in the audit window")
		return nil
	}

	store := candle.NewStore(f.dataDir)
	var outcomes []sltpOutcome
	var fulfilled, decided int
	for _, rec := range recs {
		history, err := readHistory(store, f.symbol, rec.Interval, rec.MarketTimestamp, time.Now().UTC())
		if err != nil {
			log.Warn().Str("recommendation_id", rec.ID).Err(err).Msg("no history available, skipped")
			continue
		}
		outcome := replaySLTP(rec, history)
		outcomes = append(outcomes, outcome)
		if outcome.ExitReason == "expired" {
			continue
		}
		decided++
		if outcome.Fulfilled {
			fulfilled++
		}
	}

	var fulfillmentRate float64
	if decided > 0 {
		fulfillmentRate = float64(fulfilled) / float64(decided)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(map[string]interface{}{
		"symbol":           f.symbol,
		"venue":            f.venue,
		"weeks":            f.weeks,
		"total":            len(recs),
		"decided":          decided,
		"fulfilled":        fulfilled,
		"fulfillment_rate": fulfillmentRate,
		"threshold":        f.fulfillmentThreshold,
		"outcomes":         outcomes,
	})

	if decided > 0 && fulfillmentRate < f.fulfillmentThreshold {
		log.Error().Float64("fulfillment_rate", fulfillmentRate).Float64("threshold", f.fulfillmentThreshold).
			Msg("fulfillment rate below threshold")
		os.Exit(exitFailure)
	}
	return nil
}

// replaySLTP walks history forward from a recommendation's entry bar,
// reporting whichever of take-profit/stop-loss the subsequent candles
// touch first (intrabar high/low), or "expired" if neither is hit
// within the replayed history.
func replaySLTP(rec signal.Recommendation, history []signal.Candle) sltpOutcome {
	out := sltpOutcome{RecommendationID: rec.ID, Direction: string(rec.Direction), ExitReason: "expired"}
	for _, c := range history {
		if !c.OpenTime.After(rec.MarketTimestamp) {
			continue
		}
		if rec.Direction == signal.DirectionBuy {
			if c.Low <= rec.StopLoss {
				out.ExitReason = "stop_loss"
				out.ExitPrice = rec.StopLoss
				return out
			}
			if c.High >= rec.TakeProfit {
				out.ExitReason = "take_profit"
				out.ExitPrice = rec.TakeProfit
				out.Fulfilled = true
				return out
			}
		} else {
			if c.High >= rec.StopLoss {
				out.ExitReason = "stop_loss"
				out.ExitPrice = rec.StopLoss
				return out
			}
			if c.Low <= rec.TakeProfit {
				out.ExitReason = "take_profit"
				out.ExitPrice = rec.TakeProfit
				out.Fulfilled = true
				return out
			}
		}
	}
	return out
}
