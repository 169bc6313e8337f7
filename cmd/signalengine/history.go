package main

import (
	"fmt"
	"time"

	"github.com/quantcandle/signalengine/internal/candle"
	"github.com/quantcandle/signalengine/internal/signal"
)

// readHistory concatenates every daily partition covering [start, end]
// into one ordered candle slice. Missing days are skipped rather than
// treated as fatal, since a campaign window commonly runs past the
// edges of what has actually been ingested.
func readHistory(store *candle.Store, symbol, interval string, start, end time.Time) ([]signal.Candle, error) {
	var out []signal.Candle
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(last) {
		candles, _, err := store.ReadPartition(symbol, interval, day)
		if err != nil {
			day = day.AddDate(0, 0, 1)
			continue
		}
		out = append(out, candles...)
		day = day.AddDate(0, 0, 1)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no stored candles found for %s/%s in [%s, %s]", symbol, interval, start, end)
	}
	return out, nil
}
