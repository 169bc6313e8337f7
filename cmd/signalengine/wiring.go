package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantcandle/signalengine/internal/config"
	"github.com/quantcandle/signalengine/internal/venue"
)

// intervalToDuration maps the CLI's interval strings to their bar
// span, mirroring internal/dataprovider's private interval table.
func intervalToDuration(interval string) time.Duration {
	switch interval {
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// defaultProviderConfig mirrors the rate/circuit defaults every venue
// adapter falls back to when no providers.yaml is supplied — the CLI's
// zero-config path.
func defaultProviderConfig() config.ProviderConfig {
	return config.ProviderConfig{
		RPS:         10,
		Burst:       20,
		DailyBudget: 100000,
		Enabled:     true,
		BackoffMS:   config.BackoffConfig{Base: 500, Max: 30000, Jitter: true},
		Circuit:     config.CircuitConfig{},
	}
}

// buildAdapters resolves a comma-separated venue list into Adapter
// instances, in the order requested.
func buildAdapters(venuesCSV string) ([]venue.Adapter, error) {
	cfg := defaultProviderConfig()
	var adapters []venue.Adapter
	for _, name := range strings.Split(venuesCSV, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		switch name {
		case "binance":
			adapters = append(adapters, venue.NewBinance(cfg))
		case "kraken":
			adapters = append(adapters, venue.NewKraken(cfg))
		case "okx":
			adapters = append(adapters, venue.NewOKX(cfg))
		case "coinbase":
			adapters = append(adapters, venue.NewCoinbase(cfg))
		default:
			return nil, fmt.Errorf("unknown venue %q", name)
		}
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no venues resolved from %q", venuesCSV)
	}
	return adapters, nil
}
