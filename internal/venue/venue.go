// Package venue implements the venue adapters (C2): one client per
// supported exchange, behind a common Adapter interface, wrapped in a
// per-host rate limiter and a circuit breaker so a failing venue
// degrades instead of cascading into the ingestion pipeline.
//
// Grounded on the teacher's internal/provider package
// (ExchangeProvider interface, ProviderConfig/CircuitConfig/BudgetConfig
// shape) generalized from a health-dashboard-oriented provider registry
// into the narrower canonical market-data contract this spec needs, and
// on infra/breakers (gobreaker wrapper) + internal/net/ratelimit
// (per-host token bucket), both kept close to as-is since they are
// already venue-agnostic infrastructure.
package venue

import (
	"context"
	"time"

	"github.com/quantcandle/signalengine/internal/signal"
)

// Adapter is the canonical per-venue market-data contract every
// exchange client implements. Every method returns an
// *xerrors.VenueError on failure, never a raw net/http error.
type Adapter interface {
	Name() string
	SupportsDerivatives() bool

	FetchCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]signal.Candle, error)
	FetchOrderBookDepth(ctx context.Context, symbol string) (OrderBookDepth, error)
	FetchFunding(ctx context.Context, symbol string) (FundingSnapshot, error)
	FetchOpenInterest(ctx context.Context, symbol string) (OpenInterestSnapshot, error)
	FetchLiquidations(ctx context.Context, symbol string, since time.Time) ([]Liquidation, error)
}

// OrderBookDepth is an L1/L2 snapshot, used by the microstructure
// factors in the indicator library (C5).
type OrderBookDepth struct {
	Venue     string
	Symbol    string
	Timestamp time.Time
	BestBid   float64
	BestAsk   float64
	BidSize   float64
	AskSize   float64
	Bids      []PriceLevel
	Asks      []PriceLevel
}

type PriceLevel struct {
	Price float64
	Size  float64
}

// FundingSnapshot is a perpetual-swap funding rate reading.
type FundingSnapshot struct {
	Venue       string
	Symbol      string
	Timestamp   time.Time
	FundingRate float64
	NextFunding time.Time
}

// OpenInterestSnapshot is a derivatives open-interest reading.
type OpenInterestSnapshot struct {
	Venue        string
	Symbol       string
	Timestamp    time.Time
	OpenInterest float64
	USDValue     float64
}

// Liquidation is a single forced-liquidation event.
type Liquidation struct {
	Venue     string
	Symbol    string
	Timestamp time.Time
	Side      string
	Price     float64
	Quantity  float64
}
