// Package signal defines the data-model types shared across component
// boundaries: candles, recommendations, trades, and the WORM-persisted
// snapshot envelope. These mirror the relational columns in spec.md §3/§6
// without importing any persistence concern themselves.
package signal

import "time"

// Direction is the published recommendation side.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

// Regime is the market-state label produced by the regime detector (C6)
// and consumed by the ensemble weight store.
type Regime string

const (
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeRange    Regime = "range"
	RegimeNeutral  Regime = "neutral"
	RegimeCalm     Regime = "calm"
	RegimeBalanced Regime = "balanced"
	RegimeStress   Regime = "stress"
)

// Candle is the canonical OHLCV bar every venue adapter normalizes to.
type Candle struct {
	Symbol         string
	Interval       string
	OpenTime       time.Time
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Volume         float64
	QuoteVolume    float64
	TradeCount     int64
	RelativeVolume float64 // annotated by curation (C3), zero until then
	Source         string  // venue name the curator selected for this bar
}

// SignalDataInputs is the immutable snapshot assembled by the Signal Data
// Provider (C4) and handed unmodified to every strategy and the
// calibrator. No downstream component may mutate it.
type SignalDataInputs struct {
	Symbol       string
	Interval     string
	AsOf         time.Time
	Candles      []Candle
	HigherTF     []Candle // cross-timeframe alignment series
	FundingRate  float64
	OpenInterest float64
	GeneratedAt  time.Time
}

// StrategyVote is one strategy's opinion before aggregation.
type StrategyVote struct {
	Strategy   string
	Direction  Direction
	Confidence float64 // [0,1]
	Rationale  string
}

// EnsembleDecision is C6's aggregated output, before calibration.
type EnsembleDecision struct {
	Direction    Direction
	RawScore     float64 // weighted vote score before calibration
	Votes        []StrategyVote
	Regime       Regime
	WeightsUsed  map[string]float64
}

// CalibratedConfidence is C7's output: a probability-calibrated score
// plus the metadata describing which calibrator produced it.
type CalibratedConfidence struct {
	Probability float64
	Regime      Regime
	ModelID     string
	Fallback    bool // true when no regime-specific artifact existed
}

// Recommendation is the row persisted to the `recommendations` table and
// returned to the caller by the orchestrator (C12).
type Recommendation struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	Symbol           string    `db:"symbol"`
	Interval         string    `db:"interval"`
	Direction        Direction `db:"direction"`
	Confidence       float64   `db:"confidence"`
	EntryPrice       float64   `db:"entry_price"`
	StopLoss         float64   `db:"stop_loss"`
	TakeProfit       float64   `db:"take_profit"`
	PositionSizeUSD  float64   `db:"position_size_usd"`
	Leverage         float64   `db:"leverage"`
	Regime           Regime    `db:"regime"`
	RiskRewardRatio  float64   `db:"risk_reward_ratio"`
	RuinProbability  float64   `db:"ruin_probability"`
	TPProbability    float64   `db:"tp_probability"`
	SLProbability    float64   `db:"sl_probability"`
	GeneratedAt      time.Time `db:"generated_at"`
	MarketTimestamp  time.Time `db:"market_timestamp"`
	TrackingErrorBPS float64   `db:"tracking_error_bps"`
	Status           string    `db:"status"` // "published", "capital_missing", "risk_blocked", ...
}

// Trade is an executed (real or simulated) position record.
type Trade struct {
	OrderID      string
	UserID       string
	Symbol       string
	Venue        string
	Direction    Direction
	EntryPrice   float64
	ExitPrice    float64
	Quantity     float64
	Leverage     float64
	OpenedAt     time.Time
	ClosedAt     time.Time
	PnLUSD       float64
	ExitReason   string
	MAE          float64
	MFE          float64
}
