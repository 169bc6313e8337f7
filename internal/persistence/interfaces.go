// Package persistence defines the relational schema (spec.md §6) as Go
// repository interfaces plus the row types each one persists. Concrete
// Postgres implementations in internal/persistence/postgres back the
// seven tables the orchestrator/risk/backtest hot path touches on every
// publication; the remaining nine tables have no interface here and are
// only named in the note at the end of this file.
//
// Grounded on the teacher's internal/persistence/interfaces.go: plain
// Go structs with db struct tags, one interface per table, health
// checking split out from data access.
package persistence

import (
	"context"
	"time"

	"github.com/quantcandle/signalengine/internal/risk"
	"github.com/quantcandle/signalengine/internal/signal"
)

// TimeRange bounds a query window, inclusive on both ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// RecommendationsRepo persists the `recommendations` table: one row per
// published Signal, unique on (date, market_timestamp).
type RecommendationsRepo interface {
	// Save inserts a recommendation, returning a uniqueness-violation
	// error if (date, market_timestamp) already has a row — the second
	// emission for the same spot snapshot is dropped, not overwritten.
	Save(ctx context.Context, rec signal.Recommendation) error
	GetByID(ctx context.Context, id string) (*signal.Recommendation, error)
	ListOpenByUser(ctx context.Context, userID string) ([]signal.Recommendation, error)
	// ListBySymbolSince returns every recommendation for symbol generated
	// at or after since, newest first — the validate-sltp command's
	// fulfillment-audit source.
	ListBySymbolSince(ctx context.Context, symbol string, since time.Time) ([]signal.Recommendation, error)
	// CloseRecommendation transitions status to "closed" and records the
	// exit, used when a later bar confirms SL/TP was hit or the position
	// was superseded.
	CloseRecommendation(ctx context.Context, id string, closedAt time.Time, exitReason string, exitPrice float64) error
}

// RiskAuditRow is one guardrail decision taken for a candidate, written
// whether the candidate was blocked, downgraded, or passed clean.
type RiskAuditRow struct {
	ID              int64     `db:"id"`
	UserID          string    `db:"user_id"`
	Symbol          string    `db:"symbol"`
	AuditType       string    `db:"audit_type"` // e.g. "capital_missing", "daily_risk_cap", "leverage_hard_stop"
	Passed          bool      `db:"passed"`
	Downgrade       bool      `db:"downgrade"`
	Reason          string    `db:"reason"`
	RuinProbability float64   `db:"ruin_probability"`
	ContextJSON     []byte    `db:"context_json"`
	CreatedAt       time.Time `db:"created_at"`
}

// RiskAuditRepo persists the `risk_audit` table.
type RiskAuditRepo interface {
	Insert(ctx context.Context, row RiskAuditRow) error
	ListByUser(ctx context.Context, userID string, tr TimeRange) ([]RiskAuditRow, error)
}

// ExposureLedgerRow mirrors spec.md §3's ExposureLedger entity: one row
// per open (or formerly open) position contributing to a user's
// aggregate beta-adjusted exposure.
type ExposureLedgerRow struct {
	UserID           string           `db:"user_id"`
	RecommendationID string           `db:"recommendation_id"`
	Symbol           string           `db:"symbol"`
	Direction        signal.Direction `db:"direction"`
	Notional         float64          `db:"notional"`
	BetaBucket       string           `db:"beta_bucket"`
	BetaValue        float64          `db:"beta_value"`
	EntryPrice       float64          `db:"entry_price"`
	OpenedAt         time.Time        `db:"opened_at"`
	ClosedAt         *time.Time       `db:"closed_at"`
	IsActive         bool             `db:"is_active"`
}

// ExposureLedgerRepo persists the `exposure_ledger` table. Unique on
// (user_id, recommendation_id).
type ExposureLedgerRepo interface {
	Open(ctx context.Context, row ExposureLedgerRow) error
	Close(ctx context.Context, userID, recommendationID string, closedAt time.Time) error
	// ActiveExposureUSD sums Notional across is_active rows for a user —
	// what the Risk Evaluator's exposure-limit check (C9 check 6) reads.
	ActiveExposureUSD(ctx context.Context, userID string) (float64, error)
	ListActive(ctx context.Context, userID string) ([]ExposureLedgerRow, error)
}

// EnsembleWeightsRow is one regime-partitioned strategy weight
// snapshot, keyed by (regime, strategy_name, snapshot_date).
type EnsembleWeightsRow struct {
	Regime       signal.Regime `db:"regime"`
	StrategyName string        `db:"strategy_name"`
	SnapshotDate time.Time     `db:"snapshot_date"`
	Weight       float64       `db:"weight"`
	IsActive     bool          `db:"is_active"`
}

// EnsembleWeightsRepo persists the `ensemble_weights` table.
type EnsembleWeightsRepo interface {
	Upsert(ctx context.Context, row EnsembleWeightsRow) error
	// ActiveForRegime returns the newest-snapshot-date active weights for
	// a regime, keyed by strategy name — the aggregator's weight source.
	ActiveForRegime(ctx context.Context, regime signal.Regime) (map[string]float64, error)
}

// UserRiskStateRepo persists the `user_risk_state` table: the mutable
// per-user counters the Risk Evaluator reads and updates. Mutation must
// be serialized per user by the caller — this repo does no locking of
// its own.
type UserRiskStateRepo interface {
	Get(ctx context.Context, userID string) (*risk.UserRiskState, error)
	Upsert(ctx context.Context, state risk.UserRiskState) error
}

// SignalOutcomeRow is the reference row written alongside every
// published recommendation (spec.md §4.12 step 8), later updated once
// the position's real-world outcome is known.
type SignalOutcomeRow struct {
	RecommendationID string           `db:"recommendation_id"`
	Symbol           string           `db:"symbol"`
	Direction        signal.Direction `db:"direction"`
	PublishedAt      time.Time        `db:"published_at"`
	Outcome          string           `db:"outcome"` // "pending", "hit_tp", "hit_sl", "expired"
	RealizedReturn   *float64         `db:"realized_return"`
	LabeledAt        *time.Time       `db:"labeled_at"`
}

// SignalOutcomesRepo persists the `signal_outcomes` table.
type SignalOutcomesRepo interface {
	Insert(ctx context.Context, row SignalOutcomeRow) error
	LabelOutcome(ctx context.Context, recommendationID, outcome string, realizedReturn float64, labeledAt time.Time) error
	ListPending(ctx context.Context, olderThan time.Time) ([]SignalOutcomeRow, error)
}

// BacktestResultRow is one persisted CampaignResult summary — the
// metrics the preflight KPI guardrail (C11 check 5) reads back for
// reproduction and audit.
type BacktestResultRow struct {
	CampaignID     string    `db:"campaign_id"`
	Symbol         string    `db:"symbol"`
	Interval       string    `db:"interval"`
	Start          time.Time `db:"start_ts"`
	End            time.Time `db:"end_ts"`
	InitialCapital float64   `db:"initial_capital"`
	FinalCapital   float64   `db:"final_capital"`
	TotalTrades    int       `db:"total_trades"`
	WinRatePct     float64   `db:"win_rate_pct"`
	CAGRPct        float64   `db:"cagr_pct"`
	MaxDrawdownPct float64   `db:"max_drawdown_pct"`
	Calmar         float64   `db:"calmar"`
	ParamsDigest   string    `db:"params_digest"`
	Seed           int64     `db:"seed"`
	CreatedAt      time.Time `db:"created_at"`
}

// BacktestResultsRepo persists the `backtest_results` table.
type BacktestResultsRepo interface {
	Save(ctx context.Context, row BacktestResultRow) error
	GetByCampaignID(ctx context.Context, campaignID string) (*BacktestResultRow, error)
	ListBySymbol(ctx context.Context, symbol string, tr TimeRange) ([]BacktestResultRow, error)
}

// Repository aggregates the hot-path repositories the orchestrator,
// risk evaluator, and backtest/preflight flows depend on.
type Repository struct {
	Recommendations RecommendationsRepo
	RiskAudit       RiskAuditRepo
	ExposureLedger  ExposureLedgerRepo
	EnsembleWeights EnsembleWeightsRepo
	UserRiskState   UserRiskStateRepo
	SignalOutcomes  SignalOutcomesRepo
	BacktestResults BacktestResultsRepo
}

// HealthCheck reports repository connectivity, surfaced by `check-alerts`.
type HealthCheck struct {
	Healthy        bool
	Errors         []string
	ConnectionPool map[string]int
	LastCheck      time.Time
	ResponseTimeMS int64
}

// RepositoryHealth is implemented by the Postgres connection manager.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}

// The remaining nine tables named in spec.md §6 — run_logs,
// strategy_champions, exports_audit, cooldown_events, leverage_alerts,
// knowledge_articles, user_readings, performance_periodic,
// knowledge_engagement — back reporting, scheduler run history, and
// the knowledge-base content system. None of those surfaces are wired
// by this engine's CLI or orchestrator yet (report rendering and the
// knowledge base are explicit Non-goals per spec.md §4's scope note),
// so no interface is declared for them: adding one with no caller
// would just be another unwired stub.
