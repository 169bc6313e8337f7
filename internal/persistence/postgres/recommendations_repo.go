package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quantcandle/signalengine/internal/persistence"
	"github.com/quantcandle/signalengine/internal/signal"
)

type recommendationsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRecommendationsRepo creates the Postgres-backed `recommendations` repo.
func NewRecommendationsRepo(db *sqlx.DB, timeout time.Duration) persistence.RecommendationsRepo {
	return &recommendationsRepo{db: db, timeout: timeout}
}

func (r *recommendationsRepo) Save(ctx context.Context, rec signal.Recommendation) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO recommendations (
			id, user_id, symbol, interval, direction, confidence, entry_price,
			stop_loss, take_profit, position_size_usd, leverage, regime,
			risk_reward_ratio, ruin_probability, tp_probability, sl_probability,
			generated_at, market_timestamp, tracking_error_bps, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20
		)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.Symbol, rec.Interval, rec.Direction, rec.Confidence,
		rec.EntryPrice, rec.StopLoss, rec.TakeProfit, rec.PositionSizeUSD, rec.Leverage,
		rec.Regime, rec.RiskRewardRatio, rec.RuinProbability, rec.TPProbability,
		rec.SLProbability, rec.GeneratedAt, rec.MarketTimestamp, rec.TrackingErrorBPS, rec.Status)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("recommendation already published for this market timestamp: %w", err)
		}
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

func (r *recommendationsRepo) GetByID(ctx context.Context, id string) (*signal.Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rec signal.Recommendation
	const query = `
		SELECT id, user_id, symbol, interval, direction, confidence, entry_price,
			stop_loss, take_profit, position_size_usd, leverage, regime,
			risk_reward_ratio, ruin_probability, tp_probability, sl_probability,
			generated_at, market_timestamp, tracking_error_bps, status
		FROM recommendations WHERE id = $1`

	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recommendation %s: %w", id, err)
	}
	return &rec, nil
}

func (r *recommendationsRepo) ListOpenByUser(ctx context.Context, userID string) ([]signal.Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var recs []signal.Recommendation
	const query = `
		SELECT id, user_id, symbol, interval, direction, confidence, entry_price,
			stop_loss, take_profit, position_size_usd, leverage, regime,
			risk_reward_ratio, ruin_probability, tp_probability, sl_probability,
			generated_at, market_timestamp, tracking_error_bps, status
		FROM recommendations
		WHERE user_id = $1 AND status = 'published'
		ORDER BY generated_at DESC`

	if err := r.db.SelectContext(ctx, &recs, query, userID); err != nil {
		return nil, fmt.Errorf("list open recommendations for %s: %w", userID, err)
	}
	return recs, nil
}

func (r *recommendationsRepo) ListBySymbolSince(ctx context.Context, symbol string, since time.Time) ([]signal.Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var recs []signal.Recommendation
	const query = `
		SELECT id, user_id, symbol, interval, direction, confidence, entry_price,
			stop_loss, take_profit, position_size_usd, leverage, regime,
			risk_reward_ratio, ruin_probability, tp_probability, sl_probability,
			generated_at, market_timestamp, tracking_error_bps, status
		FROM recommendations
		WHERE symbol = $1 AND generated_at >= $2
		ORDER BY generated_at DESC`

	if err := r.db.SelectContext(ctx, &recs, query, symbol, since); err != nil {
		return nil, fmt.Errorf("list recommendations for %s since %s: %w", symbol, since, err)
	}
	return recs, nil
}

func (r *recommendationsRepo) CloseRecommendation(ctx context.Context, id string, closedAt time.Time, exitReason string, exitPrice float64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE recommendations
		SET status = 'closed', closed_at = $2, exit_reason = $3, exit_price = $4
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, closedAt, exitReason, exitPrice)
	if err != nil {
		return fmt.Errorf("close recommendation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close recommendation %s: no such row", id)
	}
	return nil
}
