package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quantcandle/signalengine/internal/persistence"
)

type exposureLedgerRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewExposureLedgerRepo creates the Postgres-backed `exposure_ledger` repo.
func NewExposureLedgerRepo(db *sqlx.DB, timeout time.Duration) persistence.ExposureLedgerRepo {
	return &exposureLedgerRepo{db: db, timeout: timeout}
}

func (r *exposureLedgerRepo) Open(ctx context.Context, row persistence.ExposureLedgerRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO exposure_ledger (
			user_id, recommendation_id, symbol, direction, notional,
			beta_bucket, beta_value, entry_price, opened_at, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true)`

	_, err := r.db.ExecContext(ctx, query,
		row.UserID, row.RecommendationID, row.Symbol, row.Direction, row.Notional,
		row.BetaBucket, row.BetaValue, row.EntryPrice, row.OpenedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("exposure already open for %s/%s: %w", row.UserID, row.RecommendationID, err)
		}
		return fmt.Errorf("open exposure for %s/%s: %w", row.UserID, row.RecommendationID, err)
	}
	return nil
}

func (r *exposureLedgerRepo) Close(ctx context.Context, userID, recommendationID string, closedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE exposure_ledger
		SET is_active = false, closed_at = $3
		WHERE user_id = $1 AND recommendation_id = $2`

	_, err := r.db.ExecContext(ctx, query, userID, recommendationID, closedAt)
	if err != nil {
		return fmt.Errorf("close exposure for %s/%s: %w", userID, recommendationID, err)
	}
	return nil
}

func (r *exposureLedgerRepo) ActiveExposureUSD(ctx context.Context, userID string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var total float64
	const query = `
		SELECT COALESCE(SUM(notional), 0)
		FROM exposure_ledger WHERE user_id = $1 AND is_active = true`

	if err := r.db.GetContext(ctx, &total, query, userID); err != nil {
		return 0, fmt.Errorf("sum active exposure for %s: %w", userID, err)
	}
	return total, nil
}

func (r *exposureLedgerRepo) ListActive(ctx context.Context, userID string) ([]persistence.ExposureLedgerRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.ExposureLedgerRow
	const query = `
		SELECT user_id, recommendation_id, symbol, direction, notional,
			beta_bucket, beta_value, entry_price, opened_at, closed_at, is_active
		FROM exposure_ledger
		WHERE user_id = $1 AND is_active = true
		ORDER BY opened_at DESC`

	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list active exposure for %s: %w", userID, err)
	}
	return rows, nil
}
