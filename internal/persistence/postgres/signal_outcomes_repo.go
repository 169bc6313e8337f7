package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quantcandle/signalengine/internal/persistence"
)

type signalOutcomesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalOutcomesRepo creates the Postgres-backed `signal_outcomes` repo.
func NewSignalOutcomesRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalOutcomesRepo {
	return &signalOutcomesRepo{db: db, timeout: timeout}
}

func (r *signalOutcomesRepo) Insert(ctx context.Context, row persistence.SignalOutcomeRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO signal_outcomes (recommendation_id, symbol, direction, published_at, outcome)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, row.RecommendationID, row.Symbol, row.Direction, row.PublishedAt, row.Outcome)
	if err != nil {
		return fmt.Errorf("insert signal outcome for %s: %w", row.RecommendationID, err)
	}
	return nil
}

func (r *signalOutcomesRepo) LabelOutcome(ctx context.Context, recommendationID, outcome string, realizedReturn float64, labeledAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		UPDATE signal_outcomes
		SET outcome = $2, realized_return = $3, labeled_at = $4
		WHERE recommendation_id = $1`

	res, err := r.db.ExecContext(ctx, query, recommendationID, outcome, realizedReturn, labeledAt)
	if err != nil {
		return fmt.Errorf("label signal outcome for %s: %w", recommendationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("label signal outcome for %s: no such row", recommendationID)
	}
	return nil
}

func (r *signalOutcomesRepo) ListPending(ctx context.Context, olderThan time.Time) ([]persistence.SignalOutcomeRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.SignalOutcomeRow
	const query = `
		SELECT recommendation_id, symbol, direction, published_at, outcome, realized_return, labeled_at
		FROM signal_outcomes
		WHERE outcome = 'pending' AND published_at <= $1
		ORDER BY published_at ASC`

	if err := r.db.SelectContext(ctx, &rows, query, olderThan); err != nil {
		return nil, fmt.Errorf("list pending signal outcomes: %w", err)
	}
	return rows, nil
}
