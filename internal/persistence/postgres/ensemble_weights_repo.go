package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quantcandle/signalengine/internal/persistence"
	"github.com/quantcandle/signalengine/internal/signal"
)

type ensembleWeightsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEnsembleWeightsRepo creates the Postgres-backed `ensemble_weights` repo.
func NewEnsembleWeightsRepo(db *sqlx.DB, timeout time.Duration) persistence.EnsembleWeightsRepo {
	return &ensembleWeightsRepo{db: db, timeout: timeout}
}

func (r *ensembleWeightsRepo) Upsert(ctx context.Context, row persistence.EnsembleWeightsRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO ensemble_weights (regime, strategy_name, snapshot_date, weight, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (regime, strategy_name, snapshot_date)
		DO UPDATE SET weight = EXCLUDED.weight, is_active = EXCLUDED.is_active`

	_, err := r.db.ExecContext(ctx, query, row.Regime, row.StrategyName, row.SnapshotDate, row.Weight, row.IsActive)
	if err != nil {
		return fmt.Errorf("upsert ensemble weight %s/%s: %w", row.Regime, row.StrategyName, err)
	}
	return nil
}

func (r *ensembleWeightsRepo) ActiveForRegime(ctx context.Context, regime signal.Regime) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type weightRow struct {
		StrategyName string  `db:"strategy_name"`
		Weight       float64 `db:"weight"`
	}
	var rows []weightRow
	const query = `
		SELECT DISTINCT ON (strategy_name) strategy_name, weight
		FROM ensemble_weights
		WHERE regime = $1 AND is_active = true
		ORDER BY strategy_name, snapshot_date DESC`

	if err := r.db.SelectContext(ctx, &rows, query, regime); err != nil {
		return nil, fmt.Errorf("active ensemble weights for regime %s: %w", regime, err)
	}

	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.StrategyName] = row.Weight
	}
	return out, nil
}
