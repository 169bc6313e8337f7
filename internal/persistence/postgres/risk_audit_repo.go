package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quantcandle/signalengine/internal/persistence"
)

type riskAuditRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRiskAuditRepo creates the Postgres-backed `risk_audit` repo.
func NewRiskAuditRepo(db *sqlx.DB, timeout time.Duration) persistence.RiskAuditRepo {
	return &riskAuditRepo{db: db, timeout: timeout}
}

func (r *riskAuditRepo) Insert(ctx context.Context, row persistence.RiskAuditRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO risk_audit (
			user_id, symbol, audit_type, passed, downgrade, reason,
			ruin_probability, context_json, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		row.UserID, row.Symbol, row.AuditType, row.Passed, row.Downgrade, row.Reason,
		row.RuinProbability, row.ContextJSON, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert risk audit for %s/%s: %w", row.UserID, row.Symbol, err)
	}
	return nil
}

func (r *riskAuditRepo) ListByUser(ctx context.Context, userID string, tr persistence.TimeRange) ([]persistence.RiskAuditRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.RiskAuditRow
	const query = `
		SELECT id, user_id, symbol, audit_type, passed, downgrade, reason,
			ruin_probability, context_json, created_at
		FROM risk_audit
		WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &rows, query, userID, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("list risk audit for %s: %w", userID, err)
	}
	return rows, nil
}
