package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quantcandle/signalengine/internal/persistence"
)

type backtestResultsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBacktestResultsRepo creates the Postgres-backed `backtest_results` repo.
func NewBacktestResultsRepo(db *sqlx.DB, timeout time.Duration) persistence.BacktestResultsRepo {
	return &backtestResultsRepo{db: db, timeout: timeout}
}

func (r *backtestResultsRepo) Save(ctx context.Context, row persistence.BacktestResultRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO backtest_results (
			campaign_id, symbol, interval, start_ts, end_ts, initial_capital,
			final_capital, total_trades, win_rate_pct, cagr_pct, max_drawdown_pct,
			calmar, params_digest, seed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.ExecContext(ctx, query,
		row.CampaignID, row.Symbol, row.Interval, row.Start, row.End, row.InitialCapital,
		row.FinalCapital, row.TotalTrades, row.WinRatePct, row.CAGRPct, row.MaxDrawdownPct,
		row.Calmar, row.ParamsDigest, row.Seed, row.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("backtest result already recorded for campaign %s: %w", row.CampaignID, err)
		}
		return fmt.Errorf("save backtest result for campaign %s: %w", row.CampaignID, err)
	}
	return nil
}

func (r *backtestResultsRepo) GetByCampaignID(ctx context.Context, campaignID string) (*persistence.BacktestResultRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row persistence.BacktestResultRow
	const query = `
		SELECT campaign_id, symbol, interval, start_ts, end_ts, initial_capital,
			final_capital, total_trades, win_rate_pct, cagr_pct, max_drawdown_pct,
			calmar, params_digest, seed, created_at
		FROM backtest_results WHERE campaign_id = $1`

	if err := r.db.GetContext(ctx, &row, query, campaignID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get backtest result for campaign %s: %w", campaignID, err)
	}
	return &row, nil
}

func (r *backtestResultsRepo) ListBySymbol(ctx context.Context, symbol string, tr persistence.TimeRange) ([]persistence.BacktestResultRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.BacktestResultRow
	const query = `
		SELECT campaign_id, symbol, interval, start_ts, end_ts, initial_capital,
			final_capital, total_trades, win_rate_pct, cagr_pct, max_drawdown_pct,
			calmar, params_digest, seed, created_at
		FROM backtest_results
		WHERE symbol = $1 AND start_ts >= $2 AND end_ts <= $3
		ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &rows, query, symbol, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("list backtest results for %s: %w", symbol, err)
	}
	return rows, nil
}
