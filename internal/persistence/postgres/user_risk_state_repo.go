package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quantcandle/signalengine/internal/persistence"
	"github.com/quantcandle/signalengine/internal/risk"
)

type userRiskStateRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUserRiskStateRepo creates the Postgres-backed `user_risk_state` repo.
func NewUserRiskStateRepo(db *sqlx.DB, timeout time.Duration) persistence.UserRiskStateRepo {
	return &userRiskStateRepo{db: db, timeout: timeout}
}

// userRiskStateRow mirrors risk.UserRiskState with MonthlyReturns stored
// as a JSONB column, since the trailing-returns slice has no natural
// relational shape and is only ever read back whole for Monte-Carlo
// ruin simulation.
type userRiskStateRow struct {
	UserID            string  `db:"user_id"`
	CapitalUSD        float64 `db:"capital_usd"`
	EquityUSD         float64 `db:"equity_usd"`
	DailyRiskUsedPct  float64 `db:"daily_risk_used_pct"`
	Trades24h         int     `db:"trades_24h"`
	ConsecutiveLosses int     `db:"consecutive_losses"`
	TradeCount12h     int     `db:"trade_count_12h"`
	CurrentLeverage   float64 `db:"current_leverage"`
	LeverageOverSince int64   `db:"leverage_over_since"`
	ExposureUSD       float64 `db:"exposure_usd"`
	MonthlyReturns    []byte  `db:"monthly_returns"`
}

func (r *userRiskStateRepo) Get(ctx context.Context, userID string) (*risk.UserRiskState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row userRiskStateRow
	const query = `
		SELECT user_id, capital_usd, equity_usd, daily_risk_used_pct, trades_24h,
			consecutive_losses, trade_count_12h, current_leverage,
			leverage_over_since, exposure_usd, monthly_returns
		FROM user_risk_state WHERE user_id = $1`

	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user risk state for %s: %w", userID, err)
	}

	var returns []float64
	if len(row.MonthlyReturns) > 0 {
		if err := json.Unmarshal(row.MonthlyReturns, &returns); err != nil {
			return nil, fmt.Errorf("unmarshal monthly returns for %s: %w", userID, err)
		}
	}

	return &risk.UserRiskState{
		UserID:            row.UserID,
		CapitalUSD:        row.CapitalUSD,
		EquityUSD:         row.EquityUSD,
		DailyRiskUsedPct:  row.DailyRiskUsedPct,
		Trades24h:         row.Trades24h,
		ConsecutiveLosses: row.ConsecutiveLosses,
		TradeCount12h:     row.TradeCount12h,
		CurrentLeverage:   row.CurrentLeverage,
		LeverageOverSince: row.LeverageOverSince,
		ExposureUSD:       row.ExposureUSD,
		MonthlyReturns:    returns,
	}, nil
}

func (r *userRiskStateRepo) Upsert(ctx context.Context, state risk.UserRiskState) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	returnsJSON, err := json.Marshal(state.MonthlyReturns)
	if err != nil {
		return fmt.Errorf("marshal monthly returns for %s: %w", state.UserID, err)
	}

	const query = `
		INSERT INTO user_risk_state (
			user_id, capital_usd, equity_usd, daily_risk_used_pct, trades_24h,
			consecutive_losses, trade_count_12h, current_leverage,
			leverage_over_since, exposure_usd, monthly_returns
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			capital_usd = EXCLUDED.capital_usd,
			equity_usd = EXCLUDED.equity_usd,
			daily_risk_used_pct = EXCLUDED.daily_risk_used_pct,
			trades_24h = EXCLUDED.trades_24h,
			consecutive_losses = EXCLUDED.consecutive_losses,
			trade_count_12h = EXCLUDED.trade_count_12h,
			current_leverage = EXCLUDED.current_leverage,
			leverage_over_since = EXCLUDED.leverage_over_since,
			exposure_usd = EXCLUDED.exposure_usd,
			monthly_returns = EXCLUDED.monthly_returns`

	_, err = r.db.ExecContext(ctx, query,
		state.UserID, state.CapitalUSD, state.EquityUSD, state.DailyRiskUsedPct, state.Trades24h,
		state.ConsecutiveLosses, state.TradeCount12h, state.CurrentLeverage,
		state.LeverageOverSince, state.ExposureUSD, returnsJSON)
	if err != nil {
		return fmt.Errorf("upsert user risk state for %s: %w", state.UserID, err)
	}
	return nil
}
