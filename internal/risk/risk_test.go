package risk

import (
	"testing"

	"github.com/quantcandle/signalengine/internal/config"
	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluator() *Evaluator {
	return NewEvaluator(config.DefaultRiskGuardConfig())
}

func baseCandidate() Candidate {
	return Candidate{
		Symbol:          "BTCUSDT",
		Direction:       signal.DirectionBuy,
		EntryPrice:      100,
		StopLoss:        95,
		TakeProfit:      115,
		PositionSizeUSD: 1000,
		Leverage:        1.0,
		RiskUSD:         50,
	}
}

func baseState() UserRiskState {
	return UserRiskState{
		UserID:     "u1",
		CapitalUSD: 10000,
		EquityUSD:  10000,
	}
}

func TestEvaluate_NoCapitalBlocksWithCapitalMissing(t *testing.T) {
	e := evaluator()
	state := baseState()
	state.CapitalUSD = 0

	_, err := e.Evaluate(state, baseCandidate())
	require.Error(t, err)

	var recErr *xerrors.RecommendationGenerationError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, xerrors.StatusCapitalMissing, recErr.Status)
	assert.True(t, recErr.RequiresCapitalInput())
}

func TestEvaluate_ExposureBreachDowngradesToHold(t *testing.T) {
	e := evaluator()
	state := baseState()
	state.ExposureUSD = 19500 // near the 2x equity limit of 20000

	c := baseCandidate()
	c.PositionSizeUSD = 1000 // pushes projected exposure past 20000

	eval, err := e.Evaluate(state, c)
	require.NoError(t, err)
	assert.Equal(t, signal.DirectionHold, eval.FinalDirection)

	found := false
	for _, check := range eval.Checks {
		if check.Name == "exposure_limit" {
			assert.False(t, check.Passed)
			found = true
		}
	}
	assert.True(t, found)
}

func TestEvaluate_HealthyCandidatePassesAllChecks(t *testing.T) {
	e := evaluator()
	eval, err := e.Evaluate(baseState(), baseCandidate())
	require.NoError(t, err)
	assert.Equal(t, signal.DirectionBuy, eval.FinalDirection)
	for _, check := range eval.Checks {
		assert.True(t, check.Passed, check.Name)
	}
}

func TestEvaluate_DailyRiskCapBlocksOutright(t *testing.T) {
	e := evaluator()
	state := baseState()
	state.DailyRiskUsedPct = 2.95 // close to the 3% cap

	c := baseCandidate()
	c.RiskUSD = 50 // +0.5% pushes it over

	_, err := e.Evaluate(state, c)
	require.Error(t, err)

	var riskErr *xerrors.RiskValidationError
	require.ErrorAs(t, err, &riskErr)
	assert.Equal(t, "daily_risk_cap", riskErr.AuditType)
}

func TestEvaluate_RiskRewardBelowFloorDowngrades(t *testing.T) {
	e := evaluator()
	c := baseCandidate()
	c.TakeProfit = 102 // risk 5, reward 2 => RR 0.4, below the 1.2 floor

	eval, err := e.Evaluate(baseState(), c)
	require.NoError(t, err)
	assert.Equal(t, signal.DirectionHold, eval.FinalDirection)
}
