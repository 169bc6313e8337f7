package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantcandle/signalengine/internal/signal"
)

func TestRepository_ZeroValueHasNilRepos(t *testing.T) {
	var repo Repository
	assert.Nil(t, repo.Recommendations)
	assert.Nil(t, repo.RiskAudit)
	assert.Nil(t, repo.ExposureLedger)
	assert.Nil(t, repo.EnsembleWeights)
	assert.Nil(t, repo.UserRiskState)
	assert.Nil(t, repo.SignalOutcomes)
	assert.Nil(t, repo.BacktestResults)
}

func TestTimeRange_FromToOrdering(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	tr := TimeRange{From: from, To: to}
	assert.True(t, tr.To.After(tr.From))
}

func TestExposureLedgerRow_ActiveUntilClosed(t *testing.T) {
	row := ExposureLedgerRow{
		UserID:           "u1",
		RecommendationID: "r1",
		Symbol:           "BTCUSDT",
		Direction:        signal.DirectionBuy,
		Notional:         1000,
		IsActive:         true,
	}
	assert.True(t, row.IsActive)
	assert.Nil(t, row.ClosedAt)

	now := time.Now()
	row.ClosedAt = &now
	row.IsActive = false
	assert.False(t, row.IsActive)
	assert.NotNil(t, row.ClosedAt)
}

func TestHealthCheck_DisabledIsStillHealthy(t *testing.T) {
	hc := HealthCheck{Healthy: true, Errors: []string{"persistence disabled"}}
	assert.True(t, hc.Healthy)
	assert.Len(t, hc.Errors, 1)
}
