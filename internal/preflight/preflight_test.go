package preflight

import (
	"testing"
	"time"

	"github.com/quantcandle/signalengine/internal/montecarlo"
	"github.com/quantcandle/signalengine/internal/xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() Input {
	date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	symbol := "BTCUSDT"
	return Input{
		CodeCommit:         "abc123",
		DatasetVersion:     "v1",
		DatasetVersionHash: "hash-a",
		OnDiskDatasetHash:  "hash-a",
		ParamsDigest:       "digest-a",
		ParamsFileHash:     "digest-a",
		Seed:               montecarlo.DeriveSeed(date, symbol),
		Date:               date,
		Symbol:             symbol,
		Backtest: &BacktestKPIs{
			RunID: "run-1", MaxDrawdownPct: 10, Calmar: 2.0, RuinPct: 1.0,
			CAGRDivergencePct: 1.0, TrackingErrorRMSEPct: 1.0,
		},
		LatestCandleAge:           5 * time.Minute,
		FreshnessThresholdMinutes: 90,
	}
}

func TestRun_AllChecksPassWhenInputIsValid(t *testing.T) {
	report, err := Run(validInput(), DefaultGuardrailThresholds())
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Len(t, report.Checks, 8)
}

func TestRun_FailsOnMismatchedDatasetHash(t *testing.T) {
	in := validInput()
	in.OnDiskDatasetHash = "hash-b"

	report, err := Run(in, DefaultGuardrailThresholds())
	require.Error(t, err)
	assert.False(t, report.Passed)

	var genErr *xerrors.RecommendationGenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, xerrors.StatusAuditFailed, genErr.Status)
}

func TestRun_FailsOnSeedNotDerivedFromDateSymbol(t *testing.T) {
	in := validInput()
	in.Seed = 42

	report, err := Run(in, DefaultGuardrailThresholds())
	require.Error(t, err)
	found := false
	for _, c := range report.Checks {
		if c.Name == "seed" && !c.Passed {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRun_FailsOnSeedOutOfRange(t *testing.T) {
	in := validInput()
	in.Seed = -1

	_, err := Run(in, DefaultGuardrailThresholds())
	require.Error(t, err)
}

func TestRun_FailsWhenBacktestKPIsBreachGuardrails(t *testing.T) {
	in := validInput()
	in.Backtest.MaxDrawdownPct = 50

	report, err := Run(in, DefaultGuardrailThresholds())
	require.Error(t, err)
	for _, c := range report.Checks {
		if c.Name == "backtest_run_id" {
			assert.False(t, c.Passed)
		}
	}
}

func TestRun_FailsWhenNoBacktestAttached(t *testing.T) {
	in := validInput()
	in.Backtest = nil

	_, err := Run(in, DefaultGuardrailThresholds())
	require.Error(t, err)
}

func TestRun_FailsOnStaleData(t *testing.T) {
	in := validInput()
	in.LatestCandleAge = 2 * time.Hour

	_, err := Run(in, DefaultGuardrailThresholds())
	require.Error(t, err)
}

func TestRun_FailsOnUnresolvedGaps(t *testing.T) {
	in := validInput()
	in.UnresolvedGaps = []xerrors.Gap{{Bars: 10}}

	_, err := Run(in, DefaultGuardrailThresholds())
	require.Error(t, err)
}

func TestRun_FailsWhenRiskVerdictBlocked(t *testing.T) {
	in := validInput()
	in.RiskBlocked = true
	in.RiskBlockedReason = "daily risk cap exceeded"

	_, err := Run(in, DefaultGuardrailThresholds())
	require.Error(t, err)
}

func TestRun_FailedChecksListedInErrorDetails(t *testing.T) {
	in := validInput()
	in.CodeCommit = ""
	in.ParamsDigest = "mismatch"

	_, err := Run(in, DefaultGuardrailThresholds())
	require.Error(t, err)
	var genErr *xerrors.RecommendationGenerationError
	require.ErrorAs(t, err, &genErr)
	failed, ok := genErr.Details["failed_checks"].([]string)
	require.True(t, ok)
	assert.Contains(t, failed, "code_commit")
	assert.Contains(t, failed, "params_digest")
}
