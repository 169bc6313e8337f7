// Package preflight implements the Preflight Audit (C11): a fixed-order
// battery of eight checks run over a candidate signal and its
// computation context immediately before publication. Unlike the Risk
// Evaluator's checks 4-8 (which only downgrade), every preflight check
// must pass or emission is refused outright.
//
// Grounded on the teacher's internal/gates/entry.go
// (EntryGateResult.GetDetailedReport): ordered check accumulation into
// a single JSON-serializable report.
package preflight

import (
	"time"

	"github.com/quantcandle/signalengine/internal/montecarlo"
	"github.com/quantcandle/signalengine/internal/xerrors"
)

// Check is one audit item's outcome.
type Check struct {
	Name    string                 `json:"name"`
	Passed  bool                   `json:"passed"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Report is the full ordered battery's outcome, JSON-serializable for
// CI gating (spec.md's --output flag on preflight-audit).
type Report struct {
	Checks []Check `json:"checks"`
	Passed bool    `json:"passed"`
}

func (r Report) failedNames() []string {
	var names []string
	for _, c := range r.Checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// GuardrailThresholds bound the backtest KPIs check (check 5).
type GuardrailThresholds struct {
	MaxDrawdownPct          float64
	MinCalmar               float64
	MaxRuinPct              float64
	MaxCAGRDivergencePct    float64
	MaxTrackingErrorRMSEPct float64
}

func DefaultGuardrailThresholds() GuardrailThresholds {
	return GuardrailThresholds{
		MaxDrawdownPct:          25.0,
		MinCalmar:               1.5,
		MaxRuinPct:              5.0,
		MaxCAGRDivergencePct:    5.0,
		MaxTrackingErrorRMSEPct: 5.0,
	}
}

// BacktestKPIs are the fields check 5 evaluates against thresholds.
type BacktestKPIs struct {
	RunID                string
	MaxDrawdownPct       float64
	Calmar               float64
	RuinPct              float64
	CAGRDivergencePct    float64
	TrackingErrorRMSEPct float64
}

// Input bundles everything the eight checks read. A zero-value field
// that a check depends on fails that check — there is no "not
// applicable" outcome in this battery, only present-and-passing or
// failing.
type Input struct {
	CodeCommit string

	DatasetVersion     string
	DatasetVersionHash string
	OnDiskDatasetHash  string

	ParamsDigest   string
	ParamsFileHash string

	Seed   int64
	Date   time.Time
	Symbol string

	Backtest *BacktestKPIs

	LatestCandleAge           time.Duration
	FreshnessThresholdMinutes int

	UnresolvedGaps []xerrors.Gap

	RiskBlocked       bool
	RiskBlockedReason string
}

// Run executes all eight checks in fixed order and returns the full
// report. A non-nil error is only ever a *xerrors.RecommendationGenerationError
// with Status=audit_failed and the failing check names in Details.
func Run(in Input, thresholds GuardrailThresholds) (Report, error) {
	var report Report

	report.Checks = append(report.Checks, checkCodeCommit(in))
	report.Checks = append(report.Checks, checkDatasetVersion(in))
	report.Checks = append(report.Checks, checkParamsDigest(in))
	report.Checks = append(report.Checks, checkSeed(in))
	report.Checks = append(report.Checks, checkBacktestKPIs(in, thresholds))
	report.Checks = append(report.Checks, checkDataFreshness(in))
	report.Checks = append(report.Checks, checkDataGaps(in))
	report.Checks = append(report.Checks, checkRiskVerdict(in))

	report.Passed = true
	for _, c := range report.Checks {
		if !c.Passed {
			report.Passed = false
			break
		}
	}

	if !report.Passed {
		return report, &xerrors.RecommendationGenerationError{
			Status: xerrors.StatusAuditFailed,
			Reason: "one or more preflight checks failed",
			Details: map[string]interface{}{
				"failed_checks": report.failedNames(),
			},
		}
	}
	return report, nil
}

func checkCodeCommit(in Input) Check {
	if in.CodeCommit == "" {
		return Check{Name: "code_commit", Passed: false, Message: "code_commit is not resolvable"}
	}
	return Check{Name: "code_commit", Passed: true, Message: "resolved", Details: map[string]interface{}{"code_commit": in.CodeCommit}}
}

func checkDatasetVersion(in Input) Check {
	if in.DatasetVersion == "" {
		return Check{Name: "dataset_version", Passed: false, Message: "dataset_version is not present"}
	}
	if in.DatasetVersionHash != in.OnDiskDatasetHash {
		return Check{Name: "dataset_version", Passed: false, Message: "dataset_version hash does not match on-disk hash",
			Details: map[string]interface{}{"expected": in.OnDiskDatasetHash, "actual": in.DatasetVersionHash}}
	}
	return Check{Name: "dataset_version", Passed: true, Message: "hash matches"}
}

func checkParamsDigest(in Input) Check {
	if in.ParamsDigest == "" || in.ParamsDigest != in.ParamsFileHash {
		return Check{Name: "params_digest", Passed: false, Message: "params_digest does not match loaded parameters file hash",
			Details: map[string]interface{}{"expected": in.ParamsFileHash, "actual": in.ParamsDigest}}
	}
	return Check{Name: "params_digest", Passed: true, Message: "hash matches"}
}

func checkSeed(in Input) Check {
	if in.Seed < 0 || in.Seed > (1<<31)-1 {
		return Check{Name: "seed", Passed: false, Message: "seed out of [0, 2^31-1] range",
			Details: map[string]interface{}{"seed": in.Seed}}
	}
	expected := montecarlo.DeriveSeed(in.Date, in.Symbol)
	if in.Seed != expected {
		return Check{Name: "seed", Passed: false, Message: "seed is not deterministically derivable from (date, symbol)",
			Details: map[string]interface{}{"seed": in.Seed, "expected": expected}}
	}
	return Check{Name: "seed", Passed: true, Message: "seed verified"}
}

func checkBacktestKPIs(in Input, th GuardrailThresholds) Check {
	if in.Backtest == nil {
		return Check{Name: "backtest_run_id", Passed: false, Message: "no backtest_run_id attached"}
	}
	k := in.Backtest
	var failures []string
	if k.MaxDrawdownPct > th.MaxDrawdownPct {
		failures = append(failures, "max_drawdown")
	}
	if k.Calmar < th.MinCalmar {
		failures = append(failures, "calmar")
	}
	if k.RuinPct > th.MaxRuinPct {
		failures = append(failures, "ruin")
	}
	if k.CAGRDivergencePct > th.MaxCAGRDivergencePct {
		failures = append(failures, "cagr_divergence")
	}
	if k.TrackingErrorRMSEPct > th.MaxTrackingErrorRMSEPct {
		failures = append(failures, "tracking_error")
	}
	if len(failures) > 0 {
		return Check{Name: "backtest_run_id", Passed: false, Message: "backtest KPIs breach guardrails",
			Details: map[string]interface{}{"run_id": k.RunID, "breached": failures}}
	}
	return Check{Name: "backtest_run_id", Passed: true, Message: "KPIs within guardrails",
		Details: map[string]interface{}{"run_id": k.RunID}}
}

func checkDataFreshness(in Input) Check {
	threshold := time.Duration(in.FreshnessThresholdMinutes) * time.Minute
	if in.LatestCandleAge > threshold {
		return Check{Name: "data_freshness", Passed: false, Message: "latest curated candle exceeds freshness threshold",
			Details: map[string]interface{}{"age": in.LatestCandleAge.String(), "threshold": threshold.String()}}
	}
	return Check{Name: "data_freshness", Passed: true, Message: "data is fresh"}
}

func checkDataGaps(in Input) Check {
	if len(in.UnresolvedGaps) > 0 {
		return Check{Name: "data_gaps", Passed: false, Message: "unresolved gaps present in window",
			Details: map[string]interface{}{"gap_count": len(in.UnresolvedGaps)}}
	}
	return Check{Name: "data_gaps", Passed: true, Message: "no unresolved gaps"}
}

func checkRiskVerdict(in Input) Check {
	if in.RiskBlocked {
		return Check{Name: "risk_verdict", Passed: false, Message: in.RiskBlockedReason}
	}
	return Check{Name: "risk_verdict", Passed: true, Message: "not blocked"}
}
