// Package risk implements the Risk Evaluator & Guardrails (C9): an
// ordered battery of eight checks run against every candidate
// recommendation before it is allowed to publish. Checks 1-3 can hard
// block (check 1 returns a RecommendationGenerationError with status
// capital_missing, checks 2-3 a RiskValidationError); checks 4-8 can
// only downgrade the direction to HOLD, never error.
//
// Grounded on the teacher's EntryGateEvaluator.EvaluateEntry
// (internal/gates/entry.go): ordered GateCheck accumulation into a
// single result struct with PassedGates/FailureReasons, adapted from a
// single-outcome entry gate into an 8-check battery with two distinct
// failure severities.
package risk

import (
	"fmt"

	"github.com/quantcandle/signalengine/internal/config"
	"github.com/quantcandle/signalengine/internal/montecarlo"
	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/xerrors"
)

// UserRiskState is the per-user counters the guardrails read. Evaluate
// receives it by value and does not update it, and this package takes
// no lock around it; the orchestrator's internal/keymutex lock is keyed
// by (user, symbol, interval), not by user alone.
type UserRiskState struct {
	UserID            string
	CapitalUSD        float64
	EquityUSD         float64
	DailyRiskUsedPct  float64
	Trades24h         int
	ConsecutiveLosses int
	TradeCount12h     int
	CurrentLeverage   float64
	LeverageOverSince int64 // unix seconds the leverage has been above the hard-stop; 0 if not breached
	ExposureUSD       float64
	MonthlyReturns    []float64 // trailing returns, for ruin simulation
}

// Candidate is the recommendation under evaluation.
type Candidate struct {
	Symbol          string
	Direction       signal.Direction
	EntryPrice      float64
	StopLoss        float64
	TakeProfit      float64
	PositionSizeUSD float64
	Leverage        float64
	RiskUSD         float64 // capital at risk if stop-loss is hit
	SeedDate        int64   // unix seconds, used for deterministic ruin-sim seeding
}

// CheckResult records one guardrail's outcome, mirroring the teacher's
// GateCheck accumulation idiom.
type CheckResult struct {
	Name    string
	Passed  bool
	Reason  string
	Downgrade bool // true if a failure here downgrades rather than blocks
}

// Evaluation is the full ordered battery's outcome.
type Evaluation struct {
	Candidate     Candidate
	Checks        []CheckResult
	FinalDirection signal.Direction
	RuinProbability float64
	Blocked       bool
	BlockReason   string
}

// Evaluator runs the eight ordered guardrail checks.
type Evaluator struct {
	Cfg config.RiskGuardConfig
}

func NewEvaluator(cfg config.RiskGuardConfig) *Evaluator {
	return &Evaluator{Cfg: cfg}
}

// Evaluate runs checks 1-8 in declared order. Checks 1-3 (capital,
// daily risk cap, trade limit) stop immediately on failure — check 1
// returns a RecommendationGenerationError with status capital_missing,
// checks 2 and 3 a RiskValidationError — and no further checks run. Checks 4-8 (cooldown,
// leverage hard-stop, exposure limit, ruin probability, risk/reward
// floor) downgrade FinalDirection to HOLD on the first violation
// encountered, in order, but still run to completion so the full
// Checks list is available for audit.
func (e *Evaluator) Evaluate(state UserRiskState, c Candidate) (Evaluation, error) {
	eval := Evaluation{Candidate: c, FinalDirection: c.Direction}

	// Check 1: capital present
	if state.CapitalUSD <= 0 {
		return eval, &xerrors.RecommendationGenerationError{
			Status: xerrors.StatusCapitalMissing,
			Reason: "no capital on file for user",
		}
	}
	eval.Checks = append(eval.Checks, CheckResult{Name: "capital_present", Passed: true})

	// Check 2: daily risk cap
	projectedDailyRiskPct := state.DailyRiskUsedPct + (c.RiskUSD/state.EquityUSD)*100.0
	if projectedDailyRiskPct > e.Cfg.DailyRiskCapPct {
		return eval, &xerrors.RiskValidationError{
			AuditType: "daily_risk_cap",
			Reason:    fmt.Sprintf("projected daily risk %.2f%% exceeds cap %.2f%%", projectedDailyRiskPct, e.Cfg.DailyRiskCapPct),
			ContextData: map[string]interface{}{"projected_pct": projectedDailyRiskPct, "cap_pct": e.Cfg.DailyRiskCapPct},
		}
	}
	eval.Checks = append(eval.Checks, CheckResult{Name: "daily_risk_cap", Passed: true})

	// Check 3: trade count limit
	if state.Trades24h >= e.Cfg.MaxTrades24h {
		return eval, &xerrors.RiskValidationError{
			AuditType: "trade_limit",
			Reason:    fmt.Sprintf("trade count %d reached 24h limit %d", state.Trades24h, e.Cfg.MaxTrades24h),
		}
	}
	eval.Checks = append(eval.Checks, CheckResult{Name: "trade_limit", Passed: true})

	downgraded := false

	// Check 4: cooldown
	if state.ConsecutiveLosses >= e.Cfg.CooldownLossStreak || state.TradeCount12h > e.Cfg.CooldownTradeCount12h {
		eval.Checks = append(eval.Checks, CheckResult{Name: "cooldown", Passed: false, Downgrade: true,
			Reason: fmt.Sprintf("cooldown active: losses=%d trades12h=%d", state.ConsecutiveLosses, state.TradeCount12h)})
		downgraded = true
	} else {
		eval.Checks = append(eval.Checks, CheckResult{Name: "cooldown", Passed: true})
	}

	// Check 5: leverage hard-stop
	if c.Leverage >= e.Cfg.LeverageHardStop {
		eval.Checks = append(eval.Checks, CheckResult{Name: "leverage_hard_stop", Passed: false, Downgrade: true,
			Reason: fmt.Sprintf("leverage %.2fx at or above hard stop %.2fx", c.Leverage, e.Cfg.LeverageHardStop)})
		downgraded = true
	} else {
		eval.Checks = append(eval.Checks, CheckResult{Name: "leverage_hard_stop", Passed: true})
	}

	// Check 6: exposure limit
	projectedExposure := state.ExposureUSD + c.PositionSizeUSD
	exposureLimit := state.EquityUSD * e.Cfg.ExposureLimitMultiplier
	if projectedExposure > exposureLimit {
		eval.Checks = append(eval.Checks, CheckResult{Name: "exposure_limit", Passed: false, Downgrade: true,
			Reason: fmt.Sprintf("projected exposure %.2f exceeds limit %.2f", projectedExposure, exposureLimit)})
		downgraded = true
	} else {
		eval.Checks = append(eval.Checks, CheckResult{Name: "exposure_limit", Passed: true})
	}

	// Check 7: ruin probability
	if len(state.MonthlyReturns) > 0 {
		ruin := montecarlo.SimulateRuin(state.MonthlyReturns, montecarlo.RuinConfig{
			Trials: 2000, HorizonMonths: 12, RuinThreshold: 0.2, Seed: c.SeedDate,
		})
		eval.RuinProbability = ruin.RuinProbability
		if ruin.RuinProbability > e.Cfg.RuinAlertThreshold {
			eval.Checks = append(eval.Checks, CheckResult{Name: "ruin_probability", Passed: false, Downgrade: true,
				Reason: fmt.Sprintf("ruin probability %.4f exceeds threshold %.4f", ruin.RuinProbability, e.Cfg.RuinAlertThreshold)})
			downgraded = true
		} else {
			eval.Checks = append(eval.Checks, CheckResult{Name: "ruin_probability", Passed: true})
		}
	} else {
		eval.Checks = append(eval.Checks, CheckResult{Name: "ruin_probability", Passed: true, Reason: "insufficient trade history, skipped"})
	}

	// Check 8: risk/reward floor
	if c.EntryPrice != c.StopLoss {
		risk := abs(c.EntryPrice - c.StopLoss)
		reward := abs(c.TakeProfit - c.EntryPrice)
		rr := reward / risk
		if rr < e.Cfg.RiskRewardFloor {
			eval.Checks = append(eval.Checks, CheckResult{Name: "risk_reward_floor", Passed: false, Downgrade: true,
				Reason: fmt.Sprintf("risk/reward %.2f below floor %.2f", rr, e.Cfg.RiskRewardFloor)})
			downgraded = true
		} else {
			eval.Checks = append(eval.Checks, CheckResult{Name: "risk_reward_floor", Passed: true})
		}
	}

	if downgraded {
		eval.FinalDirection = signal.DirectionHold
	}

	return eval, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
