// Package orchestrator implements the Signal Orchestrator (C12): the
// single end-to-end entry point that turns a symbol/interval pair into
// a published Recommendation, running every upstream component in the
// fixed order the spec requires and refusing to publish on any
// failure along the way.
//
// Grounded on the teacher's internal/application/pipeline.PipelineExecutor
// (named, timed, logged steps run in sequence against a shared result
// struct) generalized from an 8-stage scan pipeline into this engine's
// 8-stage publication pipeline, with per-(user,symbol,interval)
// serialization via internal/keymutex in place of the teacher's
// ungated concurrent scan.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantcandle/signalengine/internal/backtest"
	"github.com/quantcandle/signalengine/internal/calibrate"
	"github.com/quantcandle/signalengine/internal/dataprovider"
	"github.com/quantcandle/signalengine/internal/indicator"
	"github.com/quantcandle/signalengine/internal/keymutex"
	"github.com/quantcandle/signalengine/internal/montecarlo"
	"github.com/quantcandle/signalengine/internal/preflight"
	"github.com/quantcandle/signalengine/internal/regime"
	"github.com/quantcandle/signalengine/internal/risk"
	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/strategy"
	"github.com/quantcandle/signalengine/internal/worm"
)

// RecommendationStore persists a published Recommendation, enforcing
// the (date, market_timestamp) uniqueness constraint. A nil store is
// valid — the orchestrator then only writes the WORM snapshot.
type RecommendationStore interface {
	Save(ctx context.Context, rec signal.Recommendation) error
}

// Provenance carries the build/config identity every candidate Signal
// is stamped with (spec.md §3's Signal provenance tuple).
type Provenance struct {
	CodeCommit         string
	DatasetVersion     string
	DatasetVersionHash string
	OnDiskDatasetHash  string
	ParamsDigest       string
	ParamsFileHash     string
	ConfigVersion      string
}

// Deps bundles every upstream component the orchestrator drives.
type Deps struct {
	DataProvider   *dataprovider.Provider
	Detector       *regime.Detector
	Aggregator     *strategy.Aggregator
	Calibrator     *calibrate.Calibrator
	RiskEvaluator  *risk.Evaluator
	ExecutionModel backtest.ExecutionModel
	WormStore      *worm.Store
	Store          RecommendationStore
	Locks          *keymutex.Map
	Provenance     Provenance
	Thresholds     preflight.GuardrailThresholds
	Now            func() time.Time
}

// Request is one publication attempt's input.
type Request struct {
	UserID          string
	Symbol          string
	Interval        string
	HigherInterval  string
	UserState       risk.UserRiskState
	PositionSizeUSD float64
	Leverage        float64
	BacktestWindow  backtest.Window // rolling window the mandatory backtest replays
}

// Orchestrator drives the eight-step publication pipeline.
type Orchestrator struct {
	Deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{Deps: deps}
}

// Publish runs the full pipeline for one (user, symbol, interval),
// serialized against any other in-flight publication for the same key.
func (o *Orchestrator) Publish(ctx context.Context, req Request) (signal.Recommendation, error) {
	key := fmt.Sprintf("%s:%s:%s", req.UserID, req.Symbol, req.Interval)
	o.Deps.Locks.Lock(key)
	defer o.Deps.Locks.Unlock(key)

	now := o.Deps.Now()
	logger := log.With().Str("user_id", req.UserID).Str("symbol", req.Symbol).Str("interval", req.Interval).Logger()

	// Step 1: acquire SignalDataInputs (C4); freshness/gap validation
	// happens inside Assemble and surfaces as a typed error.
	inputs, err := o.Deps.DataProvider.Assemble(req.Symbol, req.Interval, req.HigherInterval)
	if err != nil {
		logger.Warn().Err(err).Msg("signal data assembly failed")
		return signal.Recommendation{}, err
	}

	// Step 2: indicators, strategies + aggregator, regime detection.
	ind := computeRegimeIndicators(inputs.Candles)
	detection := o.Deps.Detector.DetectRegime(ind)
	decision := o.Deps.Aggregator.Aggregate(inputs, detection.Regime)
	calibrated := o.Deps.Calibrator.Calibrate(decision.RawScore, detection.Regime)

	// Step 3: deterministic seed, Monte-Carlo TP/SL hit probabilities.
	seed := montecarlo.DeriveSeed(now, req.Symbol)
	entry, stopLoss, takeProfit := computeLevels(inputs.Candles, decision.Direction)
	returns := logReturns(closesOf(inputs.Candles))
	hitProb := montecarlo.SimulateHitProbability(returns, entry, takeProfit, stopLoss, 48, montecarlo.BootstrapConfig{Trials: 2000, Seed: seed})

	riskRewardRatio := 0.0
	if math.Abs(entry-stopLoss) > 0 {
		riskRewardRatio = math.Abs(takeProfit-entry) / math.Abs(entry-stopLoss)
	}

	// Step 4: assemble the candidate.
	candidate := risk.Candidate{
		Symbol:          req.Symbol,
		Direction:       decision.Direction,
		EntryPrice:      entry,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		PositionSizeUSD: req.PositionSizeUSD,
		Leverage:        req.Leverage,
		RiskUSD:         req.PositionSizeUSD * math.Abs(entry-stopLoss) / entry,
		SeedDate:        seed,
	}

	// Step 5: risk evaluator — may hard-block (returns here) or
	// downgrade FinalDirection to HOLD (continues to audit).
	evaluation, err := o.Deps.RiskEvaluator.Evaluate(req.UserState, candidate)
	if err != nil {
		logger.Warn().Err(err).Msg("risk evaluator blocked candidate")
		return signal.Recommendation{}, err
	}

	// Step 6: mandatory backtest over the rolling window, replaying the
	// candidate's own direction/levels as a single-trade strategy so the
	// audit has a concrete campaign to attach KPIs from.
	campaignParams := backtest.Params{
		Symbol:          req.Symbol,
		Interval:        req.Interval,
		StrategyWeights: decision.WeightsUsed,
		InitialCapital:  10000,
		RiskPerTradePct: 0.01,
	}
	replayed := false
	campaignStrategy := func(history []signal.Candle, idx int) *backtest.EntrySignal {
		if replayed || decision.Direction == signal.DirectionHold {
			return nil
		}
		replayed = true
		return &backtest.EntrySignal{Direction: decision.Direction, StopLoss: stopLoss, TakeProfit: takeProfit}
	}
	campaign, err := backtest.RunCampaign(campaignParams, inputs.Candles, req.BacktestWindow, campaignStrategy, o.Deps.ExecutionModel)
	if err != nil {
		logger.Warn().Err(err).Msg("mandatory backtest aborted")
		return signal.Recommendation{}, err
	}

	// Step 7: preflight audit. A failure here refuses publication.
	preflightInput := preflight.Input{
		CodeCommit:         o.Deps.Provenance.CodeCommit,
		DatasetVersion:     o.Deps.Provenance.DatasetVersion,
		DatasetVersionHash: o.Deps.Provenance.DatasetVersionHash,
		OnDiskDatasetHash:  o.Deps.Provenance.OnDiskDatasetHash,
		ParamsDigest:       o.Deps.Provenance.ParamsDigest,
		ParamsFileHash:     o.Deps.Provenance.ParamsFileHash,
		Seed:               seed,
		Date:               now,
		Symbol:             req.Symbol,
		Backtest: &preflight.BacktestKPIs{
			RunID:                campaign.CampaignID,
			MaxDrawdownPct:       campaign.Metrics.MaxDrawdownPct,
			Calmar:               campaign.Metrics.Calmar,
			RuinPct:              evaluation.RuinProbability * 100,
			CAGRDivergencePct:    0, // no separate theoretical-execution run in this pipeline
			TrackingErrorRMSEPct: trackingErrorPct(campaign),
		},
		LatestCandleAge:           now.Sub(inputs.Candles[len(inputs.Candles)-1].OpenTime),
		FreshnessThresholdMinutes: o.Deps.DataProvider.Cfg.ThresholdMinutes,
		RiskBlocked:               evaluation.Blocked,
		RiskBlockedReason:         evaluation.BlockReason,
	}
	if _, err := preflight.Run(preflightInput, o.Deps.Thresholds); err != nil {
		logger.Warn().Err(err).Msg("preflight audit failed")
		return signal.Recommendation{}, err
	}

	// Step 8: persist + WORM snapshot.
	rec := signal.Recommendation{
		ID:               uuidlikeID(seed, now),
		UserID:           req.UserID,
		Symbol:           req.Symbol,
		Interval:         req.Interval,
		Direction:        evaluation.FinalDirection,
		Confidence:       calibrated.Probability * 100,
		EntryPrice:       entry,
		StopLoss:         stopLoss,
		TakeProfit:       takeProfit,
		PositionSizeUSD:  req.PositionSizeUSD,
		Leverage:         req.Leverage,
		Regime:           detection.Regime,
		RiskRewardRatio:  riskRewardRatio,
		RuinProbability:  evaluation.RuinProbability,
		TPProbability:    hitProb.TPProbability,
		SLProbability:    hitProb.SLProbability,
		GeneratedAt:      now,
		MarketTimestamp:  inputs.Candles[len(inputs.Candles)-1].OpenTime,
		TrackingErrorBPS: trackingErrorPct(campaign) * 100,
		Status:           "published",
	}

	if o.Deps.Store != nil {
		if err := o.Deps.Store.Save(ctx, rec); err != nil {
			logger.Error().Err(err).Msg("failed to persist recommendation")
			return signal.Recommendation{}, err
		}
	}

	if _, err := o.Deps.WormStore.WriteSnapshot(rec, map[string]interface{}{
		"campaign_id": campaign.CampaignID,
		"seed":        seed,
	}); err != nil {
		logger.Error().Err(err).Msg("failed to write WORM snapshot")
		return signal.Recommendation{}, err
	}

	logger.Info().Str("direction", string(rec.Direction)).Float64("confidence", rec.Confidence).Msg("recommendation published")
	return rec, nil
}

// trackingErrorPct averages |PnLUSD| / (EntryPrice × Quantity) across
// the mandatory backtest's trades, as a percentage. It is not an RMSE
// between a fill-modeled and a frictionless equity curve: no
// frictionless-execution comparison run is made.
func trackingErrorPct(campaign backtest.CampaignResult) float64 {
	if len(campaign.Trades) == 0 {
		return 0
	}
	var sum float64
	for _, t := range campaign.Trades {
		if t.EntryPrice == 0 {
			continue
		}
		sum += math.Abs(t.PnLUSD) / (t.EntryPrice * t.Quantity)
	}
	return sum / float64(len(campaign.Trades)) * 100
}

func computeRegimeIndicators(candles []signal.Candle) regime.Indicators {
	closes := closesOf(candles)
	highs := highsOf(candles)
	lows := lowsOf(candles)

	adx := indicator.ADX(highs, lows, closes, 14)
	ema := indicator.EMASeries(closes, 20)
	bb := indicator.Bollinger(closes, 20, 2.0)
	volNow := indicator.RealizedVolatility(closes, 20, 365*24)
	volAvg := indicator.RealizedVolatility(closes, 60, 365*24)

	var emaSlope float64
	if len(ema) >= 2 && !math.IsNaN(ema[len(ema)-1]) && !math.IsNaN(ema[len(ema)-2]) && ema[len(ema)-2] != 0 {
		emaSlope = (ema[len(ema)-1] - ema[len(ema)-2]) / ema[len(ema)-2] * 100
	}

	var bbWidth float64
	if bb.IsValid && bb.Middle != 0 {
		bbWidth = (bb.Upper - bb.Lower) / bb.Middle * 100
	}

	return regime.Indicators{
		ADX:               valueOr(adx, 0),
		EMASlopePct:       emaSlope,
		RealizedVolAnnPct: valueOr(volNow, 0) * 100,
		VolAvgAnnPct:      valueOr(volAvg, 0) * 100,
		BBWidthPct:        bbWidth,
	}
}

func valueOr(r indicator.Result, fallback float64) float64 {
	if !r.IsValid {
		return fallback
	}
	return r.Value
}

// computeLevels derives entry/stop/take-profit from an ATR band around
// the latest close, matching the invariant sl < optimal < tp for BUY
// (mirrored for SELL) and collapsing to entry==stop==target on HOLD.
func computeLevels(candles []signal.Candle, dir signal.Direction) (entry, stopLoss, takeProfit float64) {
	closes := closesOf(candles)
	highs := highsOf(candles)
	lows := lowsOf(candles)
	entry = closes[len(closes)-1]

	atr := indicator.ATR(highs, lows, closes, 14)
	atrVal := valueOr(atr, entry*0.02)

	switch dir {
	case signal.DirectionBuy:
		stopLoss = entry - 1.5*atrVal
		takeProfit = entry + 2.5*atrVal
	case signal.DirectionSell:
		stopLoss = entry + 1.5*atrVal
		takeProfit = entry - 2.5*atrVal
	default:
		stopLoss = entry
		takeProfit = entry
	}
	return entry, stopLoss, takeProfit
}

func closesOf(candles []signal.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func highsOf(candles []signal.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func lowsOf(candles []signal.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

func logReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

func uuidlikeID(seed int64, now time.Time) string {
	return fmt.Sprintf("%d-%d", now.UnixNano(), seed)
}
