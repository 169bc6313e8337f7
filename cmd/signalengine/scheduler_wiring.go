package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantcandle/signalengine/internal/backtest"
	"github.com/quantcandle/signalengine/internal/calibrate"
	"github.com/quantcandle/signalengine/internal/candle"
	"github.com/quantcandle/signalengine/internal/config"
	"github.com/quantcandle/signalengine/internal/dataprovider"
	"github.com/quantcandle/signalengine/internal/ingest"
	"github.com/quantcandle/signalengine/internal/keymutex"
	"github.com/quantcandle/signalengine/internal/orchestrator"
	"github.com/quantcandle/signalengine/internal/preflight"
	"github.com/quantcandle/signalengine/internal/regime"
	"github.com/quantcandle/signalengine/internal/risk"
	"github.com/quantcandle/signalengine/internal/scheduler"
	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/strategy"
	"github.com/quantcandle/signalengine/internal/worm"
)

// storeCuratedSource adapts the on-disk candle store into the
// dataprovider.CuratedSource the orchestrator's Provider consults.
// Funding/open-interest are reported as unavailable (0) — this engine
// doesn't yet persist a dedicated funding-rate series outside the
// venue adapters' live fetches, which the scheduled pipeline does not
// hold open for jobs it didn't itself just run.
type storeCuratedSource struct {
	store      *candle.Store
	lookbackDays int
}

func (s *storeCuratedSource) Candles(symbol, interval string) ([]signal.Candle, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -s.lookbackDays)
	return readHistory(s.store, symbol, interval, start, end)
}

func (s *storeCuratedSource) HigherTimeframeCandles(symbol, higherInterval string) ([]signal.Candle, error) {
	return s.Candles(symbol, higherInterval)
}

func (s *storeCuratedSource) LatestFunding(symbol string) (float64, error) {
	return 0, nil
}

func (s *storeCuratedSource) LatestOpenInterest(symbol string) (float64, error) {
	return 0, nil
}

// storeCuratedSink adapts the candle store into scheduler.CuratedSink,
// reusing the ingest command's day-partitioning helper.
type storeCuratedSink struct {
	store *candle.Store
}

func (s *storeCuratedSink) Store(frame ingest.CuratedFrame) error {
	_, err := writePartitionsByDay(s.store, frame)
	return err
}

// publishAllPipeline implements scheduler.DailyPipeline: it runs the
// orchestrator once per (symbol, interval) in the universe for a fixed
// system user, logging and continuing past any single candidate's
// failure so one bad symbol never stalls the whole pass.
type publishAllPipeline struct {
	orch         *orchestrator.Orchestrator
	universe     scheduler.Universe
	windowDays   int
}

func (p *publishAllPipeline) Run(ctx context.Context) error {
	days := p.windowDays
	if days <= 0 {
		days = 30
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	window := backtest.Window{Start: start, End: end, Role: backtest.RoleTest}

	var failures int
	for _, symbol := range p.universe.Symbols {
		for _, interval := range p.universe.Intervals {
			req := orchestrator.Request{
				UserID:          "system",
				Symbol:          symbol,
				Interval:        interval,
				HigherInterval:  "4h",
				UserState:       risk.UserRiskState{UserID: "system", CapitalUSD: 10000, EquityUSD: 10000},
				PositionSizeUSD: 1000,
				Leverage:        1,
				BacktestWindow:  window,
			}
			if _, err := p.orch.Publish(ctx, req); err != nil {
				log.Warn().Str("symbol", symbol).Str("interval", interval).Err(err).Msg("daily pipeline publication skipped")
				failures++
			}
		}
	}
	if failures == len(p.universe.Symbols)*len(p.universe.Intervals) && failures > 0 {
		return fmt.Errorf("daily pipeline: every candidate failed to publish")
	}
	return nil
}

// buildOrchestrator wires every C1-C12 component into a production
// Orchestrator, the shared dependency graph for both the `schedule`
// command's daily pipeline and any ad-hoc single-shot publication.
func buildOrchestrator(dataDir, calibratorManifest string, recStore orchestrator.RecommendationStore, wormDir string) (*orchestrator.Orchestrator, error) {
	source := &storeCuratedSource{store: candle.NewStore(dataDir), lookbackDays: 30}
	provider := dataprovider.NewProvider(source, dataprovider.DefaultFreshnessConfig())

	calibrator, err := calibrate.LoadManifest(calibratorManifest, calibrate.DefaultRejectionGuard())
	if err != nil {
		return nil, fmt.Errorf("load calibrator manifest: %w", err)
	}

	wormStore, err := worm.NewStore(wormDir)
	if err != nil {
		return nil, fmt.Errorf("open WORM store: %w", err)
	}

	deps := orchestrator.Deps{
		DataProvider:   provider,
		Detector:       regime.NewDetector(),
		Aggregator:     strategy.NewAggregator(regime.NewWeightManager()),
		Calibrator:     calibrator,
		RiskEvaluator:  risk.NewEvaluator(config.DefaultRiskGuardConfig()),
		ExecutionModel: backtest.DefaultExecutionModel(),
		WormStore:      wormStore,
		Store:          recStore,
		Locks:          keymutex.New(),
		Provenance:     orchestrator.Provenance{CodeCommit: "unknown"},
		Thresholds:     preflight.DefaultGuardrailThresholds(),
	}
	return orchestrator.New(deps), nil
}
