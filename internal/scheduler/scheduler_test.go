package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcandle/signalengine/internal/ingest"
	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/venue"
	"github.com/quantcandle/signalengine/internal/xerrors"
)

type fakeAdapter struct {
	name    string
	err     error
	candles []signal.Candle
}

func (a *fakeAdapter) Name() string               { return a.name }
func (a *fakeAdapter) SupportsDerivatives() bool   { return false }
func (a *fakeAdapter) FetchCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]signal.Candle, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.candles, nil
}
func (a *fakeAdapter) FetchOrderBookDepth(ctx context.Context, symbol string) (venue.OrderBookDepth, error) {
	return venue.OrderBookDepth{}, nil
}
func (a *fakeAdapter) FetchFunding(ctx context.Context, symbol string) (venue.FundingSnapshot, error) {
	return venue.FundingSnapshot{}, nil
}
func (a *fakeAdapter) FetchOpenInterest(ctx context.Context, symbol string) (venue.OpenInterestSnapshot, error) {
	return venue.OpenInterestSnapshot{}, nil
}
func (a *fakeAdapter) FetchLiquidations(ctx context.Context, symbol string, since time.Time) ([]venue.Liquidation, error) {
	return nil, nil
}

func mkCandles(n int, start time.Time, step time.Duration) []signal.Candle {
	out := make([]signal.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out[i] = signal.Candle{
			Symbol: "BTCUSDT", Interval: "1h", OpenTime: start.Add(time.Duration(i) * step),
			Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 10,
		}
		price++
	}
	return out
}

type fakeSink struct {
	stored []ingest.CuratedFrame
	err    error
}

func (s *fakeSink) Store(frame ingest.CuratedFrame) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, frame)
	return nil
}

type fakeMetrics struct {
	err   error
	calls int
}

func (m *fakeMetrics) RecordJobResult(job JobName, success bool, d time.Duration) error {
	m.calls++
	return m.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestRunIngestAll_ReconcilesAcrossVenuesAndAdvancesWindow(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	adapter := &fakeAdapter{name: "binance", candles: mkCandles(2, now.Add(-2*time.Hour), time.Hour)}
	tracker := NewMemoryWindowTracker()
	sink := &fakeSink{}

	s := New(testConfig(), Universe{Symbols: []string{"BTCUSDT"}, Intervals: []string{"1h"}},
		[]venue.Adapter{adapter}, tracker, sink, nil, nil)
	s.Now = func() time.Time { return now }

	err := s.runIngestAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, sink.stored, 1)

	last, ok := tracker.LastSuccessfulEnd("BTCUSDT", "1h")
	require.True(t, ok)
	assert.Equal(t, now, last)
}

func TestRunIngestAll_FailsWhenEveryVenueErrors(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	adapter := &fakeAdapter{name: "binance", err: &xerrors.VenueError{Venue: "binance", Kind: xerrors.VenueNet, Err: errors.New("timeout")}}
	tracker := NewMemoryWindowTracker()

	s := New(testConfig(), Universe{Symbols: []string{"BTCUSDT"}, Intervals: []string{"1h"}},
		[]venue.Adapter{adapter}, tracker, &fakeSink{}, nil, nil)
	s.Now = func() time.Time { return now }

	err := s.runIngestAll(context.Background())
	require.Error(t, err)
}

func TestRunWithRetry_RetriesTransientVenueErrorUpToMaxAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	s := New(cfg, Universe{}, nil, NewMemoryWindowTracker(), nil, nil, nil)
	s.Now = time.Now

	attempts := 0
	result := s.runWithRetry(context.Background(), JobIngestAll, func(ctx context.Context) error {
		attempts++
		return &xerrors.VenueError{Venue: "binance", Kind: xerrors.VenueRate, Err: errors.New("rate limited")}
	})

	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, result.Attempts)
	assert.False(t, result.Success)
	require.Error(t, result.Err)
}

func TestRunWithRetry_DoesNotRetryNonRetryableVenueError(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	s := New(cfg, Universe{}, nil, NewMemoryWindowTracker(), nil, nil, nil)
	s.Now = time.Now

	attempts := 0
	result := s.runWithRetry(context.Background(), JobIngestAll, func(ctx context.Context) error {
		attempts++
		return &xerrors.VenueError{Venue: "binance", Kind: xerrors.VenueAuth, Err: errors.New("bad key")}
	})

	assert.Equal(t, 1, attempts)
	assert.False(t, result.Success)
}

func TestRunWithRetry_SucceedsOnSecondAttempt(t *testing.T) {
	cfg := testConfig()
	s := New(cfg, Universe{}, nil, NewMemoryWindowTracker(), nil, nil, nil)
	s.Now = time.Now

	attempts := 0
	result := s.runWithRetry(context.Background(), JobIngestAll, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return &xerrors.VenueError{Venue: "binance", Kind: xerrors.VenueNet, Err: errors.New("timeout")}
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 2, attempts)
}

func TestRunWithRetry_MetricsFailureIsSwallowed(t *testing.T) {
	cfg := testConfig()
	metrics := &fakeMetrics{err: errors.New("metrics sink down")}
	s := New(cfg, Universe{}, nil, NewMemoryWindowTracker(), nil, nil, metrics)
	s.Now = time.Now

	result := s.runWithRetry(context.Background(), JobIngestAll, func(ctx context.Context) error { return nil })

	assert.True(t, result.Success)
	assert.Equal(t, 1, metrics.calls)
}

func TestIsDue_TrueOnlyOnceAfterCrossingTriggerTime(t *testing.T) {
	trigger := "00:05"
	before := time.Date(2026, 1, 15, 0, 4, 0, 0, time.UTC)
	after := time.Date(2026, 1, 15, 0, 6, 0, 0, time.UTC)
	nextDay := time.Date(2026, 1, 16, 0, 6, 0, 0, time.UTC)

	due, err := isDue(before, trigger, time.Time{})
	require.NoError(t, err)
	assert.False(t, due)

	due, err = isDue(after, trigger, time.Time{})
	require.NoError(t, err)
	assert.True(t, due)

	due, err = isDue(after, trigger, after)
	require.NoError(t, err)
	assert.False(t, due, "already ran today, should not fire again")

	due, err = isDue(nextDay, trigger, after)
	require.NoError(t, err)
	assert.True(t, due, "a new day crossing the trigger should fire again")
}

func TestIsDue_RejectsMalformedTriggerTime(t *testing.T) {
	_, err := isDue(time.Now(), "not-a-time", time.Time{})
	require.Error(t, err)
}

func TestRunPreflightMaintenance_BackfillsInChunksAndRecordsWindow(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0,0, time.UTC)
	cfg := testConfig()
	cfg.PrestartDays = 1
	cfg.PrestartChunkSize = 6
	cfg.PrestartSleep = time.Millisecond

	adapter := &fakeAdapter{name: "binance", candles: mkCandles(24, now.Add(-24*time.Hour), time.Hour)}
	tracker := NewMemoryWindowTracker()
	sink := &fakeSink{}

	s := New(cfg, Universe{Symbols: []string{"BTCUSDT"}, Intervals: []string{"1h"}},
		[]venue.Adapter{adapter}, tracker, sink, nil, nil)
	s.Now = func() time.Time { return now }

	result := s.RunPreflightMaintenance(context.Background())
	assert.True(t, result.Success)
	assert.True(t, len(sink.stored) > 1, "a 24h backfill in 6-bar chunks should produce multiple curated frames")

	last, ok := tracker.LastSuccessfulEnd("BTCUSDT", "1h")
	require.True(t, ok)
	assert.Equal(t, now, last)
}

func TestStatus_ReportsNotRunningBeforeStart(t *testing.T) {
	s := New(testConfig(), Universe{}, nil, NewMemoryWindowTracker(), nil, nil, nil)
	assert.False(t, s.Status().Running)
}
