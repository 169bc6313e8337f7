// Package scheduler implements the Scheduler & Job Runner (C14): a
// 15-minute ingest_all job, a once-daily daily_pipeline job at a
// configured UTC time, and a startup preflight_maintenance backfill
// pass, each run with linear-backoff retries and metric-failure
// swallowing so observability never threatens pipeline correctness.
//
// Grounded on the teacher's internal/scheduler/scheduler.go
// (Scheduler{config, startTime, running}, Start's ticker-driven
// checkAndRunJobs loop, RunJob's named-job dispatch and JobResult
// accumulation), retargeted from a cron-table-of-scan-jobs into this
// engine's fixed three-job set with explicit retry semantics the
// teacher's version left to the caller.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantcandle/signalengine/internal/ingest"
	"github.com/quantcandle/signalengine/internal/venue"
	"github.com/quantcandle/signalengine/internal/xerrors"
)

// JobName identifies one of the scheduler's fixed jobs.
type JobName string

const (
	JobIngestAll           JobName = "ingest_all"
	JobDailyPipeline       JobName = "daily_pipeline"
	JobPreflightMaintenance JobName = "preflight_maintenance"
)

// WindowTracker resolves and records the last successfully ingested
// window end per (symbol, interval), so ingest_all requests
// [last_successful_end, now), capped at one interval span.
// MemoryWindowTracker is the only implementation in this module.
type WindowTracker interface {
	LastSuccessfulEnd(symbol, interval string) (time.Time, bool)
	RecordSuccess(symbol, interval string, end time.Time)
}

// MemoryWindowTracker is an in-process, map-backed WindowTracker.
type MemoryWindowTracker struct {
	ends map[string]time.Time
}

func NewMemoryWindowTracker() *MemoryWindowTracker {
	return &MemoryWindowTracker{ends: make(map[string]time.Time)}
}

func (t *MemoryWindowTracker) LastSuccessfulEnd(symbol, interval string) (time.Time, bool) {
	v, ok := t.ends[symbol+":"+interval]
	return v, ok
}

func (t *MemoryWindowTracker) RecordSuccess(symbol, interval string, end time.Time) {
	t.ends[symbol+":"+interval] = end
}

// CuratedSink receives a curated frame once ingest_all reconciles it —
// implemented by the candle store in production.
type CuratedSink interface {
	Store(frame ingest.CuratedFrame) error
}

// DailyPipeline runs curation + orchestrator publication for every
// tracked (user, symbol, interval) once per day. Implemented by a thin
// wrapper over internal/orchestrator in production.
type DailyPipeline interface {
	Run(ctx context.Context) error
}

// MetricsRecorder records job outcome counters. A failure here is
// logged and swallowed — the scheduler's correctness never depends on
// observability succeeding.
type MetricsRecorder interface {
	RecordJobResult(job JobName, success bool, duration time.Duration) error
}

// NoopMetricsRecorder discards every call; used when no metrics sink
// is configured.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) RecordJobResult(JobName, bool, time.Duration) error { return nil }

// Universe is the fixed (symbol, interval) set ingest_all and the
// preflight backfill pass operate over.
type Universe struct {
	Symbols   []string
	Intervals []string
}

// Config controls cadence, retry, and backfill depth.
type Config struct {
	IngestInterval          time.Duration // 15 min
	RecommendationUpdateUTC string        // "HH:MM", daily_pipeline trigger time
	MaxRetries              int           // 3
	RetryBackoff            time.Duration // linear: backoff * attempt
	PrestartDays            int           // preflight_maintenance backfill depth
	PrestartChunkSize       int           // bars fetched per backfill chunk
	PrestartSleep           time.Duration // pause between backfill chunks
}

// DefaultConfig mirrors spec.md §4.12's defaults.
func DefaultConfig() Config {
	return Config{
		IngestInterval:          15 * time.Minute,
		RecommendationUpdateUTC: "00:05",
		MaxRetries:              3,
		RetryBackoff:            2 * time.Second,
		PrestartDays:            7,
		PrestartChunkSize:       500,
		PrestartSleep:           250 * time.Millisecond,
	}
}

// Scheduler owns the three fixed jobs and their ticking/retry logic.
type Scheduler struct {
	Cfg       Config
	Universe  Universe
	Adapters  []venue.Adapter
	Tracker   WindowTracker
	Sink      CuratedSink
	Pipeline  DailyPipeline
	Metrics   MetricsRecorder
	Now       func() time.Time

	startTime    time.Time
	lastDailyRun time.Time
}

// New constructs a Scheduler; a nil Metrics recorder defaults to a
// no-op so metric wiring is optional in tests and early deployments.
func New(cfg Config, universe Universe, adapters []venue.Adapter, tracker WindowTracker, sink CuratedSink, pipeline DailyPipeline, metrics MetricsRecorder) *Scheduler {
	if metrics == nil {
		metrics = NoopMetricsRecorder{}
	}
	return &Scheduler{
		Cfg: cfg, Universe: universe, Adapters: adapters, Tracker: tracker,
		Sink: sink, Pipeline: pipeline, Metrics: metrics, Now: time.Now,
	}
}

// Status reports whether the scheduler has been started and for how
// long, for a health/readiness endpoint.
type Status struct {
	Running bool
	Uptime  time.Duration
}

// Status returns the current uptime since Start was called.
func (s *Scheduler) Status() Status {
	if s.startTime.IsZero() {
		return Status{}
	}
	return Status{Running: true, Uptime: s.Now().Sub(s.startTime)}
}

// JobResult records one job run's outcome for status reporting.
type JobResult struct {
	Job       JobName
	StartTime time.Time
	EndTime   time.Time
	Attempts  int
	Success   bool
	Err       error
}

// Start runs preflight_maintenance once, then blocks driving
// ingest_all on its ticker and daily_pipeline at the configured UTC
// time, until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.startTime = s.Now()

	if result := s.RunPreflightMaintenance(ctx); !result.Success {
		log.Warn().Err(result.Err).Msg("preflight_maintenance did not complete cleanly, continuing")
	}

	ticker := time.NewTicker(s.Cfg.IngestInterval)
	defer ticker.Stop()

	checkTicker := time.NewTicker(time.Minute)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runWithRetry(ctx, JobIngestAll, s.runIngestAll)
		case <-checkTicker.C:
			s.maybeRunDailyPipeline(ctx)
		}
	}
}

func (s *Scheduler) maybeRunDailyPipeline(ctx context.Context) {
	now := s.Now()
	due, err := isDue(now, s.Cfg.RecommendationUpdateUTC, s.lastDailyRun)
	if err != nil {
		log.Warn().Err(err).Msg("invalid recommendation_update_time, skipping daily_pipeline check")
		return
	}
	if !due {
		return
	}
	s.lastDailyRun = now
	s.runWithRetry(ctx, JobDailyPipeline, s.runDailyPipeline)
}

// isDue reports whether "now" has crossed hhmm (UTC, "HH:MM") since
// lastRun — true at most once per calendar day.
func isDue(now time.Time, hhmm string, lastRun time.Time) (bool, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		return false, fmt.Errorf("parse recommendation_update_time %q: %w", hhmm, err)
	}
	trigger := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if now.Before(trigger) {
		return false, nil
	}
	if !lastRun.IsZero() && !lastRun.Before(trigger) {
		return false, nil
	}
	return true, nil
}

// runWithRetry runs fn up to Cfg.MaxRetries times with linear backoff
// (backoff * attempt), recording the outcome via Metrics without
// letting a metrics failure affect the job's own result.
func (s *Scheduler) runWithRetry(ctx context.Context, job JobName, fn func(ctx context.Context) error) JobResult {
	result := JobResult{Job: job, StartTime: s.Now()}

	var lastErr error
retryLoop:
	for attempt := 1; attempt <= s.Cfg.MaxRetries; attempt++ {
		result.Attempts = attempt
		err := fn(ctx)
		if err == nil {
			result.Success = true
			lastErr = nil
			break
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
		if attempt < s.Cfg.MaxRetries {
			log.Warn().Err(err).Str("job", string(job)).Int("attempt", attempt).Msg("job attempt failed, retrying")
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retryLoop
			case <-time.After(s.Cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
	}
	result.Err = lastErr
	result.EndTime = s.Now()

	if result.Err != nil {
		log.Error().Err(result.Err).Str("job", string(job)).Int("attempts", result.Attempts).Msg("job failed after retries")
	} else {
		log.Info().Str("job", string(job)).Int("attempts", result.Attempts).Msg("job completed")
	}

	if err := s.Metrics.RecordJobResult(job, result.Success, result.EndTime.Sub(result.StartTime)); err != nil {
		log.Warn().Err(err).Str("job", string(job)).Msg("metric recording failed, continuing")
	}

	return result
}

// isRetryable reports whether runWithRetry tries a failed job again. A
// *xerrors.VenueError (matched directly, not unwrapped) is retried only
// when its Kind is rate or net; every other error is retried.
func isRetryable(err error) bool {
	if ve, ok := err.(*xerrors.VenueError); ok {
		return ve.Kind.Retryable()
	}
	return true
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// runIngestAll fetches, reconciles, and sinks one window for every
// (symbol, interval) in the universe, capping the requested window at
// one interval span as spec.md §4.2 requires.
func (s *Scheduler) runIngestAll(ctx context.Context) error {
	now := s.Now()
	for _, symbol := range s.Universe.Symbols {
		for _, interval := range s.Universe.Intervals {
			dur := intervalDuration(interval)
			start := now.Add(-dur)
			if last, ok := s.Tracker.LastSuccessfulEnd(symbol, interval); ok && last.After(start) {
				start = last
			}
			if !start.Before(now) {
				continue
			}

			frames, errs := ingest.FetchAll(ctx, s.Adapters, symbol, interval, start, now)
			for venueName, err := range errs {
				log.Warn().Err(err).Str("venue", venueName).Str("symbol", symbol).Str("interval", interval).
					Msg("venue fetch failed, excluded from reconciliation")
			}
			if len(frames) == 0 {
				return fmt.Errorf("ingest %s/%s: every venue failed", symbol, interval)
			}

			curated := ingest.Curate(frames, symbol, interval, dur)
			if s.Sink != nil {
				if err := s.Sink.Store(curated); err != nil {
					return fmt.Errorf("ingest %s/%s: store curated frame: %w", symbol, interval, err)
				}
			}
			s.Tracker.RecordSuccess(symbol, interval, now)
		}
	}
	return nil
}

func (s *Scheduler) runDailyPipeline(ctx context.Context) error {
	if s.Pipeline == nil {
		return nil
	}
	return s.Pipeline.Run(ctx)
}

// RunPreflightMaintenance backfills PrestartDays of history per
// interval in the universe, detecting gaps and re-curating in chunks
// of PrestartChunkSize bars with a sleep between calls so a cold start
// doesn't burst every venue's rate limit at once.
func (s *Scheduler) RunPreflightMaintenance(ctx context.Context) JobResult {
	return s.runWithRetry(ctx, JobPreflightMaintenance, func(ctx context.Context) error {
		now := s.Now()
		for _, symbol := range s.Universe.Symbols {
			for _, interval := range s.Universe.Intervals {
				dur := intervalDuration(interval)
				start := now.Add(-time.Duration(s.Cfg.PrestartDays) * 24 * time.Hour)

				for cursor := start; cursor.Before(now); {
					chunkEnd := cursor.Add(time.Duration(s.Cfg.PrestartChunkSize) * dur)
					if chunkEnd.After(now) {
						chunkEnd = now
					}

					frames, errs := ingest.FetchAll(ctx, s.Adapters, symbol, interval, cursor, chunkEnd)
					for venueName, err := range errs {
						log.Warn().Err(err).Str("venue", venueName).Str("symbol", symbol).Str("interval", interval).
							Msg("backfill fetch failed for venue, excluded from reconciliation")
					}
					if len(frames) > 0 {
						curated := ingest.Curate(frames, symbol, interval, dur)
						if len(curated.Gaps) > 0 {
							log.Warn().Str("symbol", symbol).Str("interval", interval).Int("gaps", len(curated.Gaps)).
								Msg("unresolved gaps remain after backfill chunk")
						}
						if s.Sink != nil {
							if err := s.Sink.Store(curated); err != nil {
								return fmt.Errorf("preflight_maintenance %s/%s: store curated frame: %w", symbol, interval, err)
							}
						}
					}

					cursor = chunkEnd
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(s.Cfg.PrestartSleep):
					}
				}
				s.Tracker.RecordSuccess(symbol, interval, now)
			}
		}
		return nil
	})
}
