// Package dataprovider implements the Signal Data Provider (C4): it
// assembles the immutable SignalDataInputs snapshot the strategy
// ensemble consumes, validating freshness and gap tolerance before
// handing data to a signal-generation pass, and caches curated frames
// behind an optional Redis layer.
//
// Grounded on the teacher's data/cache/cache.go (Cache interface,
// memory + Redis-via-REDIS_ADDR dual implementation, NewAuto
// constructor) kept close to verbatim since it is already
// domain-agnostic caching infrastructure this spec reuses directly.
package dataprovider

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/xerrors"
)

// Cache is the narrow byte-oriented cache contract the provider uses
// to avoid re-curating the same window on every signal generation
// pass within a cache TTL window.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte, ttl time.Duration)
}

type memoryCache struct {
	mu sync.Mutex
	m  map[string]cacheEntry
}

type cacheEntry struct {
	b   []byte
	exp time.Time
}

// NewMemoryCache returns an in-process cache for tests and single-node
// deployments with no Redis configured.
func NewMemoryCache() Cache {
	return &memoryCache{m: make(map[string]cacheEntry)}
}

func (c *memoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memoryCache) Set(key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := cacheEntry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisCache struct{ r *redis.Client }

// NewAutoCache returns a Redis-backed cache when REDIS_ADDR is set in
// the environment, falling back to an in-process cache otherwise — the
// provider's hot path never blocks on a cache dependency being absent.
func NewAutoCache() Cache {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return &redisCache{r: redis.NewClient(&redis.Options{Addr: addr})}
	}
	return NewMemoryCache()
}

func (r *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	v, err := r.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = r.r.Set(ctx, key, val, ttl).Err()
}

// CuratedSource supplies the curated candle frames and higher-timeframe
// context the provider assembles into a SignalDataInputs snapshot.
// Implemented by internal/candle.Store + internal/ingest in
// production, and by a fake in tests.
type CuratedSource interface {
	Candles(symbol, interval string) ([]signal.Candle, error)
	HigherTimeframeCandles(symbol, higherInterval string) ([]signal.Candle, error)
	LatestFunding(symbol string) (float64, error)
	LatestOpenInterest(symbol string) (float64, error)
}

// FreshnessConfig controls how stale the latest curated bar may be
// before the provider refuses to assemble a snapshot.
type FreshnessConfig struct {
	ThresholdMinutes int
	ToleranceCandles int // gap tolerance within the requested window
}

// DefaultFreshnessConfig mirrors spec.md §4.2's defaults: a 1h-interval
// signal must have a bar no older than 90 minutes, tolerating up to 3
// missing bars.
func DefaultFreshnessConfig() FreshnessConfig {
	return FreshnessConfig{ThresholdMinutes: 90, ToleranceCandles: 3}
}

// Provider assembles validated, immutable SignalDataInputs snapshots.
type Provider struct {
	Source CuratedSource
	Cache  Cache
	Cfg    FreshnessConfig
	Now    func() time.Time
}

// NewProvider constructs a Provider with a real-clock Now and an
// auto-selected (Redis-if-configured) cache.
func NewProvider(source CuratedSource, cfg FreshnessConfig) *Provider {
	return &Provider{Source: source, Cache: NewAutoCache(), Cfg: cfg, Now: time.Now}
}

// Assemble builds the SignalDataInputs for symbol/interval, validating
// freshness before returning. A cached snapshot younger than a quarter
// of the interval duration is returned without re-querying the source.
func (p *Provider) Assemble(symbol, interval, higherInterval string) (signal.SignalDataInputs, error) {
	cacheKey := "signalinputs:" + symbol + ":" + interval
	if cached, ok := p.Cache.Get(cacheKey); ok {
		var inputs signal.SignalDataInputs
		if err := json.Unmarshal(cached, &inputs); err == nil {
			return inputs, nil
		}
	}

	candles, err := p.Source.Candles(symbol, interval)
	if err != nil {
		return signal.SignalDataInputs{}, err
	}
	if len(candles) == 0 {
		return signal.SignalDataInputs{}, &xerrors.DataFreshnessError{
			Interval:         interval,
			ThresholdMinutes: p.Cfg.ThresholdMinutes,
		}
	}

	latest := candles[len(candles)-1]
	age := p.Now().Sub(latest.OpenTime)
	if age > time.Duration(p.Cfg.ThresholdMinutes)*time.Minute {
		return signal.SignalDataInputs{}, &xerrors.DataFreshnessError{
			Interval:         interval,
			LatestTimestamp:  latest.OpenTime,
			ThresholdMinutes: p.Cfg.ThresholdMinutes,
		}
	}

	if gaps := findUnresolvedGaps(candles, p.Cfg.ToleranceCandles, intervalDuration(interval)); len(gaps) > 0 {
		return signal.SignalDataInputs{}, &xerrors.DataGapError{
			Interval:         interval,
			Gaps:             gaps,
			ToleranceCandles: p.Cfg.ToleranceCandles,
		}
	}

	higherTF, err := p.Source.HigherTimeframeCandles(symbol, higherInterval)
	if err != nil {
		return signal.SignalDataInputs{}, err
	}
	funding, _ := p.Source.LatestFunding(symbol)
	oi, _ := p.Source.LatestOpenInterest(symbol)

	inputs := signal.SignalDataInputs{
		Symbol:       symbol,
		Interval:     interval,
		AsOf:         latest.OpenTime,
		Candles:      candles,
		HigherTF:     higherTF,
		FundingRate:  funding,
		OpenInterest: oi,
		GeneratedAt:  p.Now(),
	}

	if encoded, err := json.Marshal(inputs); err == nil {
		p.Cache.Set(cacheKey, encoded, intervalDuration(interval)/4)
	}

	return inputs, nil
}

func findUnresolvedGaps(candles []signal.Candle, tolerance int, interval time.Duration) []xerrors.Gap {
	var gaps []xerrors.Gap
	for i := 1; i < len(candles); i++ {
		missing := int(candles[i].OpenTime.Sub(candles[i-1].OpenTime)/interval) - 1
		if missing > tolerance {
			gaps = append(gaps, xerrors.Gap{From: candles[i-1].OpenTime, To: candles[i].OpenTime, Bars: missing})
		}
	}
	return gaps
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
