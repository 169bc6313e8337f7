// Package ingest implements window scheduling, parallel multi-venue
// fetch, cross-venue reconciliation, and gap-filling curation (C3).
//
// The pure reconciliation/curation math has no I/O and no ecosystem
// library in the pack offers cross-venue OHLCV reconciliation, so it is
// plain Go over in-memory slices — grounded on the teacher's
// domain/infrastructure split (pure transforms in internal/domain,
// network calls in internal/infrastructure), generalized to this
// spec's multi-venue curation requirement.
package ingest

import (
	"context"
	"sort"
	"time"

	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/venue"
	"github.com/quantcandle/signalengine/internal/xerrors"
)

// VenueFrame is one venue's raw candle series for a symbol/interval
// window, prior to reconciliation.
type VenueFrame struct {
	Venue   string
	Candles []signal.Candle
}

// CuratedFrame is the reconciled, gap-filled, relative-volume-annotated
// output handed to the candle store and the signal data provider.
type CuratedFrame struct {
	Symbol    string
	Interval  string
	Candles   []signal.Candle
	FillCount int // number of forward-filled synthetic bars
	Gaps      []xerrors.Gap
}

// MaxFillBars is the largest contiguous gap curation will forward-fill
// before treating it as a hard data gap (spec.md §4.2).
const MaxFillBars = 3

// RelativeVolumeLookback is the trailing bar count relative_volume is
// computed against.
const RelativeVolumeLookback = 20

// FetchAll fetches candles for symbol/interval/[start,end) from every
// adapter concurrently and returns one VenueFrame per adapter that
// succeeded. A venue that errors is logged by the caller (via the
// returned errs map, keyed by venue name) and excluded from
// reconciliation rather than aborting the whole ingestion window.
func FetchAll(ctx context.Context, adapters []venue.Adapter, symbol, interval string, start, end time.Time) ([]VenueFrame, map[string]error) {
	type result struct {
		frame VenueFrame
		err   error
	}

	results := make(chan result, len(adapters))
	for _, a := range adapters {
		a := a
		go func() {
			candles, err := a.FetchCandles(ctx, symbol, interval, start, end)
			results <- result{frame: VenueFrame{Venue: a.Name(), Candles: candles}, err: err}
		}()
	}

	frames := make([]VenueFrame, 0, len(adapters))
	errs := make(map[string]error)
	for i := 0; i < len(adapters); i++ {
		r := <-results
		if r.err != nil {
			errs[r.frame.Venue] = r.err
			continue
		}
		frames = append(frames, r.frame)
	}
	return frames, errs
}

// Curate reconciles candles from multiple venues into a single frame:
// for each open_time bucket, it prefers the venue reporting the
// highest volume (deepest liquidity, and therefore the most reliable
// print), forward-fills gaps of MaxFillBars bars or fewer by repeating
// the last known close as a zero-volume synthetic bar, and returns a
// DataGapError-worthy Gaps list for anything larger. Curate never
// errors itself — the caller decides whether unresolved Gaps should
// abort ingestion via xerrors.DataGapError.
func Curate(frames []VenueFrame, symbol, interval string, intervalDur time.Duration) CuratedFrame {
	byTime := map[time.Time][]signal.Candle{}
	for _, f := range frames {
		for _, c := range f.Candles {
			byTime[c.OpenTime] = append(byTime[c.OpenTime], c)
		}
	}
	if len(byTime) == 0 {
		return CuratedFrame{Symbol: symbol, Interval: interval}
	}

	times := make([]time.Time, 0, len(byTime))
	for t := range byTime {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	reconciled := make([]signal.Candle, 0, len(times))
	for _, t := range times {
		reconciled = append(reconciled, reconcileBucket(byTime[t]))
	}

	filled, fillCount, gaps := fillGaps(reconciled, intervalDur)
	annotateRelativeVolume(filled)

	return CuratedFrame{
		Symbol:    symbol,
		Interval:  interval,
		Candles:   filled,
		FillCount: fillCount,
		Gaps:      gaps,
	}
}

// reconcileBucket picks the candle reported by the venue with the
// highest volume among those agreeing on open_time — the deepest
// print is assumed least likely to be a stale or partial read.
func reconcileBucket(candles []signal.Candle) signal.Candle {
	best := candles[0]
	for _, c := range candles[1:] {
		if c.Volume > best.Volume {
			best = c
		}
	}
	return best
}

// fillGaps walks the reconciled series looking for missing bars
// between consecutive candles (detected via intervalDur spacing). Gaps
// of MaxFillBars or fewer missing bars are forward-filled with a
// zero-volume synthetic candle at the prior close; larger gaps are
// left unfilled and recorded.
func fillGaps(candles []signal.Candle, intervalDur time.Duration) ([]signal.Candle, int, []xerrors.Gap) {
	if len(candles) < 2 {
		return candles, 0, nil
	}

	out := make([]signal.Candle, 0, len(candles))
	out = append(out, candles[0])
	fillCount := 0
	var gaps []xerrors.Gap

	for i := 1; i < len(candles); i++ {
		prev := out[len(out)-1]
		curr := candles[i]
		missingBars := int(curr.OpenTime.Sub(prev.OpenTime)/intervalDur) - 1

		if missingBars <= 0 {
			out = append(out, curr)
			continue
		}
		if missingBars > MaxFillBars {
			gaps = append(gaps, xerrors.Gap{From: prev.OpenTime, To: curr.OpenTime, Bars: missingBars})
			out = append(out, curr)
			continue
		}
		for b := 1; b <= missingBars; b++ {
			synthetic := signal.Candle{
				Symbol:   prev.Symbol,
				Interval: prev.Interval,
				OpenTime: prev.OpenTime.Add(time.Duration(b) * intervalDur),
				Open:     prev.Close,
				High:     prev.Close,
				Low:      prev.Close,
				Close:    prev.Close,
				Volume:   0,
				Source:   "fill",
			}
			out = append(out, synthetic)
			fillCount++
		}
		out = append(out, curr)
	}

	return out, fillCount, gaps
}

// annotateRelativeVolume sets each candle's RelativeVolume to its
// volume divided by the trailing RelativeVolumeLookback-bar average
// volume, in place. Bars before the lookback window is full get a
// RelativeVolume of 1.0 (neutral — insufficient history to judge).
func annotateRelativeVolume(candles []signal.Candle) {
	for i := range candles {
		if i < RelativeVolumeLookback {
			candles[i].RelativeVolume = 1.0
			continue
		}
		var sum float64
		for j := i - RelativeVolumeLookback; j < i; j++ {
			sum += candles[j].Volume
		}
		avg := sum / float64(RelativeVolumeLookback)
		if avg == 0 {
			candles[i].RelativeVolume = 1.0
			continue
		}
		candles[i].RelativeVolume = candles[i].Volume / avg
	}
}
