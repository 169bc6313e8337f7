// Package regime implements majority-vote regime detection and the
// regime-keyed ensemble weight store (part of C6).
//
// Grounded on the teacher's Detector.DetectRegime/calculateVotes/
// majorityVote pattern (three independent signal votes resolved by
// majority), generalized from the teacher's 3-label
// {TrendingBull, Choppy, HighVol} set to this engine's 7-label glossary
// {bull, bear, range, neutral, calm, balanced, stress} and from an
// async ctx-fetched DetectorInputs interface to synchronous in-memory
// Indicators, since this engine's regime vote runs inline against an
// already-assembled SignalDataInputs rather than polling external feeds.
package regime

import "github.com/quantcandle/signalengine/internal/signal"

// Indicators is the minimal feature set the detector votes over.
type Indicators struct {
	ADX               float64 // trend strength
	EMASlopePct       float64 // % slope of the long EMA, signed
	RealizedVolAnnPct float64
	VolAvgAnnPct      float64 // trailing average realized vol, for a relative-vol vote
	BBWidthPct        float64 // Bollinger band width as % of middle
}

// VotingBreakdown records each vote cast by the detector, for audit.
type VotingBreakdown struct {
	TrendVote string
	VolVote   string
	RangeVote string
}

// DetectionResult is the detector's output.
type DetectionResult struct {
	Regime   signal.Regime
	Votes    VotingBreakdown
	IsStable bool // true when at least 2 of 3 axis votes agree on a direction
}

// Detector classifies market state via majority vote across three
// independent signals: trend strength, volatility level, and range-bound
// compression.
type Detector struct {
	ADXTrendThreshold  float64 // ADX above this => trending
	HighVolMultiple    float64 // realized vol above VolAvg*multiple => stress
	RangeBBWidthPctMax float64 // BB width below this => range/calm
}

// NewDetector returns a Detector configured with spec-default thresholds.
func NewDetector() *Detector {
	return &Detector{
		ADXTrendThreshold:  25.0,
		HighVolMultiple:    1.5,
		RangeBBWidthPctMax: 3.0,
	}
}

// DetectRegime classifies the current bar's Indicators into one of the
// seven regime labels via majority vote.
func (d *Detector) DetectRegime(ind Indicators) DetectionResult {
	trendVote, isTrending, isBull := d.trendVote(ind)
	volVote, isStress, isCalm := d.volVote(ind)
	rangeVote, isRange := d.rangeVote(ind)

	breakdown := VotingBreakdown{TrendVote: trendVote, VolVote: volVote, RangeVote: rangeVote}
	r := d.majorityVote(isTrending, isBull, isStress, isCalm, isRange)

	agree := 0
	if isTrending {
		agree++
	}
	if isStress {
		agree++
	}
	if isRange {
		agree++
	}

	return DetectionResult{Regime: r, Votes: breakdown, IsStable: agree >= 2}
}

func (d *Detector) trendVote(ind Indicators) (vote string, isTrending, isBull bool) {
	isTrending = ind.ADX >= d.ADXTrendThreshold
	isBull = ind.EMASlopePct > 0
	if !isTrending {
		return "flat", false, isBull
	}
	if isBull {
		return "bull", true, true
	}
	return "bear", true, false
}

func (d *Detector) volVote(ind Indicators) (vote string, isStress, isCalm bool) {
	if ind.VolAvgAnnPct <= 0 {
		return "unknown", false, false
	}
	ratio := ind.RealizedVolAnnPct / ind.VolAvgAnnPct
	isStress = ratio >= d.HighVolMultiple
	isCalm = ratio <= 1.0/d.HighVolMultiple
	switch {
	case isStress:
		return "stress", true, false
	case isCalm:
		return "calm", false, true
	default:
		return "balanced", false, false
	}
}

func (d *Detector) rangeVote(ind Indicators) (vote string, isRange bool) {
	isRange = ind.BBWidthPct <= d.RangeBBWidthPctMax
	if isRange {
		return "range", true
	}
	return "expanding", false
}

// majorityVote resolves the three axis votes into a single label.
// Trend dominates when present (a trending market is labeled bull/bear
// regardless of the volatility/range votes); absent a trend, stress
// dominates calm/range, and calm dominates a plain range classification.
func (d *Detector) majorityVote(isTrending, isBull, isStress, isCalm, isRange bool) signal.Regime {
	switch {
	case isTrending && isBull:
		return signal.RegimeBull
	case isTrending && !isBull:
		return signal.RegimeBear
	case isStress:
		return signal.RegimeStress
	case isRange && isCalm:
		return signal.RegimeCalm
	case isRange:
		return signal.RegimeRange
	case isCalm:
		return signal.RegimeCalm
	default:
		return signal.RegimeNeutral
	}
}
