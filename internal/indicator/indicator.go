// Package indicator implements the pure technical-indicator library
// (C5): no I/O, no lookahead — every function consumes only bars up to
// and including the evaluation point and returns a result with IsValid
// false wherever history is insufficient (a single-value Result also
// carries NaN; MACD, Bollinger and Keltner return their zero value), so
// a caller never mistakes a warm-up artifact for a signal.
//
// Grounded on the teacher's internal/domain/indicators/technical.go
// (CalculateRSI's Wilder-smoothing idiom), generalized into a single
// consistent Result-per-indicator shape and extended with the rest of
// the oscillator/overlay suite the ensemble strategies need.
package indicator

import "math"

// Result is the shared return shape: the most recent value plus whether
// enough history existed to compute it.
type Result struct {
	Value   float64
	IsValid bool
}

func invalid() Result { return Result{Value: math.NaN(), IsValid: false} }

// SMA computes the simple moving average of the last `period` closes.
func SMA(closes []float64, period int) Result {
	if period <= 0 || len(closes) < period {
		return invalid()
	}
	sum := 0.0
	for _, v := range closes[len(closes)-period:] {
		sum += v
	}
	return Result{Value: sum / float64(period), IsValid: true}
}

// EMASeries computes the full exponential moving average series so
// callers needing cross-timeframe alignment (not just the latest value)
// can consume history without recomputation.
func EMASeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if period <= 0 || len(closes) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	alpha := 2.0 / (float64(period) + 1)
	seeded := false
	ema := 0.0
	for i, c := range closes {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		if !seeded {
			sum := 0.0
			for _, v := range closes[i-period+1 : i+1] {
				sum += v
			}
			ema = sum / float64(period)
			seeded = true
		} else {
			ema = ema*(1-alpha) + c*alpha
		}
		out[i] = ema
	}
	return out
}

// EMA returns the latest value of EMASeries.
func EMA(closes []float64, period int) Result {
	series := EMASeries(closes, period)
	if len(series) == 0 || math.IsNaN(series[len(series)-1]) {
		return invalid()
	}
	return Result{Value: series[len(series)-1], IsValid: true}
}

// MACDResult holds the MACD line, signal line, and histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
	IsValid   bool
}

// MACD computes the standard 12/26/9 (or caller-supplied) configuration.
func MACD(closes []float64, fast, slow, signalPeriod int) MACDResult {
	if len(closes) < slow+signalPeriod {
		return MACDResult{}
	}
	fastSeries := EMASeries(closes, fast)
	slowSeries := EMASeries(closes, slow)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		if math.IsNaN(fastSeries[i]) || math.IsNaN(slowSeries[i]) {
			macdLine[i] = math.NaN()
			continue
		}
		macdLine[i] = fastSeries[i] - slowSeries[i]
	}

	// signal line is an EMA of the macd line, restricted to its valid tail
	firstValid := 0
	for firstValid < len(macdLine) && math.IsNaN(macdLine[firstValid]) {
		firstValid++
	}
	valid := macdLine[firstValid:]
	if len(valid) < signalPeriod {
		return MACDResult{}
	}
	signalSeries := EMASeries(valid, signalPeriod)
	lastSignal := signalSeries[len(signalSeries)-1]
	lastMACD := macdLine[len(macdLine)-1]
	if math.IsNaN(lastSignal) || math.IsNaN(lastMACD) {
		return MACDResult{}
	}
	return MACDResult{MACD: lastMACD, Signal: lastSignal, Histogram: lastMACD - lastSignal, IsValid: true}
}

// RSI computes Wilder-smoothed RSI, matching the teacher's
// CalculateRSI exactly (initial SMA seed, then EMA-style smoothing with
// alpha = 1/period).
func RSI(closes []float64, period int) Result {
	if len(closes) < period+1 {
		return invalid()
	}
	changes := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		changes[i-1] = closes[i] - closes[i-1]
	}

	gains := make([]float64, len(changes))
	losses := make([]float64, len(changes))
	for i, c := range changes {
		if c > 0 {
			gains[i] = c
		} else {
			losses[i] = -c
		}
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period; i < len(changes); i++ {
		avgGain = avgGain*(1-alpha) + gains[i]*alpha
		avgLoss = avgLoss*(1-alpha) + losses[i]*alpha
	}

	if avgLoss == 0 {
		return Result{Value: 100.0, IsValid: true}
	}
	rs := avgGain / avgLoss
	return Result{Value: 100.0 - (100.0 / (1.0 + rs)), IsValid: true}
}

// StochRSI applies a %K stochastic transform over a rolling RSI window.
func StochRSI(closes []float64, rsiPeriod, stochPeriod int) Result {
	if len(closes) < rsiPeriod+stochPeriod+1 {
		return invalid()
	}
	rsiValues := make([]float64, 0, len(closes))
	for i := rsiPeriod + 1; i <= len(closes); i++ {
		r := RSI(closes[:i], rsiPeriod)
		if !r.IsValid {
			return invalid()
		}
		rsiValues = append(rsiValues, r.Value)
	}
	if len(rsiValues) < stochPeriod {
		return invalid()
	}
	window := rsiValues[len(rsiValues)-stochPeriod:]
	lo, hi := window[0], window[0]
	for _, v := range window {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return Result{Value: 50.0, IsValid: true}
	}
	current := rsiValues[len(rsiValues)-1]
	return Result{Value: (current - lo) / (hi - lo) * 100.0, IsValid: true}
}

// BollingerBands holds the upper/middle/lower band values.
type BollingerBands struct {
	Upper, Middle, Lower float64
	IsValid              bool
}

// Bollinger computes a period-N simple-moving-average band with
// numStdDev standard deviations.
func Bollinger(closes []float64, period int, numStdDev float64) BollingerBands {
	mid := SMA(closes, period)
	if !mid.IsValid {
		return BollingerBands{}
	}
	window := closes[len(closes)-period:]
	variance := 0.0
	for _, v := range window {
		d := v - mid.Value
		variance += d * d
	}
	variance /= float64(period)
	sd := math.Sqrt(variance)
	return BollingerBands{
		Upper:   mid.Value + numStdDev*sd,
		Middle:  mid.Value,
		Lower:   mid.Value - numStdDev*sd,
		IsValid: true,
	}
}

// ATR computes the Average True Range over period bars using Wilder
// smoothing, consuming high/low/close triples.
func ATR(highs, lows, closes []float64, period int) Result {
	n := len(closes)
	if n < period+1 || len(highs) != n || len(lows) != n {
		return invalid()
	}
	trueRanges := make([]float64, n-1)
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		trueRanges[i-1] = math.Max(hl, math.Max(hc, lc))
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period; i < len(trueRanges); i++ {
		atr = atr*(1-alpha) + trueRanges[i]*alpha
	}
	return Result{Value: atr, IsValid: true}
}

// KeltnerChannel computes an EMA midline with ATR-multiple bands.
type KeltnerChannel struct {
	Upper, Middle, Lower float64
	IsValid              bool
}

func Keltner(highs, lows, closes []float64, emaPeriod, atrPeriod int, atrMultiple float64) KeltnerChannel {
	mid := EMA(closes, emaPeriod)
	atr := ATR(highs, lows, closes, atrPeriod)
	if !mid.IsValid || !atr.IsValid {
		return KeltnerChannel{}
	}
	return KeltnerChannel{
		Upper:   mid.Value + atrMultiple*atr.Value,
		Middle:  mid.Value,
		Lower:   mid.Value - atrMultiple*atr.Value,
		IsValid: true,
	}
}

// ADX computes the Average Directional Index over period bars.
func ADX(highs, lows, closes []float64, period int) Result {
	n := len(closes)
	if n < period*2 || len(highs) != n || len(lows) != n {
		return invalid()
	}

	plusDM := make([]float64, n-1)
	minusDM := make([]float64, n-1)
	tr := make([]float64, n-1)
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i-1] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i-1] = downMove
		}
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i-1] = math.Max(hl, math.Max(hc, lc))
	}

	smooth := func(values []float64, period int) []float64 {
		out := make([]float64, len(values))
		sum := 0.0
		for i := 0; i < period && i < len(values); i++ {
			sum += values[i]
		}
		out[period-1] = sum
		for i := period; i < len(values); i++ {
			out[i] = out[i-1] - out[i-1]/float64(period) + values[i]
		}
		return out
	}

	smoothTR := smooth(tr, period)
	smoothPlusDM := smooth(plusDM, period)
	smoothMinusDM := smooth(minusDM, period)

	dx := make([]float64, len(tr))
	for i := period - 1; i < len(tr); i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlusDM[i] / smoothTR[i]
		minusDI := 100 * smoothMinusDM[i] / smoothTR[i]
		sum := plusDI + minusDI
		if sum == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
	}

	start := period - 1 + period
	if start >= len(dx) {
		return invalid()
	}
	adxSum := 0.0
	for i := period - 1; i < start; i++ {
		adxSum += dx[i]
	}
	adx := adxSum / float64(period)
	for i := start; i < len(dx); i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
	}
	return Result{Value: adx, IsValid: true}
}

// Momentum computes the percentage price change over `period` bars.
func Momentum(closes []float64, period int) Result {
	if len(closes) < period+1 {
		return invalid()
	}
	prev := closes[len(closes)-1-period]
	if prev == 0 {
		return invalid()
	}
	return Result{Value: (closes[len(closes)-1] - prev) / prev * 100.0, IsValid: true}
}

// RealizedVolatility computes annualized realized volatility from
// log-returns over the trailing `period` bars, given the number of bars
// per year (barsPerYear) for annualization (e.g. 365*24 for hourly).
func RealizedVolatility(closes []float64, period, barsPerYear int) Result {
	if len(closes) < period+1 {
		return invalid()
	}
	window := closes[len(closes)-period-1:]
	returns := make([]float64, len(window)-1)
	for i := 1; i < len(window); i++ {
		if window[i-1] <= 0 {
			return invalid()
		}
		returns[i-1] = math.Log(window[i] / window[i-1])
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	stdDev := math.Sqrt(variance)
	return Result{Value: stdDev * math.Sqrt(float64(barsPerYear)), IsValid: true}
}

// VWAP computes the volume-weighted average price over the full input
// window (callers pass the window they want, e.g. the current session).
func VWAP(highs, lows, closes, volumes []float64) Result {
	n := len(closes)
	if n == 0 || len(highs) != n || len(lows) != n || len(volumes) != n {
		return invalid()
	}
	var pv, v float64
	for i := 0; i < n; i++ {
		typical := (highs[i] + lows[i] + closes[i]) / 3.0
		pv += typical * volumes[i]
		v += volumes[i]
	}
	if v == 0 {
		return invalid()
	}
	return Result{Value: pv / v, IsValid: true}
}
