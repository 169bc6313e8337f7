package backtest

import (
	"math"

	"github.com/quantcandle/signalengine/internal/signal"
)

// ExitReason enumerates why a position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitSLGap      ExitReason = "SL_GAP"
	ExitTrailing   ExitReason = "trailing_stop"
	ExitBreakeven  ExitReason = "breakeven_stop"
	ExitTimeout    ExitReason = "window_end"
)

// LiquidityModel estimates the depth a fill can draw against from a
// bar's own fields, falling back to a volume-scaled estimate when no
// order-book hint is present. Ported from original_source's
// VolumeLiquidityModel.
type LiquidityModel struct {
	MinDepth    float64
	VolumeScale float64
}

func DefaultLiquidityModel() LiquidityModel {
	return LiquidityModel{MinDepth: 1000.0, VolumeScale: 0.4}
}

func (m LiquidityModel) Depth(bar signal.Candle) float64 {
	d := bar.Volume * m.VolumeScale
	if d < m.MinDepth {
		return m.MinDepth
	}
	return d
}

// ExecutionModel computes dynamic slippage from volatility, book depth
// and overnight/inter-bar gaps, and the fill price/quality that
// results. Ported verbatim in formula from original_source's
// ExecutionModel.
type ExecutionModel struct {
	Liquidity    LiquidityModel
	BaseBps      float64
	VolCoeff     float64
	DepthCoeff   float64
	GapThreshold float64
	GapPenalty   float64
}

func DefaultExecutionModel() ExecutionModel {
	return ExecutionModel{
		Liquidity:    DefaultLiquidityModel(),
		BaseBps:      5.0,
		VolCoeff:     40.0,
		DepthCoeff:   0.00004,
		GapThreshold: 0.01,
		GapPenalty:   0.002,
	}
}

func (m ExecutionModel) priceImpact(bar signal.Candle, atr float64, notional float64) float64 {
	vol := atr
	if vol <= 0 {
		vol = 0.02
	}
	depth := m.Liquidity.Depth(bar)
	if depth < 1 {
		depth = 1
	}
	depthTerm := (notional / depth) * m.DepthCoeff
	slipBps := m.BaseBps + m.VolCoeff*vol + depthTerm
	return slipBps / 10000.0
}

// FillResult is an adjusted fill price and the fraction of the
// intended quantity actually filled (a gap-open event only partially
// fills, matching original_source's simulate_fill).
type FillResult struct {
	Price    float64
	FillFrac float64
}

// AdjustFill applies price impact from volatility/depth, then applies
// the gap-open penalty if the bar opened beyond GapThreshold away from
// the prior close.
func (m ExecutionModel) AdjustFill(bar signal.Candle, prevClose float64, side signal.Direction, targetPrice, notional, atr float64) FillResult {
	impact := m.priceImpact(bar, atr, math.Abs(notional))

	impacted := targetPrice
	if side == signal.DirectionBuy {
		impacted = targetPrice * (1 + impact)
	} else {
		impacted = targetPrice * (1 - impact)
	}

	var gapOpen float64
	if prevClose != 0 {
		gapOpen = (bar.Open - prevClose) / prevClose
	}
	if math.Abs(gapOpen) >= m.GapThreshold {
		direction := -1.0
		if (gapOpen > 0 && side == signal.DirectionBuy) || (gapOpen < 0 && side == signal.DirectionSell) {
			direction = 1.0
		}
		return FillResult{Price: impacted * (1 + direction*m.GapPenalty), FillFrac: 0.6}
	}
	return FillResult{Price: impacted, FillFrac: 1.0}
}

// EvaluateBar applies one bar against an open position using the
// Conservative Intrabar rule: when both the stop-loss and take-profit
// levels fall within a single bar's [low, high] range, the stop-loss is
// assumed to have been hit first — the model never assumes the best
// case for the trader within an ambiguous bar. Before that ordinary
// test, a bar that opens past the stop on a gap of at least
// exec.GapThreshold exits immediately at open×(1±GapPenalty) with
// reason SL_GAP, skipping the ordinary SL/TP comparison entirely.
// Returns (exitPrice, reason, exited).
func EvaluateBar(pos PositionLifecycle, bar signal.Candle, prevClose float64, exec ExecutionModel) (float64, ExitReason, bool) {
	isLong := pos.Direction == signal.DirectionBuy

	if prevClose > 0 {
		gap := (bar.Open - prevClose) / prevClose
		switch {
		case isLong && bar.Open <= pos.StopLoss && gap <= -exec.GapThreshold:
			return bar.Open * (1 - exec.GapPenalty), ExitSLGap, true
		case !isLong && bar.Open >= pos.StopLoss && gap >= exec.GapThreshold:
			return bar.Open * (1 + exec.GapPenalty), ExitSLGap, true
		}
	}

	hitSL := false
	hitTP := false
	if isLong {
		hitSL = bar.Low <= pos.StopLoss
		hitTP = bar.High >= pos.TakeProfit
	} else {
		hitSL = bar.High >= pos.StopLoss
		hitTP = bar.Low <= pos.TakeProfit
	}

	switch {
	case hitSL && hitTP:
		return pos.StopLoss, ExitStopLoss, true
	case hitSL:
		return pos.StopLoss, ExitStopLoss, true
	case hitTP:
		return pos.TakeProfit, ExitTakeProfit, true
	default:
		return 0, "", false
	}
}

// UpdateExcursion refreshes MAE/MFE (as fractions of entry price) given
// the current bar's range, tracking the worst adverse move and best
// favorable move seen so far regardless of whether the position has
// exited yet.
func UpdateExcursion(pos *PositionLifecycle, bar signal.Candle) {
	isLong := pos.Direction == signal.DirectionBuy

	var adverse, favorable float64
	if isLong {
		adverse = (pos.EntryPrice - bar.Low) / pos.EntryPrice
		favorable = (bar.High - pos.EntryPrice) / pos.EntryPrice
	} else {
		adverse = (bar.High - pos.EntryPrice) / pos.EntryPrice
		favorable = (pos.EntryPrice - bar.Low) / pos.EntryPrice
	}

	if adverse > pos.MAE {
		pos.MAE = adverse
	}
	if favorable > pos.MFE {
		pos.MFE = favorable
	}
}

// ApplyBreakevenAndTrailing adjusts the stop-loss in place once the
// position has moved BreakevenAtR R in its favor (moves stop to entry)
// and then trails it by TrailingStopPct behind the best price seen,
// never loosening the stop.
func ApplyBreakevenAndTrailing(pos *PositionLifecycle, bar signal.Candle, initialRisk float64) {
	isLong := pos.Direction == signal.DirectionBuy

	var bestPrice float64
	if isLong {
		bestPrice = bar.High
	} else {
		bestPrice = bar.Low
	}

	if pos.BreakevenAtR > 0 && initialRisk > 0 {
		movedR := 0.0
		if isLong {
			movedR = (bestPrice - pos.EntryPrice) / initialRisk
		} else {
			movedR = (pos.EntryPrice - bestPrice) / initialRisk
		}
		if movedR >= pos.BreakevenAtR {
			if isLong && pos.StopLoss < pos.EntryPrice {
				pos.StopLoss = pos.EntryPrice
			} else if !isLong && pos.StopLoss > pos.EntryPrice {
				pos.StopLoss = pos.EntryPrice
			}
		}
	}

	if pos.TrailingStopPct > 0 {
		if isLong {
			trail := bestPrice * (1 - pos.TrailingStopPct)
			if trail > pos.StopLoss {
				pos.StopLoss = trail
			}
		} else {
			trail := bestPrice * (1 + pos.TrailingStopPct)
			if trail < pos.StopLoss || pos.StopLoss == 0 {
				pos.StopLoss = trail
			}
		}
	}
}
