package backtest

import (
	"testing"
	"time"

	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/stretchr/testify/assert"
)

func mkBar(open, high, low, close_, volume float64) signal.Candle {
	return signal.Candle{OpenTime: time.Now(), Open: open, High: high, Low: low, Close: close_, Volume: volume}
}

func TestEvaluateBar_StopLossWinsWhenBothTouchedInSameBar(t *testing.T) {
	pos := PositionLifecycle{Direction: signal.DirectionBuy, EntryPrice: 100, StopLoss: 95, TakeProfit: 110}
	bar := mkBar(100, 111, 94, 105, 1000)

	price, reason, exited := EvaluateBar(pos, bar, 100, DefaultExecutionModel())
	assert.True(t, exited)
	assert.Equal(t, ExitStopLoss, reason)
	assert.Equal(t, 95.0, price)
}

func TestEvaluateBar_TakeProfitAloneExits(t *testing.T) {
	pos := PositionLifecycle{Direction: signal.DirectionBuy, EntryPrice: 100, StopLoss: 95, TakeProfit: 110}
	bar := mkBar(100, 111, 99, 105, 1000)

	price, reason, exited := EvaluateBar(pos, bar, 100, DefaultExecutionModel())
	assert.True(t, exited)
	assert.Equal(t, ExitTakeProfit, reason)
	assert.Equal(t, 110.0, price)
}

func TestEvaluateBar_ShortStopLossWinsOnBothTouched(t *testing.T) {
	pos := PositionLifecycle{Direction: signal.DirectionSell, EntryPrice: 100, StopLoss: 105, TakeProfit: 90}
	bar := mkBar(100, 106, 89, 95, 1000)

	price, reason, exited := EvaluateBar(pos, bar, 100, DefaultExecutionModel())
	assert.True(t, exited)
	assert.Equal(t, ExitStopLoss, reason)
	assert.Equal(t, 105.0, price)
}

func TestEvaluateBar_NoExitWhenNeitherTouched(t *testing.T) {
	pos := PositionLifecycle{Direction: signal.DirectionBuy, EntryPrice: 100, StopLoss: 95, TakeProfit: 110}
	bar := mkBar(100, 105, 98, 102, 1000)

	_, _, exited := EvaluateBar(pos, bar, 100, DefaultExecutionModel())
	assert.False(t, exited)
}

// Literal scenario: long entry at 100, SL=97, TP=106, gap_threshold=0.01,
// gap_penalty=0.002; prior close 97, next bar opens at 87 — a gap well
// past the stop — so the exit is 87 × 0.998 = 86.826 with SL_GAP, not
// the ordinary stop-loss price of 97.
func TestEvaluateBar_GapBelowStopExitsAtPenalizedOpenWithSLGap(t *testing.T) {
	pos := PositionLifecycle{Direction: signal.DirectionBuy, EntryPrice: 100, StopLoss: 97, TakeProfit: 106}
	bar := mkBar(87, 88, 85, 86, 1000)

	price, reason, exited := EvaluateBar(pos, bar, 97, DefaultExecutionModel())
	assert.True(t, exited)
	assert.Equal(t, ExitSLGap, reason)
	assert.InDelta(t, 86.826, price, 1e-9)
}

func TestEvaluateBar_ShortGapAboveStopExitsWithSLGap(t *testing.T) {
	pos := PositionLifecycle{Direction: signal.DirectionSell, EntryPrice: 100, StopLoss: 103, TakeProfit: 94}
	bar := mkBar(113, 114, 112, 113, 1000)

	price, reason, exited := EvaluateBar(pos, bar, 103, DefaultExecutionModel())
	assert.True(t, exited)
	assert.Equal(t, ExitSLGap, reason)
	assert.InDelta(t, 113*1.002, price, 1e-9)
}

func TestEvaluateBar_SmallGapPastStopStillUsesOrdinaryStopLoss(t *testing.T) {
	// Gap below threshold: ordinary SL/TP comparison still applies.
	pos := PositionLifecycle{Direction: signal.DirectionBuy, EntryPrice: 100, StopLoss: 97, TakeProfit: 106}
	bar := mkBar(96.8, 97, 96, 96.5, 1000)

	price, reason, exited := EvaluateBar(pos, bar, 97, DefaultExecutionModel())
	assert.True(t, exited)
	assert.Equal(t, ExitStopLoss, reason)
	assert.Equal(t, 97.0, price)
}

func TestAdjustFill_GapOpenAppliesPartialFillAndPenalty(t *testing.T) {
	m := DefaultExecutionModel()
	bar := mkBar(103, 104, 102, 103.5, 5000)

	fill := m.AdjustFill(bar, 100, signal.DirectionBuy, 103, 10000, 0.02)
	assert.Equal(t, 0.6, fill.FillFrac)
	assert.Greater(t, fill.Price, 103.0)
}

func TestAdjustFill_NoGapFillsInFull(t *testing.T) {
	m := DefaultExecutionModel()
	bar := mkBar(100, 101, 99, 100.5, 5000)

	fill := m.AdjustFill(bar, 100, signal.DirectionBuy, 100, 10000, 0.02)
	assert.Equal(t, 1.0, fill.FillFrac)
}

func TestApplyBreakevenAndTrailing_MovesStopToEntryAfterBreakevenR(t *testing.T) {
	pos := &PositionLifecycle{Direction: signal.DirectionBuy, EntryPrice: 100, StopLoss: 95, BreakevenAtR: 1.0}
	bar := mkBar(100, 106, 99, 105, 1000)

	ApplyBreakevenAndTrailing(pos, bar, 5)
	assert.Equal(t, 100.0, pos.StopLoss)
}

func TestApplyBreakevenAndTrailing_NeverLoosensStop(t *testing.T) {
	pos := &PositionLifecycle{Direction: signal.DirectionBuy, EntryPrice: 100, StopLoss: 99, TrailingStopPct: 0.05}
	bar := mkBar(100, 101, 99.5, 100, 1000)

	ApplyBreakevenAndTrailing(pos, bar, 5)
	assert.Equal(t, 99.0, pos.StopLoss)
}

func TestUpdateExcursion_TracksWorstAndBestMoves(t *testing.T) {
	pos := &PositionLifecycle{Direction: signal.DirectionBuy, EntryPrice: 100}
	UpdateExcursion(pos, mkBar(100, 103, 97, 101, 1000))
	assert.InDelta(t, 0.03, pos.MAE, 1e-9)
	assert.InDelta(t, 0.03, pos.MFE, 1e-9)

	UpdateExcursion(pos, mkBar(101, 101.5, 99, 100, 1000))
	assert.InDelta(t, 0.03, pos.MAE, 1e-9)
	assert.InDelta(t, 0.03, pos.MFE, 1e-9)
}
