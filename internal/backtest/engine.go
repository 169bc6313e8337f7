package backtest

import (
	"github.com/rs/zerolog/log"

	"github.com/quantcandle/signalengine/internal/signal"
)

// EntrySignal is what a strategy emits for a given bar: a direction to
// enter, plus the initial stop/target/trail parameters for the
// resulting position. A nil return means stay flat.
type EntrySignal struct {
	Direction       signal.Direction
	StopLoss        float64
	TakeProfit      float64
	TrailingStopPct float64
	BreakevenAtR    float64
}

// StrategyFunc decides, given the candle history up to and including
// index idx, whether to open a new position. It is only consulted
// while flat — RunCampaign manages one open position at a time, matching
// the smoke90/march_aug runners' single-position-per-symbol model.
type StrategyFunc func(history []signal.Candle, idx int) *EntrySignal

// RunCampaign walks candles restricted to window through one
// strategy, producing a full CampaignResult. Position sizing uses
// RiskPerTradePct of current capital against the stop distance; fills
// are adjusted for slippage and gap-open partial fills via exec; exits
// follow the Conservative Intrabar rule. A position still open at the
// window's last bar is force-closed at that bar's close.
func RunCampaign(params Params, candles []signal.Candle, window Window, strategy StrategyFunc, exec ExecutionModel) (CampaignResult, error) {
	var bars []signal.Candle
	for _, c := range candles {
		if !c.OpenTime.Before(window.Start) && !c.OpenTime.After(window.End) {
			bars = append(bars, c)
		}
	}

	capital := params.InitialCapital
	equityCurve := make([]float64, 0, len(bars))
	var trades []signal.Trade

	var open *PositionLifecycle
	var initialRisk float64
	var prevClose float64

	closePosition := func(bar signal.Candle, exitPrice float64, reason ExitReason) {
		side := open.Direction

		// SL_GAP's exit price already is the gap-penalized open per
		// spec.md's exact formula; running it back through AdjustFill
		// would compound a second slippage/gap adjustment on top of it.
		fill := FillResult{Price: exitPrice, FillFrac: 1.0}
		if reason != ExitSLGap {
			notional := open.EntryPrice * open.Quantity
			fill = exec.AdjustFill(bar, prevClose, oppositeSide(side), exitPrice, notional, atrEstimate(bar))
		}

		var pnl float64
		if side == signal.DirectionBuy {
			pnl = (fill.Price - open.EntryPrice) * open.Quantity * fill.FillFrac
		} else {
			pnl = (open.EntryPrice - fill.Price) * open.Quantity * fill.FillFrac
		}
		capital += pnl

		trades = append(trades, signal.Trade{
			Symbol:     params.Symbol,
			Direction:  side,
			EntryPrice: open.EntryPrice,
			ExitPrice:  fill.Price,
			Quantity:   open.Quantity,
			OpenedAt:   open.OpenedAt,
			ClosedAt:   bar.OpenTime,
			PnLUSD:     pnl,
			ExitReason: string(reason),
			MAE:        open.MAE,
			MFE:        open.MFE,
		})
		open = nil
	}

	for i, bar := range bars {
		if open == nil {
			if sig := strategy(bars[:i+1], i); sig != nil && sig.Direction != signal.DirectionHold {
				riskAmount := capital * params.RiskPerTradePct
				stopDist := sig.StopLoss - bar.Close
				if sig.Direction == signal.DirectionBuy {
					stopDist = bar.Close - sig.StopLoss
				}
				if stopDist <= 0 {
					stopDist = bar.Close * 0.01
				}
				qty := riskAmount / stopDist
				notional := bar.Close * qty
				fill := exec.AdjustFill(bar, prevClose, sig.Direction, bar.Close, notional, atrEstimate(bar))

				open = &PositionLifecycle{
					Direction:       sig.Direction,
					EntryPrice:      fill.Price,
					Quantity:        qty * fill.FillFrac,
					StopLoss:        sig.StopLoss,
					TakeProfit:      sig.TakeProfit,
					TrailingStopPct: sig.TrailingStopPct,
					BreakevenAtR:    sig.BreakevenAtR,
					OpenedAt:        bar.OpenTime,
				}
				initialRisk = stopDist
			}
		} else {
			UpdateExcursion(open, bar)
			ApplyBreakevenAndTrailing(open, bar, initialRisk)

			if exitPrice, reason, exited := EvaluateBar(*open, bar, prevClose, exec); exited {
				if reason == ExitSLGap {
					log.Warn().Str("symbol", params.Symbol).Time("bar", bar.OpenTime).
						Float64("open", bar.Open).Float64("stop", open.StopLoss).
						Msg("gap exit past stop-loss")
				}
				closePosition(bar, exitPrice, reason)
			} else if i == len(bars)-1 {
				closePosition(bar, bar.Close, ExitTimeout)
			}
		}

		markedEquity := capital
		if open != nil {
			markedEquity = capital + unrealizedPnL(*open, bar)
		}
		equityCurve = append(equityCurve, markedEquity)
		prevClose = bar.Close
	}

	id := CampaignID(params, window.Start, window.End)
	result := CampaignResult{
		CampaignID:     id,
		Params:         params,
		Start:          window.Start,
		End:            window.End,
		Trades:         trades,
		EquityCurve:    equityCurve,
		InitialCapital: params.InitialCapital,
		FinalCapital:   capital,
	}
	result.Metrics = Calculate(trades, equityCurve, params.InitialCapital, capital, window.Start, window.End)
	return result, nil
}

func oppositeSide(d signal.Direction) signal.Direction {
	if d == signal.DirectionBuy {
		return signal.DirectionSell
	}
	return signal.DirectionBuy
}

func unrealizedPnL(pos PositionLifecycle, bar signal.Candle) float64 {
	if pos.Direction == signal.DirectionBuy {
		return (bar.Close - pos.EntryPrice) * pos.Quantity
	}
	return (pos.EntryPrice - bar.Close) * pos.Quantity
}

// atrEstimate approximates single-bar volatility as a fraction of
// price from the bar's own range, used where a multi-bar ATR series
// isn't threaded through (callers with a real ATR series should prefer
// it over this fallback).
func atrEstimate(bar signal.Candle) float64 {
	if bar.Close <= 0 {
		return 0.02
	}
	return (bar.High - bar.Low) / bar.Close
}
