package signal

import (
	"fmt"
	"math"

	"petrel/internal/market"
	"petrel/internal/types"
)

// 15m 触发层调参。
const (
	breakoutWindow     = 20
	strictBreakoutPad  = 0.20 // × ATR
	normalBreakoutPad  = 0.05
	strictPullbackBand = 0.25
	normalPullbackBand = 0.35
	emaTangleGapK      = 0.20  // strict 下 ema20/ema50 间距低于 0.20×ATR 视为纠缠
	minBreakoutNATR    = 0.005 // strict 下低波动不追突破
)

// TriggerResult 15m 入场触发结果。EntryPriceHint 在突破触发时是突破位，
// 回调触发时是当前收盘。
type TriggerResult struct {
	EntryOK        bool
	EntryPriceHint float64
	Strength       float64
	IsBreakout     bool
	Reasons        []string
}

func rejected(reasons []string, why string) TriggerResult {
	return TriggerResult{Reasons: append(reasons, why)}
}

// ComputeTrigger 15m 触发器，负责"现在能不能上车"。
//
// 两类形态：
//   - Pullback（优先）：靠近 EMA20 + 动作确认（reclaim/reject，可选反转K线）
//   - Breakout（其次）：收盘确认突破前 N 根 HH/LL（不含当前K）+ 事件触发（跨越）
//
// strict_entry 下回调要求 reclaim AND 反转K线，突破 pad 更大，另加
// EMA 纠缠与低波动两道过滤。
func ComputeTrigger(f *market.Frame, dir DirectionResult, regime types.RegimeDecision) TriggerResult {
	var reasons []string

	if dir.Side == types.SideNone {
		return rejected(reasons, "no direction -> no trigger")
	}
	if f == nil || f.Len() < 3 {
		return rejected(reasons, "15m: insufficient bars (<3)")
	}

	bar, _ := f.LastCandle()
	prevClose, okPrev := lastClose(f, 1)
	ema20, ok1 := f.Last(market.ColEMA20, 0)
	ema50, ok2 := f.Last(market.ColEMA50, 0)
	atr, ok3 := f.Last(market.ColATR14, 0)
	if !okPrev || !ok1 || !ok2 || !ok3 {
		return rejected(reasons, "15m: indicators not warmed up")
	}
	if atr <= 0 {
		return rejected(reasons, "15m: atr invalid (<=0)")
	}

	strict := regime.StrictEntry
	breakoutPad := normalBreakoutPad * atr
	pullbackBand := normalPullbackBand * atr
	if strict {
		breakoutPad = strictBreakoutPad * atr
		pullbackBand = strictPullbackBand * atr
	}

	isGreen := bar.Close > bar.Open
	isRed := bar.Close < bar.Open
	nearEMA20 := math.Abs(bar.Close-ema20) <= pullbackBand

	res := TriggerResult{}

	// A) 回调触发：位置 + 动作确认 + 收盘不站错边
	switch {
	case dir.Side == types.SideLong && ema20 >= ema50:
		reclaim := bar.Low <= ema20 && bar.Close >= ema20
		actionOK := reclaim || isGreen
		if strict {
			actionOK = reclaim && isGreen
		}
		if nearEMA20 && bar.Close >= ema20 && actionOK {
			res.EntryOK = true
			res.EntryPriceHint = bar.Close
			res.Strength = 0.58
			if strict {
				res.Strength = 0.62
			}
			reasons = append(reasons, "15m: pullback confirmed long", "15m: near ema20")
			if reclaim {
				reasons = append(reasons, "15m: reclaim (low<=ema20 & close>=ema20)")
			}
			if isGreen {
				reasons = append(reasons, "15m: green candle")
			}
		}
	case dir.Side == types.SideShort && ema20 <= ema50:
		reject := bar.High >= ema20 && bar.Close <= ema20
		actionOK := reject || isRed
		if strict {
			actionOK = reject && isRed
		}
		if nearEMA20 && bar.Close <= ema20 && actionOK {
			res.EntryOK = true
			res.EntryPriceHint = bar.Close
			res.Strength = 0.58
			if strict {
				res.Strength = 0.62
			}
			reasons = append(reasons, "15m: pullback confirmed short", "15m: near ema20")
			if reject {
				reasons = append(reasons, "15m: reject (high>=ema20 & close<=ema20)")
			}
			if isRed {
				reasons = append(reasons, "15m: red candle")
			}
		}
	}

	// B) 突破触发：前 N 根 HH/LL（不含当前K）± pad，收盘确认且是事件（跨越）
	if !res.EntryOK {
		winLen := breakoutWindow
		if avail := f.Len() - 1; avail < winLen {
			winLen = avail
		}
		hh, okHH := f.HighestHigh(winLen)
		ll, okLL := f.LowestLow(winLen)
		switch {
		case dir.Side == types.SideLong && ema20 >= ema50 && okHH:
			upLevel := hh + breakoutPad
			if prevClose < upLevel && bar.Close >= upLevel {
				res.EntryOK = true
				res.IsBreakout = true
				res.EntryPriceHint = upLevel
				res.Strength = 0.60
				if strict {
					res.Strength = 0.65
				}
				reasons = append(reasons, fmt.Sprintf("15m: breakout close-confirmed above %d-bar hh + pad (long)", winLen))
			}
		case dir.Side == types.SideShort && ema20 <= ema50 && okLL:
			dnLevel := ll - breakoutPad
			if prevClose > dnLevel && bar.Close <= dnLevel {
				res.EntryOK = true
				res.IsBreakout = true
				res.EntryPriceHint = dnLevel
				res.Strength = 0.60
				if strict {
					res.Strength = 0.65
				}
				reasons = append(reasons, fmt.Sprintf("15m: breakdown close-confirmed below %d-bar ll - pad (short)", winLen))
			}
		}
	}

	// strict 过滤：EMA 纠缠不做；死鱼盘不追突破
	if res.EntryOK && strict {
		if math.Abs(ema20-ema50) < emaTangleGapK*atr {
			return rejected(reasons, "strict: ema20/ema50 too tight -> reject")
		}
		if res.IsBreakout && bar.Close > 0 && atr/bar.Close < minBreakoutNATR {
			return rejected(reasons, "strict: volatility too low for breakout -> reject")
		}
	}

	res.Reasons = reasons
	return res
}
