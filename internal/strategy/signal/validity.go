package signal

import (
	"math"

	"petrel/internal/market"
	"petrel/internal/types"
)

// 有效性/风险层调参。
const (
	swingWindow      = 10
	entryATRStrict   = 1.25 // strict 下初始止损距离（× ATR）
	entryATRNormal   = 1.55
	trailATRStrict   = 1.10 // 持仓移动止损距离（× ATR）
	trailATRNormal   = 1.35
	structPadK       = 0.25 // 结构止损相对突破位/EMA20 的让距
	swingPadK        = 0.10 // 摆动止损让距
	exhaustPadK      = 0.05 // 动能衰竭判定让距
	flipPadK         = 0.15 // 反手突破判定让距
	driftWindowBars  = 3
	flatDriftK       = 0.35 // 空仓入场：5m 逆向漂移超过 0.35×ATR5 扣质量分
	heldDriftK       = 0.40
	strictQualityMin = 0.45
)

// HeldPosition 持仓输入。Size 为 0 表示空仓；OldStop 为 0 表示没有
// 历史止损可做棘轮。
type HeldPosition struct {
	Side    types.Side
	Size    float64
	OldStop float64
}

func (p HeldPosition) held() bool {
	return p.Side != types.SideNone && p.Size != 0
}

// ValidityResult 有效性层输出。空仓路径只产出候选止损与质量分；
// 持仓路径额外产出三个管理标志。
type ValidityResult struct {
	StopPrice         float64
	ThesisInvalidated bool // 开仓结构已反转，或价格已击穿止损
	TrendExhausted    bool // 跌破/突破近期摆动，动能衰竭
	ReverseEntryOK    bool // 反向入场条件同时成立（强于单纯离场）
	Quality           float64
	Reasons           []string
}

// ComputeValidity 计算止损位与持仓管理标志。
//
// 空仓：入场参考价取触发提示价，止损取 ATR 止损与结构止损中离价格更近
// 的一个（多头取 max，空头取 min），5m 逆向漂移扣质量分。
//
// 持仓：移动止损在 EMA20 让距与收盘回撤距离里取更紧的一个，再与旧止损
// 做棘轮（多头只上移、空头只下移）。结构反转或击穿止损置
// ThesisInvalidated，跌破近期摆动置 TrendExhausted，反向突破事件在此
// 基础上再置 ReverseEntryOK。
func ComputeValidity(f15, f5 *market.Frame, dir DirectionResult, trg TriggerResult, regime types.RegimeDecision, pos HeldPosition) ValidityResult {
	var reasons []string

	if f15 == nil || f15.Len() < 30 {
		return ValidityResult{Reasons: []string{"15m: insufficient bars"}}
	}
	close15, _ := lastClose(f15, 0)
	ema20, ok1 := f15.Last(market.ColEMA20, 0)
	ema50, ok2 := f15.Last(market.ColEMA50, 0)
	atr, ok3 := f15.Last(market.ColATR14, 0)
	if !ok1 || !ok2 || !ok3 {
		return ValidityResult{Reasons: []string{"15m: indicators not warmed up"}}
	}
	if atr <= 0 {
		return ValidityResult{Reasons: []string{"15m: atr invalid (<=0)"}}
	}

	strict := regime.StrictEntry

	if !pos.held() {
		return flatValidity(f15, f5, dir, trg, strict, close15, ema20, atr, reasons)
	}

	// ---- 持仓管理 ----
	kTrail := trailATRNormal
	if strict {
		kTrail = trailATRStrict
	}
	trailDist := kTrail * atr

	var stop float64
	if pos.Side == types.SideLong {
		stop = math.Max(ema20-structPadK*atr, close15-trailDist)
		if pos.OldStop > 0 {
			stop = math.Max(pos.OldStop, stop) // 棘轮：只上移
		}
	} else {
		stop = math.Min(ema20+structPadK*atr, close15+trailDist)
		if pos.OldStop > 0 {
			stop = math.Min(pos.OldStop, stop) // 棘轮：只下移
		}
	}

	var thesisGone, exhausted bool
	swingLo, okLo := f15.SwingLow(swingWindow)
	swingHi, okHi := f15.SwingHigh(swingWindow)

	if pos.Side == types.SideLong {
		if okLo && close15 < swingLo-exhaustPadK*atr {
			exhausted = true
			reasons = append(reasons, "held: close below recent swing low -> trend exhausted")
		}
		if ema20 < ema50 {
			thesisGone = true
			reasons = append(reasons, "held: ema20<ema50 -> long thesis invalidated")
		}
		if close15 <= stop {
			thesisGone = true
			reasons = append(reasons, "held: close through stop -> long thesis invalidated")
		}
	} else {
		if okHi && close15 > swingHi+exhaustPadK*atr {
			exhausted = true
			reasons = append(reasons, "held: close above recent swing high -> trend exhausted")
		}
		if ema20 > ema50 {
			thesisGone = true
			reasons = append(reasons, "held: ema20>ema50 -> short thesis invalidated")
		}
		if close15 >= stop {
			thesisGone = true
			reasons = append(reasons, "held: close through stop -> short thesis invalidated")
		}
	}

	// 反手：离场条件成立 + 结构已反转 + 当根收盘确认反向突破（事件触发）
	reverseOK := false
	if (strict || regime.AllowNewEntry) && (thesisGone || exhausted) && f15.Len() >= 3 {
		winLen := breakoutWindow
		if avail := f15.Len() - 1; avail < winLen {
			winLen = avail
		}
		hh, okHH := f15.HighestHigh(winLen)
		ll, okLL := f15.LowestLow(winLen)
		prevClose, okPrev := lastClose(f15, 1)
		pad := flipPadK * atr
		if okPrev {
			if pos.Side == types.SideLong && okLL && ema20 <= ema50 &&
				prevClose > ll-pad && close15 <= ll-pad {
				reverseOK = true
				reasons = append(reasons, "held: breakdown confirmed -> reverse short eligible")
			}
			if pos.Side == types.SideShort && okHH && ema20 >= ema50 &&
				prevClose < hh+pad && close15 >= hh+pad {
				reverseOK = true
				reasons = append(reasons, "held: breakout confirmed -> reverse long eligible")
			}
		}
	}

	quality := 0.65
	quality -= driftPenalty(f5, pos.Side, heldDriftK, 0.20)

	return ValidityResult{
		StopPrice:         stop,
		ThesisInvalidated: thesisGone,
		TrendExhausted:    exhausted,
		ReverseEntryOK:    reverseOK,
		Quality:           clamp01(quality),
		Reasons:           reasons,
	}
}

func flatValidity(f15, f5 *market.Frame, dir DirectionResult, trg TriggerResult, strict bool, close15, ema20, atr float64, reasons []string) ValidityResult {
	if !trg.EntryOK {
		return ValidityResult{Reasons: append(reasons, "flat: no entry -> skip validity")}
	}
	if dir.Side == types.SideNone {
		return ValidityResult{Reasons: append(reasons, "flat: no direction")}
	}

	entryRef := trg.EntryPriceHint
	if entryRef == 0 {
		entryRef = close15
	}
	kATR := entryATRNormal
	if strict {
		kATR = entryATRStrict
	}
	atrDist := kATR * atr

	swingLo, _ := f15.SwingLow(swingWindow)
	swingHi, _ := f15.SwingHigh(swingWindow)

	var stop float64
	if dir.Side == types.SideLong {
		atrSL := entryRef - atrDist
		var structSL float64
		if trg.IsBreakout {
			structSL = math.Max(entryRef-structPadK*atr, ema20-structPadK*atr)
		} else {
			structSL = swingLo - swingPadK*atr
		}
		stop = math.Max(atrSL, structSL)
	} else {
		atrSL := entryRef + atrDist
		var structSL float64
		if trg.IsBreakout {
			structSL = math.Min(entryRef+structPadK*atr, ema20+structPadK*atr)
		} else {
			structSL = swingHi + swingPadK*atr
		}
		stop = math.Min(atrSL, structSL)
	}

	quality := 0.70
	quality -= driftPenalty(f5, dir.Side, flatDriftK, 0.30)
	if strict && quality < strictQualityMin {
		reasons = append(reasons, "strict: quality too low -> veto entry")
	}

	return ValidityResult{
		StopPrice: stop,
		Quality:   clamp01(quality),
		Reasons:   reasons,
	}
}

// driftPenalty 5m 近三根逆向漂移超过 k×ATR5 时返回给定罚分，否则 0。
func driftPenalty(f5 *market.Frame, side types.Side, k, penalty float64) float64 {
	if f5 == nil || f5.Len() < 6 {
		return 0
	}
	last, ok1 := lastClose(f5, 0)
	first, ok2 := lastClose(f5, driftWindowBars-1)
	atr5, ok3 := f5.Last(market.ColATR14, 0)
	if !ok1 || !ok2 || !ok3 || atr5 <= 0 {
		return 0
	}
	drift := last - first
	if side == types.SideLong && drift < -k*atr5 {
		return penalty
	}
	if side == types.SideShort && drift > k*atr5 {
		return penalty
	}
	return 0
}
