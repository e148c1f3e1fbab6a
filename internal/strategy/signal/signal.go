// Package signal 信号引擎：1h 方向、15m 触发、止损与持仓管理标志，
// 最后按 40/40/20 打分汇总成一份 SignalSnapshot。
// 所有子计算都是纯函数，同一份输入永远得到同一份输出。
package signal

import (
	"petrel/internal/market"
	"petrel/internal/types"
)

const (
	strictEntryThreshold = 80.0
	normalEntryThreshold = 70.0
	strictTTLSeconds     = 45
	normalTTLSeconds     = 120
)

// Inputs 一次信号计算需要的全部输入。Frames 缺失的周期置 nil，
// 子计算会按 fail-safe 分支处理。
type Inputs struct {
	Frame1h  *market.Frame
	Frame15m *market.Frame
	Frame5m  *market.Frame
	Regime   types.RegimeDecision
	State    types.PositionState
	Position HeldPosition
}

// Score 打分：Direction(40) + Trigger(40) + Quality(20)，
// 体制不允许趋势时整体打七折。分数只做诊断与门槛过滤，不单独决定动作。
func Score(dir DirectionResult, trg TriggerResult, val ValidityResult, regime types.RegimeDecision) (float64, []string) {
	var reasons []string
	score := 40.0 * dir.Confidence
	reasons = append(reasons, dir.Reasons...)

	if trg.EntryOK {
		score += 40.0 * trg.Strength
	}
	reasons = append(reasons, trg.Reasons...)

	score += 20.0 * val.Quality
	reasons = append(reasons, val.Reasons...)

	if !regime.AllowTrend {
		score *= 0.70
		reasons = append(reasons, "penalty: trend not allowed")
	}
	if regime.StrictEntry {
		reasons = append(reasons, "strict_entry enabled")
	}
	return score, reasons
}

// Build 组装完整信号。入场类标志在这里和仓位状态对齐：
// EntryOK 只在空仓时有效，AddOK 只在同向持仓时有效，
// ReverseEntryOK 只在持仓且反向条件确认时有效。
func Build(in Inputs) types.SignalSnapshot {
	dir := ComputeDirection(in.Frame1h, in.Regime)
	trg := ComputeTrigger(in.Frame15m, dir, in.Regime)
	val := ComputeValidity(in.Frame15m, in.Frame5m, dir, trg, in.Regime, in.Position)

	score, reasons := Score(dir, trg, val, in.Regime)

	threshold := normalEntryThreshold
	ttl := normalTTLSeconds
	if in.Regime.StrictEntry {
		threshold = strictEntryThreshold
		ttl = strictTTLSeconds
	}

	passed := trg.EntryOK && score >= threshold && dir.Side != types.SideNone

	snap := types.SignalSnapshot{
		Direction:         dir.Side,
		ThesisInvalidated: val.ThesisInvalidated,
		TrendExhausted:    val.TrendExhausted,
		EntryPriceHint:    trg.EntryPriceHint,
		StopPrice:         val.StopPrice,
		Score:             score,
		TTLSeconds:        ttl,
		Reasons:           reasons,
	}

	switch {
	case in.State == types.StateFlat:
		snap.EntryOK = passed
	case in.State == types.StateLongHolding || in.State == types.StateShortHolding:
		held := in.Position.Side
		if passed && held == dir.Side && in.Regime.AllowNewEntry && !in.Regime.StrictEntry {
			snap.AddOK = true
		}
		snap.ReverseEntryOK = val.ReverseEntryOK
	}
	return snap
}
