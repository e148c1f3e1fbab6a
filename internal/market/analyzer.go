package market

import (
	"math"
	"sort"

	"petrel/internal/types"
)

// 体制迟滞阈值：进 TREND 要 ADX>=26，退出要 <23；进 RANGE 要 <=17，退出要 >19。
// 迟滞的目的是防止 ADX 在边界附近抖动导致体制反复切换。
const (
	adxTrendEnter = 26.0
	adxTrendExit  = 23.0
	adxRangeEnter = 17.0
	adxRangeExit  = 19.0

	volWindow   = 200
	slopeWindow = 200
	slopeEpsK   = 0.2
)

// ClassifyTrendRange 判断市场体制（带迟滞）。ADX 缺失或有效样本不足时
// 返回 UNKNOWN，由 Regime 分类器 fail-safe。
func ClassifyTrendRange(f *Frame, prev types.MarketRegime) (types.MarketRegime, types.IndicatorValue) {
	if f == nil {
		return types.RegimeUnknown, types.IndicatorValue{}
	}
	if _, ok := f.Tail(ColADX14, 50); !ok {
		return types.RegimeUnknown, types.IndicatorValue{}
	}
	adx, ok := f.Last(ColADX14, 0)
	if !ok {
		return types.RegimeUnknown, types.IndicatorValue{}
	}
	val := types.IndicatorValue{Value: adx, OK: true}

	switch prev {
	case types.RegimeTrend:
		if adx < adxTrendExit {
			return types.RegimeMixed, val
		}
		return types.RegimeTrend, val
	case types.RegimeRange:
		if adx > adxRangeExit {
			return types.RegimeMixed, val
		}
		return types.RegimeRange, val
	}

	if adx >= adxTrendEnter {
		return types.RegimeTrend, val
	}
	if adx <= adxRangeEnter {
		return types.RegimeRange, val
	}
	return types.RegimeMixed, val
}

// ClassifyVolState 用 NATR 与 BBWidth 两个独立波动视角做一致性判定：
// 两者一致取共识，冲突时保守地视为 NORMAL。样本不足返回 UNKNOWN。
func ClassifyVolState(f *Frame) types.VolState {
	if f == nil {
		return types.VolUnknown
	}
	natr, okN := f.Tail(ColNATR14, volWindow)
	bbw, okB := f.Tail(ColBBWidth, volWindow)
	if !okN || !okB {
		return types.VolUnknown
	}
	nState := quantileState(natr)
	bState := quantileState(bbw)
	if nState == bState {
		return nState
	}
	return types.VolNormal
}

func quantileState(window []float64) types.VolState {
	cur := window[len(window)-1]
	p20 := quantile(window, 0.2)
	p80 := quantile(window, 0.8)
	switch {
	case cur <= p20:
		return types.VolLow
	case cur >= p80:
		return types.VolHigh
	default:
		return types.VolNormal
	}
}

// quantile 线性插值分位数，与 pandas 默认口径一致。
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ClassifyTimingState 判断 ADX / BBW 斜率方向。阈值取窗口标准差的 k 倍，
// 斜率绝对值小于阈值视为 FLAT。
func ClassifyTimingState(f *Frame) types.TimingState {
	return types.TimingState{
		ADXSlope: slopeState(f, ColADXSlope),
		BBWSlope: slopeState(f, ColBBWSlope),
	}
}

func slopeState(f *Frame, col string) types.SlopeState {
	if f == nil {
		return types.SlopeState{State: types.SlopeUnknown}
	}
	window, ok := f.Tail(col, slopeWindow)
	if !ok {
		return types.SlopeState{State: types.SlopeUnknown}
	}
	cur := window[len(window)-1]
	std := stddev(window)
	eps := 0.0
	if std > 0 {
		eps = std * slopeEpsK
	}
	st := types.SlopeFlat
	if cur > eps {
		st = types.SlopeUp
	} else if cur < -eps {
		st = types.SlopeDown
	}
	return types.SlopeState{State: st, Cur: cur, Eps: eps, Known: true}
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
