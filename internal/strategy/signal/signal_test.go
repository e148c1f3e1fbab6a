package signal

import (
	"testing"

	"petrel/internal/market"
	"petrel/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// genFrame 用给定收盘价序列造一个 Frame，每根 K 线带一点高低波动，
// 保证 ATR 非零。
func genFrame(closes []float64) *market.Frame {
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		hi, lo := open, c
		if hi < c {
			hi = c
		}
		if lo > open {
			lo = open
		}
		candles[i] = market.Candle{
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i+1)*60_000 - 1,
			Open:      open,
			High:      hi + 0.05,
			Low:       lo - 0.05,
			Close:     c,
			Volume:    1,
		}
	}
	return market.NewFrame(candles)
}

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func falling(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start - step*float64(i)
	}
	return out
}

func flat(n int, level float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = level
	}
	return out
}

func permissiveRegime() types.RegimeDecision {
	return types.RegimeDecision{
		AllowNewEntry: true,
		AllowTrend:    true,
		RiskScale:     1,
	}
}

func TestComputeDirectionRisingTrendIsLong(t *testing.T) {
	f := genFrame(rising(120, 100, 0.5))
	d := ComputeDirection(f, permissiveRegime())
	assert.Equal(t, types.SideLong, d.Side)
	assert.Greater(t, d.Confidence, 0.4)
}

func TestComputeDirectionFallingTrendIsShort(t *testing.T) {
	f := genFrame(falling(120, 200, 0.5))
	d := ComputeDirection(f, permissiveRegime())
	assert.Equal(t, types.SideShort, d.Side)
	assert.Greater(t, d.Confidence, 0.4)
}

func TestComputeDirectionInsufficientBars(t *testing.T) {
	d := ComputeDirection(genFrame([]float64{100}), permissiveRegime())
	assert.Equal(t, types.SideNone, d.Side)
	assert.Zero(t, d.Confidence)
}

func TestComputeDirectionRegimeGateOnlyDampens(t *testing.T) {
	f := genFrame(rising(120, 100, 0.5))
	open := ComputeDirection(f, permissiveRegime())

	gated := permissiveRegime()
	gated.AllowTrend = false
	damped := ComputeDirection(f, gated)

	// 门控降权但不翻方向
	assert.Equal(t, open.Side, damped.Side)
	assert.Less(t, damped.Confidence, open.Confidence)
}

func TestComputeTriggerNoDirectionNoTrigger(t *testing.T) {
	f := genFrame(rising(120, 100, 0.5))
	trg := ComputeTrigger(f, DirectionResult{Side: types.SideNone}, permissiveRegime())
	assert.False(t, trg.EntryOK)
	assert.Contains(t, trg.Reasons, "no direction -> no trigger")
}

func TestComputeTriggerBreakoutLong(t *testing.T) {
	// 横盘后一根放量突破：上一根没站上 HH+pad，当前收盘站上
	closes := append(flat(100, 100), 105)
	f := genFrame(closes)
	dir := DirectionResult{Side: types.SideLong, Confidence: 0.6}

	trg := ComputeTrigger(f, dir, permissiveRegime())
	require.True(t, trg.EntryOK)
	assert.True(t, trg.IsBreakout)
	assert.Greater(t, trg.EntryPriceHint, 100.0)
	assert.InDelta(t, 0.60, trg.Strength, 1e-9)
}

func TestComputeTriggerStrictLowVolRejectsBreakout(t *testing.T) {
	// 同样的突破形态，strict 下 atr/close 低于 0.5% 拒绝
	closes := append(flat(400, 1000), 1004)
	f := genFrame(closes)
	dir := DirectionResult{Side: types.SideLong, Confidence: 0.6}
	strict := permissiveRegime()
	strict.StrictEntry = true

	trg := ComputeTrigger(f, dir, strict)
	assert.False(t, trg.EntryOK)
}

func TestComputeValidityFlatNoEntry(t *testing.T) {
	f := genFrame(rising(120, 100, 0.5))
	val := ComputeValidity(f, nil, DirectionResult{Side: types.SideLong}, TriggerResult{}, permissiveRegime(), HeldPosition{})
	assert.Zero(t, val.StopPrice)
	assert.Contains(t, val.Reasons, "flat: no entry -> skip validity")
}

func TestComputeValidityFlatLongStopBelowEntry(t *testing.T) {
	f := genFrame(rising(120, 100, 0.5))
	trg := TriggerResult{EntryOK: true, EntryPriceHint: 160}
	val := ComputeValidity(f, nil, DirectionResult{Side: types.SideLong}, trg, permissiveRegime(), HeldPosition{})
	require.NotZero(t, val.StopPrice)
	assert.Less(t, val.StopPrice, 160.0)
	assert.False(t, val.ThesisInvalidated)
	assert.False(t, val.TrendExhausted)
}

func TestComputeValidityHeldLongStopRatchetsUp(t *testing.T) {
	f := genFrame(rising(120, 100, 0.5))
	closeNow := f.Candles[f.Len()-1].Close

	pos := HeldPosition{Side: types.SideLong, Size: 1, OldStop: closeNow + 10}
	val := ComputeValidity(f, nil, DirectionResult{Side: types.SideLong}, TriggerResult{}, permissiveRegime(), pos)

	// 旧止损更高就保留旧止损（棘轮只上移），且价格在止损下方视为论点失效
	assert.Equal(t, pos.OldStop, val.StopPrice)
	assert.True(t, val.ThesisInvalidated)
}

func TestComputeValidityHeldLongInDowntrend(t *testing.T) {
	f := genFrame(falling(120, 200, 0.5))
	pos := HeldPosition{Side: types.SideLong, Size: 1}
	val := ComputeValidity(f, nil, DirectionResult{Side: types.SideShort}, TriggerResult{}, permissiveRegime(), pos)
	assert.True(t, val.ThesisInvalidated)
}

func TestComputeValidityHeldLongReverseOnBreakdown(t *testing.T) {
	// 横盘后跳水：结构反转 + 当根收盘确认跌破 LL-pad
	closes := append(flat(100, 100), 95)
	f := genFrame(closes)
	pos := HeldPosition{Side: types.SideLong, Size: 1}
	val := ComputeValidity(f, nil, DirectionResult{Side: types.SideShort}, TriggerResult{}, permissiveRegime(), pos)
	assert.True(t, val.ThesisInvalidated)
	assert.True(t, val.ReverseEntryOK)
}

func TestScoreWeights(t *testing.T) {
	dir := DirectionResult{Side: types.SideLong, Confidence: 1}
	trg := TriggerResult{EntryOK: true, Strength: 1}
	val := ValidityResult{Quality: 1}

	score, _ := Score(dir, trg, val, permissiveRegime())
	assert.InDelta(t, 100.0, score, 1e-9)

	gated := permissiveRegime()
	gated.AllowTrend = false
	score, reasons := Score(dir, trg, val, gated)
	assert.InDelta(t, 70.0, score, 1e-9)
	assert.Contains(t, reasons, "penalty: trend not allowed")
}

func TestScoreIgnoresTriggerStrengthWithoutEntry(t *testing.T) {
	dir := DirectionResult{Side: types.SideLong, Confidence: 0.5}
	trg := TriggerResult{EntryOK: false, Strength: 1}
	score, _ := Score(dir, trg, ValidityResult{}, permissiveRegime())
	assert.InDelta(t, 20.0, score, 1e-9)
}

func TestBuildFlatEntryRequiresScoreAboveThreshold(t *testing.T) {
	// 横盘不会触发任何入场
	in := Inputs{
		Frame1h:  genFrame(flat(120, 100)),
		Frame15m: genFrame(flat(120, 100)),
		Regime:   permissiveRegime(),
		State:    types.StateFlat,
	}
	snap := Build(in)
	assert.False(t, snap.EntryOK)
	assert.False(t, snap.AddOK)
	assert.False(t, snap.ReverseEntryOK)
}

func TestBuildHeldNeverSetsEntryOK(t *testing.T) {
	in := Inputs{
		Frame1h:  genFrame(rising(120, 100, 0.5)),
		Frame15m: genFrame(append(flat(100, 100), 105)),
		Regime:   permissiveRegime(),
		State:    types.StateLongHolding,
		Position: HeldPosition{Side: types.SideLong, Size: 1},
	}
	snap := Build(in)
	assert.False(t, snap.EntryOK) // 持仓状态下只可能 AddOK
}

func TestBuildTTLFollowsStrictEntry(t *testing.T) {
	in := Inputs{
		Frame1h:  genFrame(flat(120, 100)),
		Frame15m: genFrame(flat(120, 100)),
		Regime:   permissiveRegime(),
		State:    types.StateFlat,
	}
	assert.Equal(t, normalTTLSeconds, Build(in).TTLSeconds)

	in.Regime.StrictEntry = true
	assert.Equal(t, strictTTLSeconds, Build(in).TTLSeconds)
}

func TestBuildDeterministic(t *testing.T) {
	in := Inputs{
		Frame1h:  genFrame(rising(120, 100, 0.5)),
		Frame15m: genFrame(append(flat(100, 100), 105)),
		Frame5m:  genFrame(rising(120, 100, 0.1)),
		Regime:   permissiveRegime(),
		State:    types.StateFlat,
	}
	a := Build(in)
	b := Build(in)
	assert.Equal(t, a, b)
}
