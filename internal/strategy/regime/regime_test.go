package regime

import (
	"testing"

	"petrel/internal/types"

	"github.com/stretchr/testify/assert"
)

func healthyBook() types.OrderBookInfo {
	return types.OrderBookInfo{
		Present:       true,
		SpreadBps:     0.5,
		BidDepthValue: 400_000,
		AskDepthValue: 400_000,
		Imbalance:     0.1,
	}
}

func trendInputs() Inputs {
	return Inputs{
		Base: types.RegimeTrend,
		ADX:  types.IndicatorValue{Value: 30, OK: true},
		Vol:  types.VolNormal,
		Timing: types.TimingState{
			ADXSlope: types.SlopeState{State: types.SlopeUp, Known: true},
			BBWSlope: types.SlopeState{State: types.SlopeFlat, Known: true},
		},
		Book: healthyBook(),
	}
}

func TestClassifyGreenLight(t *testing.T) {
	d := Classify(trendInputs(), DefaultConfig())
	assert.True(t, d.AllowNewEntry)
	assert.True(t, d.AllowTrend)
	assert.False(t, d.AllowMeanRev) // TREND base 不开均值
	assert.Equal(t, 1.0, d.RiskScale)
}

func TestClassifyFailSafe(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Inputs)
	}{
		{"unknown base", func(in *Inputs) { in.Base = types.RegimeUnknown }},
		{"unknown vol", func(in *Inputs) { in.Vol = types.VolUnknown }},
		{"missing adx", func(in *Inputs) { in.ADX = types.IndicatorValue{} }},
		{"spread too wide", func(in *Inputs) { in.Book.SpreadBps = 10 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := trendInputs()
			tc.mutate(&in)
			d := Classify(in, DefaultConfig())
			assert.False(t, d.AllowNewEntry)
			assert.Equal(t, 0.0, d.RiskScale)
			assert.NotEmpty(t, d.Reasons)
		})
	}
}

func TestClassifyHighVolDisablesMeanReversion(t *testing.T) {
	in := trendInputs()
	in.Base = types.RegimeMixed
	in.Vol = types.VolHigh
	d := Classify(in, DefaultConfig())
	assert.False(t, d.AllowMeanRev)
	// high vol + mixed 属于 whipsaw 软阻断
	assert.False(t, d.AllowNewEntry)
	assert.Equal(t, 0.6, d.RiskScale)
}

func TestClassifyLowVolStrictEntry(t *testing.T) {
	in := trendInputs()
	in.Vol = types.VolLow
	d := Classify(in, DefaultConfig())
	assert.True(t, d.StrictEntry)
	assert.InDelta(t, 0.8*0.7, d.RiskScale, 1e-9)

	// 布林带开口扩张时不进入狙击模式
	in.Timing.BBWSlope.State = types.SlopeUp
	d = Classify(in, DefaultConfig())
	assert.False(t, d.StrictEntry)
	assert.Equal(t, 0.8, d.RiskScale)
}

func TestClassifyWeakADXDisablesTrend(t *testing.T) {
	in := trendInputs()
	in.Base = types.RegimeMixed
	in.ADX = types.IndicatorValue{Value: 18, OK: true}
	d := Classify(in, DefaultConfig())
	assert.False(t, d.AllowTrend)
}

func TestClassifyADXSlopeDown(t *testing.T) {
	// 弱趋势 + 斜率下行：趋势出局
	in := trendInputs()
	in.ADX = types.IndicatorValue{Value: 22, OK: true}
	in.Timing.ADXSlope.State = types.SlopeDown
	d := Classify(in, DefaultConfig())
	assert.False(t, d.AllowTrend)

	// 强趋势回调：放行但降仓
	in.ADX = types.IndicatorValue{Value: 30, OK: true}
	d = Classify(in, DefaultConfig())
	assert.True(t, d.AllowTrend)
	assert.InDelta(t, 0.75, d.RiskScale, 1e-9)
}

func TestClassifySoftStopsKeepManagement(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Inputs)
	}{
		{"thin book", func(in *Inputs) { in.Book.BidDepthValue, in.Book.AskDepthValue = 1000, 1000 }},
		{"extreme imbalance", func(in *Inputs) { in.Book.Imbalance = 0.95 }},
		{"missing book", func(in *Inputs) { in.Book = types.OrderBookInfo{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := trendInputs()
			tc.mutate(&in)
			d := Classify(in, DefaultConfig())
			assert.False(t, d.AllowNewEntry)
			// 软阻断不把风险归零：已有仓位仍按缩放管理
			assert.Greater(t, d.RiskScale, 0.0)
		})
	}
}

func TestClassifyScalesNeverExceedOne(t *testing.T) {
	for _, base := range []types.MarketRegime{types.RegimeTrend, types.RegimeRange, types.RegimeMixed} {
		for _, vol := range []types.VolState{types.VolLow, types.VolNormal, types.VolHigh} {
			in := trendInputs()
			in.Base = base
			in.Vol = vol
			d := Classify(in, DefaultConfig())
			assert.LessOrEqual(t, d.RiskScale, 1.0)
			assert.LessOrEqual(t, d.CooldownScale, 1.0)
			assert.GreaterOrEqual(t, d.RiskScale, 0.0)
			assert.GreaterOrEqual(t, d.CooldownScale, 0.0)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	in := trendInputs()
	assert.Equal(t, Classify(in, DefaultConfig()), Classify(in, DefaultConfig()))
}
