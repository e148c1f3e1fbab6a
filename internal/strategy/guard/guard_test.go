package guard

import (
	"testing"

	"petrel/internal/types"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{
		MaxDailyDrawdownPct: 0.05,
		MaxConsecutiveSLs:   3,
		MinAvailableMargin:  100,
		MaxLeverage:         10,
	}
}

func TestEvaluatePriorityOrder(t *testing.T) {
	cases := []struct {
		name string
		m    types.AccountMetrics
		want types.Override
	}{
		{
			name: "healthy account",
			m:    types.AccountMetrics{Equity: 10000, AvailableMargin: 5000, Leverage: 2},
			want: types.OverrideNone,
		},
		{
			name: "daily drawdown breach",
			m:    types.AccountMetrics{Equity: 10000, DailyPnL: -600, AvailableMargin: 5000, Leverage: 2},
			want: types.OverrideStopAll,
		},
		{
			name: "consecutive stop losses",
			m:    types.AccountMetrics{Equity: 10000, AvailableMargin: 5000, Leverage: 2, ConsecutiveSLs: 3},
			want: types.OverrideStopAll,
		},
		{
			name: "margin floor",
			m:    types.AccountMetrics{Equity: 10000, AvailableMargin: 50, Leverage: 2},
			want: types.OverrideNoNewEntry,
		},
		{
			name: "leverage ceiling",
			m:    types.AccountMetrics{Equity: 10000, AvailableMargin: 5000, Leverage: 12},
			want: types.OverrideNoNewEntry,
		},
		{
			name: "drawdown wins over margin floor",
			m:    types.AccountMetrics{Equity: 10000, DailyPnL: -900, AvailableMargin: 10, Leverage: 20},
			want: types.OverrideStopAll,
		},
		{
			name: "consecutive SL wins over leverage",
			m:    types.AccountMetrics{Equity: 10000, AvailableMargin: 5000, Leverage: 30, ConsecutiveSLs: 5},
			want: types.OverrideStopAll,
		},
		{
			name: "margin floor wins over leverage",
			m:    types.AccountMetrics{Equity: 10000, AvailableMargin: 10, Leverage: 30},
			want: types.OverrideNoNewEntry,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.m, testConfig())
			assert.Equal(t, tc.want, got.Override)
			if tc.want != types.OverrideNone {
				assert.NotEmpty(t, got.Reasons)
			}
		})
	}
}

func TestEvaluateMarginReasonNamesFloor(t *testing.T) {
	got := Evaluate(types.AccountMetrics{Equity: 10000, AvailableMargin: 10, Leverage: 1}, testConfig())
	assert.Equal(t, types.OverrideNoNewEntry, got.Override)
	assert.Contains(t, got.Reasons[0], "available margin")
}

func TestEvaluateDeterministic(t *testing.T) {
	m := types.AccountMetrics{Equity: 10000, DailyPnL: -600, AvailableMargin: 5000}
	a := Evaluate(m, testConfig())
	b := Evaluate(m, testConfig())
	assert.Equal(t, a, b)
}

func TestEvaluateDisabledThresholds(t *testing.T) {
	// 阈值为零表示未配置，对应检查跳过
	m := types.AccountMetrics{Equity: 10000, DailyPnL: -9000, AvailableMargin: 0, Leverage: 99, ConsecutiveSLs: 99}
	got := Evaluate(m, Config{})
	assert.Equal(t, types.OverrideNone, got.Override)
}
