// Package engine 把数据层、策略层、执行层接成每周期一次的决策循环。
package engine

import (
	"fmt"
	"time"

	"petrel/internal/market"
	"petrel/internal/types"
)

// BuildContext 把市场快照、账户口径与上周期基础体制拼装成本周期的
// 只读决策上下文。上下文一旦构建完成就不再修改。
func BuildContext(snap *market.Snapshot, acct types.AccountMetrics, prevBase types.MarketRegime, cycleID string, now time.Time) (types.TradeContext, error) {
	if snap == nil {
		return types.TradeContext{}, fmt.Errorf("engine: 市场快照缺失")
	}
	f1h := snap.Frame(market.Interval1h)
	if f1h == nil {
		return types.TradeContext{}, fmt.Errorf("engine: 缺少 %s 指标帧", market.Interval1h)
	}

	base, adx := market.ClassifyTrendRange(f1h, prevBase)
	tc := types.TradeContext{
		Symbol:     snap.Symbol,
		CycleID:    cycleID,
		Now:        now,
		Account:    acct,
		Rules:      snap.Rules,
		MarkPrice:  snap.MarkPrice,
		MidPrice:   snap.MidPrice,
		Funding:    snap.FundingRate,
		OpenInt:    snap.OpenInterest,
		OrderBook:  snap.Book,
		Indicators: collectIndicators(f1h),
		BaseRegime: base,
		ADX:        adx,
		VolState:   market.ClassifyVolState(f1h),
		Timing:     market.ClassifyTimingState(f1h),
	}
	return tc, nil
}

// collectIndicators 抽取 1h 帧的末值，供决策日志与状态接口展示。
func collectIndicators(f *market.Frame) types.Indicators {
	out := make(types.Indicators)
	for _, name := range []string{
		market.ColEMA20, market.ColEMA50, market.ColATR14,
		market.ColNATR14, market.ColADX14, market.ColBBWidth,
	} {
		v, ok := f.Last(name, 0)
		out[name] = types.IndicatorValue{Value: v, OK: ok}
	}
	return out
}
