// Package guard 实现账户级风控否决：按固定优先级检查账户指标，
// 输出 STOP_ALL / NO_NEW_ENTRY / NONE。本包只给建议，真正的覆盖由
// Planner 按层级执行。
package guard

import (
	"fmt"

	"petrel/internal/types"
)

// Config 风控阈值。
type Config struct {
	MaxDailyDrawdownPct float64 // 当日回撤上限，超过即 STOP_ALL
	MaxConsecutiveSLs   int     // 连续止损上限，达到即 STOP_ALL
	MinAvailableMargin  float64 // 可用保证金下限，低于禁新开仓
	MaxLeverage         float64 // 账户杠杆上限，高于禁新开仓
}

// Evaluate 按固定优先级逐条检查，first match wins：
//  1. 当日回撤 >= 上限          -> STOP_ALL
//  2. 连续止损次数 >= 上限      -> STOP_ALL
//  3. 可用保证金 < 下限         -> NO_NEW_ENTRY
//  4. 当前杠杆 > 上限           -> NO_NEW_ENTRY
//
// 纯函数，无副作用。
func Evaluate(m types.AccountMetrics, cfg Config) types.AccountGuardResult {
	if cfg.MaxDailyDrawdownPct > 0 {
		if dd := m.DailyDrawdownPct(); dd >= cfg.MaxDailyDrawdownPct {
			return types.AccountGuardResult{
				Override: types.OverrideStopAll,
				Reasons:  []string{fmt.Sprintf("daily drawdown %.2f%% >= limit %.2f%%", dd*100, cfg.MaxDailyDrawdownPct*100)},
			}
		}
	}
	if cfg.MaxConsecutiveSLs > 0 && m.ConsecutiveSLs >= cfg.MaxConsecutiveSLs {
		return types.AccountGuardResult{
			Override: types.OverrideStopAll,
			Reasons:  []string{fmt.Sprintf("consecutive stop-losses %d >= limit %d", m.ConsecutiveSLs, cfg.MaxConsecutiveSLs)},
		}
	}
	if cfg.MinAvailableMargin > 0 && m.AvailableMargin < cfg.MinAvailableMargin {
		return types.AccountGuardResult{
			Override: types.OverrideNoNewEntry,
			Reasons:  []string{fmt.Sprintf("available margin %.2f below floor %.2f", m.AvailableMargin, cfg.MinAvailableMargin)},
		}
	}
	if cfg.MaxLeverage > 0 && m.Leverage > cfg.MaxLeverage {
		return types.AccountGuardResult{
			Override: types.OverrideNoNewEntry,
			Reasons:  []string{fmt.Sprintf("leverage %.2fx above ceiling %.2fx", m.Leverage, cfg.MaxLeverage)},
		}
	}
	return types.AccountGuardResult{Override: types.OverrideNone}
}
