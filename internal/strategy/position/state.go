// Package position 从持久化状态与当前仓位符号推导本周期的行为状态。
// 转移表是全覆盖的：任何 (持久化状态, 仓位, 时间) 三元组都映射到
// 且仅映射到一个状态，不存在 "unknown"。
package position

import (
	"time"

	"petrel/internal/types"
)

// Derive 推导当前 PositionState。
//
// 规则（自上而下，先命中先生效）：
//   - 仓位非零且 ReduceOnly 置位      -> REDUCE_ONLY（上一轮 STOP_ALL 的延续）
//   - 仓位 > 0                        -> LONG_HOLDING
//   - 仓位 < 0                        -> SHORT_HOLDING
//   - 空仓且 now < cooldown_until     -> COOLDOWN
//   - 其余                            -> FLAT
//
// COOLDOWN 只对空仓生效：持仓状态下冷却的语义由 Planner 的
// ENTER/ADD/FLIP 抑制承担，行为状态仍然反映持仓事实。
func Derive(persisted types.PersistedState, positionSize float64, now time.Time) types.PositionState {
	if positionSize != 0 {
		if persisted.ReduceOnly {
			return types.StateReduceOnly
		}
		if positionSize > 0 {
			return types.StateLongHolding
		}
		return types.StateShortHolding
	}
	if persisted.InCooldown(now) {
		return types.StateCooldown
	}
	return types.StateFlat
}

// SuppressesNewRisk 该状态是否无条件压制 ENTER/ADD/FLIP。
func SuppressesNewRisk(s types.PositionState, persisted types.PersistedState, now time.Time) bool {
	if s == types.StateCooldown || s == types.StateReduceOnly {
		return true
	}
	// 持仓期间冷却未到期同样压制加仓/反手
	return persisted.InCooldown(now)
}
