// Package planner 动作计划层：把体制、账户风控、仓位状态和信号合成
// 一串有序的计划动作。三层许可严格短路，高层级完全屏蔽低层级。
package planner

import (
	"fmt"

	"petrel/internal/types"
)

// Inputs 计划层输入。HeldSide/HeldSize 来自账户快照，Stop 来自上一轮
// 持久化的止损价（0 表示没有）。
type Inputs struct {
	Regime   types.RegimeDecision
	Guard    types.AccountGuardResult
	State    types.PositionState
	Signal   types.SignalSnapshot
	HeldSide types.Side
	HeldSize float64
	OldStop  float64

	// CooldownActive 冷却未到期（含持仓期间触发的冷却）。
	// 置位时压制所有新风险动作，仓位管理（EXIT/REDUCE/MOVE_SL）不受影响。
	CooldownActive bool
}

// ResolveTier 许可层级裁决。STOP_ALL > NO_NEW_ENTRY > OK；
// 体制不许新开仓时并入 NO_NEW_ENTRY 层级。
func ResolveTier(guard types.AccountGuardResult, regime types.RegimeDecision) types.Tier {
	switch guard.Override {
	case types.OverrideStopAll:
		return types.TierStopAll
	case types.OverrideNoNewEntry:
		return types.TierNoNewEntry
	}
	if !regime.AllowNewEntry {
		return types.TierNoNewEntry
	}
	return types.TierOK
}

// Plan 生成本周期的动作序列。返回的序列有序且不自相矛盾；
// 内部校验失败时返回 *types.InvariantViolationError，本周期视为致命，
// 不产出任何动作。
func Plan(in Inputs) ([]types.PlannedAction, error) {
	tier := ResolveTier(in.Guard, in.Regime)

	var actions []types.PlannedAction
	switch tier {
	case types.TierStopAll:
		actions = planStopAll(in)
	case types.TierNoNewEntry:
		actions = planManagementOnly(in, tier)
	default:
		actions = planOpen(in)
	}

	if err := validate(tier, actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// planStopAll 只平仓 + 撤掉全部挂单，别的什么都不做。
func planStopAll(in Inputs) []types.PlannedAction {
	reasons := append([]string{}, in.Guard.Reasons...)
	if in.State.Holding() || in.State == types.StateReduceOnly {
		return []types.PlannedAction{{
			Kind:      types.ActionExit,
			Tier:      types.TierStopAll,
			Side:      in.HeldSide,
			CancelAll: true,
			Reasons:   append(reasons, "stop_all: flatten position"),
		}}
	}
	return []types.PlannedAction{{
		Kind:      types.ActionNone,
		Tier:      types.TierStopAll,
		CancelAll: true,
		Reasons:   append(reasons, "stop_all: no position, cancel working orders"),
	}}
}

// planManagementOnly NO_NEW_ENTRY 层级：只允许 MOVE_SL / REDUCE / EXIT，
// 且必须有信号或风险规则背书。
func planManagementOnly(in Inputs, tier types.Tier) []types.PlannedAction {
	if !in.State.Holding() && in.State != types.StateReduceOnly {
		return nil
	}

	if in.Signal.ThesisInvalidated || in.Signal.TrendExhausted {
		return []types.PlannedAction{{
			Kind:    types.ActionExit,
			Tier:    tier,
			Side:    in.HeldSide,
			Reasons: exitReasons(in.Signal),
		}}
	}

	// REDUCE_ONLY 状态没有离场信号时逐步减仓
	if in.State == types.StateReduceOnly {
		return []types.PlannedAction{{
			Kind:    types.ActionReduce,
			Tier:    tier,
			Side:    in.HeldSide,
			Reasons: []string{"reduce_only: work position down"},
		}}
	}

	if mv, ok := moveStop(in, tier); ok {
		return []types.PlannedAction{mv}
	}
	return nil
}

// planOpen OK 层级：完整动作空间。
func planOpen(in Inputs) []types.PlannedAction {
	tier := types.TierOK
	sig := in.Signal

	switch {
	case in.State == types.StateFlat:
		if sig.EntryOK && sig.Direction != types.SideNone {
			return []types.PlannedAction{{
				Kind:    types.ActionEnter,
				Tier:    tier,
				Side:    sig.Direction,
				Reasons: sig.Reasons,
			}}
		}
		return nil

	case in.State == types.StateCooldown:
		// 冷却期空仓，什么都不做
		return nil

	case in.State == types.StateReduceOnly:
		return planManagementOnly(in, tier)
	}

	// 持仓：反手 > 离场 > 加仓/移止损。
	// 冷却期内反手降级为离场，加仓直接压制。
	if sig.ReverseEntryOK && sig.ThesisInvalidated && !in.CooldownActive {
		return []types.PlannedAction{{
			Kind:    types.ActionFlip,
			Tier:    tier,
			Side:    in.HeldSide.Opposite(),
			Reasons: append(exitReasons(sig), "flip: reverse entry confirmed"),
		}}
	}
	if sig.ThesisInvalidated || sig.TrendExhausted {
		return []types.PlannedAction{{
			Kind:    types.ActionExit,
			Tier:    tier,
			Side:    in.HeldSide,
			Reasons: exitReasons(sig),
		}}
	}
	if sig.AddOK && sig.Direction == in.HeldSide && !in.CooldownActive {
		return []types.PlannedAction{{
			Kind:    types.ActionAdd,
			Tier:    tier,
			Side:    in.HeldSide,
			Reasons: sig.Reasons,
		}}
	}
	if mv, ok := moveStop(in, tier); ok {
		return []types.PlannedAction{mv}
	}
	return nil
}

// moveStop 止损只朝有利方向移动，原地不动不下指令。
func moveStop(in Inputs, tier types.Tier) (types.PlannedAction, bool) {
	newStop := in.Signal.StopPrice
	if newStop <= 0 {
		return types.PlannedAction{}, false
	}
	improved := in.OldStop == 0 ||
		(in.HeldSide == types.SideLong && newStop > in.OldStop) ||
		(in.HeldSide == types.SideShort && newStop < in.OldStop)
	if !improved {
		return types.PlannedAction{}, false
	}
	return types.PlannedAction{
		Kind:    types.ActionMoveSL,
		Tier:    tier,
		Side:    in.HeldSide,
		Reasons: []string{fmt.Sprintf("trail stop -> %.6f", newStop)},
	}, true
}

func exitReasons(sig types.SignalSnapshot) []string {
	var out []string
	if sig.ThesisInvalidated {
		out = append(out, "exit: original thesis invalidated")
	}
	if sig.TrendExhausted {
		out = append(out, "exit: trend exhausted")
	}
	return out
}

// validate 结构性不变量；失败视为本周期致命错误。
func validate(tier types.Tier, actions []types.PlannedAction) error {
	newRisk := 0
	hasExit := false
	for _, a := range actions {
		if a.Kind.NewRisk() {
			newRisk++
		}
		if a.Kind == types.ActionExit {
			hasExit = true
		}
		if tier == types.TierStopAll && a.Kind != types.ActionExit && a.Kind != types.ActionNone {
			return &types.InvariantViolationError{
				Detail: fmt.Sprintf("stop_all tier emitted %s", a.Kind),
			}
		}
		if tier == types.TierNoNewEntry {
			switch a.Kind {
			case types.ActionMoveSL, types.ActionReduce, types.ActionExit, types.ActionNone:
			default:
				return &types.InvariantViolationError{
					Detail: fmt.Sprintf("no_new_entry tier emitted %s", a.Kind),
				}
			}
		}
	}
	if newRisk > 1 {
		return &types.InvariantViolationError{Detail: "multiple new-risk actions in one cycle"}
	}
	if newRisk > 0 && hasExit {
		return &types.InvariantViolationError{Detail: "new-risk action alongside exit"}
	}
	return nil
}
