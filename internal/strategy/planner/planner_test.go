package planner

import (
	"testing"

	"petrel/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okRegime() types.RegimeDecision {
	return types.RegimeDecision{AllowNewEntry: true, AllowTrend: true, RiskScale: 1}
}

func longSignal() types.SignalSnapshot {
	return types.SignalSnapshot{
		Direction:      types.SideLong,
		EntryOK:        true,
		EntryPriceHint: 100,
		StopPrice:      95,
		Score:          85,
	}
}

func kinds(actions []types.PlannedAction) []types.ActionKind {
	out := make([]types.ActionKind, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Kind)
	}
	return out
}

func TestResolveTierPrecedence(t *testing.T) {
	stopAll := types.AccountGuardResult{Override: types.OverrideStopAll}
	noNew := types.AccountGuardResult{Override: types.OverrideNoNewEntry}
	none := types.AccountGuardResult{Override: types.OverrideNone}

	closed := okRegime()
	closed.AllowNewEntry = false

	assert.Equal(t, types.TierStopAll, ResolveTier(stopAll, okRegime()))
	assert.Equal(t, types.TierStopAll, ResolveTier(stopAll, closed))
	assert.Equal(t, types.TierNoNewEntry, ResolveTier(noNew, okRegime()))
	assert.Equal(t, types.TierNoNewEntry, ResolveTier(none, closed))
	assert.Equal(t, types.TierOK, ResolveTier(none, okRegime()))
}

// STOP_ALL 层级在任何状态与信号组合下都不得出现新风险动作。
func TestStopAllNeverEmitsNewRisk(t *testing.T) {
	states := []types.PositionState{
		types.StateFlat, types.StateLongHolding, types.StateShortHolding,
		types.StateReduceOnly, types.StateCooldown,
	}
	signals := []types.SignalSnapshot{
		{},
		longSignal(),
		{Direction: types.SideShort, EntryOK: true, AddOK: true, ReverseEntryOK: true, ThesisInvalidated: true, TrendExhausted: true, StopPrice: 90},
	}
	for _, st := range states {
		for _, sig := range signals {
			in := Inputs{
				Regime: okRegime(),
				Guard:  types.AccountGuardResult{Override: types.OverrideStopAll},
				State:  st,
				Signal: sig,
			}
			if st == types.StateLongHolding {
				in.HeldSide, in.HeldSize = types.SideLong, 1
			}
			actions, err := Plan(in)
			require.NoError(t, err)
			require.NotEmpty(t, actions)
			for _, a := range actions {
				assert.False(t, a.Kind.NewRisk(), "state=%s kind=%s", st, a.Kind)
				assert.Equal(t, types.TierStopAll, a.Tier)
			}
			assert.True(t, actions[0].CancelAll)
		}
	}
}

func TestStopAllHoldingScenario(t *testing.T) {
	actions, err := Plan(Inputs{
		Regime:   okRegime(),
		Guard:    types.AccountGuardResult{Override: types.OverrideStopAll},
		State:    types.StateLongHolding,
		Signal:   longSignal(),
		HeldSide: types.SideLong,
		HeldSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionExit, actions[0].Kind)
	assert.Equal(t, types.TierStopAll, actions[0].Tier)
	assert.True(t, actions[0].CancelAll)
}

// NO_NEW_ENTRY 层级动作集只能是 {MOVE_SL, REDUCE, EXIT, NONE} 的子集。
func TestNoNewEntryActionSubset(t *testing.T) {
	allowed := map[types.ActionKind]bool{
		types.ActionMoveSL: true,
		types.ActionReduce: true,
		types.ActionExit:   true,
		types.ActionNone:   true,
	}
	signals := []types.SignalSnapshot{
		{},
		longSignal(),
		{ThesisInvalidated: true},
		{TrendExhausted: true, StopPrice: 96},
		{AddOK: true, ReverseEntryOK: true, ThesisInvalidated: true, StopPrice: 97},
	}
	for _, st := range []types.PositionState{types.StateFlat, types.StateLongHolding, types.StateReduceOnly} {
		for _, sig := range signals {
			actions, err := Plan(Inputs{
				Regime:   okRegime(),
				Guard:    types.AccountGuardResult{Override: types.OverrideNoNewEntry},
				State:    st,
				Signal:   sig,
				HeldSide: types.SideLong,
				HeldSize: 1,
			})
			require.NoError(t, err)
			for _, a := range actions {
				assert.True(t, allowed[a.Kind], "state=%s kind=%s", st, a.Kind)
			}
		}
	}
}

// 体制关闭新开仓时，entry_ok 也要被压制。
func TestEntrySuppressedWhenRegimeClosed(t *testing.T) {
	closed := okRegime()
	closed.AllowNewEntry = false

	actions, err := Plan(Inputs{
		Regime: closed,
		Guard:  types.AccountGuardResult{Override: types.OverrideNone},
		State:  types.StateFlat,
		Signal: longSignal(),
	})
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestFlatEntryOK(t *testing.T) {
	actions, err := Plan(Inputs{
		Regime: okRegime(),
		Guard:  types.AccountGuardResult{},
		State:  types.StateFlat,
		Signal: longSignal(),
	})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionEnter, actions[0].Kind)
	assert.Equal(t, types.SideLong, actions[0].Side)
	assert.Equal(t, types.TierOK, actions[0].Tier)
}

// FLIP 必须同时满足 reverse_entry_ok 和 thesis_invalidated，
// 任意一个翻 false，FLIP 就必须消失。
func TestFlipRequiresBothFlags(t *testing.T) {
	base := Inputs{
		Regime:   okRegime(),
		Guard:    types.AccountGuardResult{},
		State:    types.StateLongHolding,
		HeldSide: types.SideLong,
		HeldSize: 1,
		Signal: types.SignalSnapshot{
			ReverseEntryOK:    true,
			ThesisInvalidated: true,
			StopPrice:         95,
		},
	}

	actions, err := Plan(base)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionFlip, actions[0].Kind)
	assert.Equal(t, types.SideShort, actions[0].Side)

	noReverse := base
	noReverse.Signal.ReverseEntryOK = false
	actions, err = Plan(noReverse)
	require.NoError(t, err)
	assert.NotContains(t, kinds(actions), types.ActionFlip)

	noThesis := base
	noThesis.Signal.ThesisInvalidated = false
	actions, err = Plan(noThesis)
	require.NoError(t, err)
	assert.NotContains(t, kinds(actions), types.ActionFlip)
}

// 动能衰竭单独出现走 EXIT，不走 FLIP。
func TestTrendExhaustedAloneExits(t *testing.T) {
	actions, err := Plan(Inputs{
		Regime:   okRegime(),
		Guard:    types.AccountGuardResult{},
		State:    types.StateShortHolding,
		HeldSide: types.SideShort,
		HeldSize: 1,
		Signal:   types.SignalSnapshot{TrendExhausted: true, StopPrice: 105},
	})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionExit, actions[0].Kind)
}

func TestAddOnlyWhenDirectionMatchesHolding(t *testing.T) {
	in := Inputs{
		Regime:   okRegime(),
		Guard:    types.AccountGuardResult{},
		State:    types.StateLongHolding,
		HeldSide: types.SideLong,
		HeldSize: 1,
		Signal:   types.SignalSnapshot{Direction: types.SideLong, AddOK: true},
	}
	actions, err := Plan(in)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionAdd, actions[0].Kind)

	in.Signal.Direction = types.SideShort
	actions, err = Plan(in)
	require.NoError(t, err)
	assert.NotContains(t, kinds(actions), types.ActionAdd)
}

func TestMoveStopOnlyImproves(t *testing.T) {
	in := Inputs{
		Regime:   okRegime(),
		Guard:    types.AccountGuardResult{},
		State:    types.StateLongHolding,
		HeldSide: types.SideLong,
		HeldSize: 1,
		OldStop:  95,
		Signal:   types.SignalSnapshot{StopPrice: 97},
	}
	actions, err := Plan(in)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionMoveSL, actions[0].Kind)

	// 新止损更差就不动
	in.Signal.StopPrice = 94
	actions, err = Plan(in)
	require.NoError(t, err)
	assert.Empty(t, actions)

	// 空头方向相反
	short := in
	short.State = types.StateShortHolding
	short.HeldSide = types.SideShort
	short.OldStop = 105
	short.Signal.StopPrice = 103
	actions, err = Plan(short)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionMoveSL, actions[0].Kind)
}

func TestReduceOnlyStateWorksPositionDown(t *testing.T) {
	actions, err := Plan(Inputs{
		Regime:   okRegime(),
		Guard:    types.AccountGuardResult{},
		State:    types.StateReduceOnly,
		HeldSide: types.SideLong,
		HeldSize: 1,
		Signal:   types.SignalSnapshot{},
	})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionReduce, actions[0].Kind)
}

// 持仓期间冷却生效时，加仓信号必须被压制，仓位管理动作照常。
func TestCooldownSuppressesAddWhileHolding(t *testing.T) {
	in := Inputs{
		Regime:         okRegime(),
		Guard:          types.AccountGuardResult{},
		State:          types.StateLongHolding,
		HeldSide:       types.SideLong,
		HeldSize:       1,
		CooldownActive: true,
		Signal:         types.SignalSnapshot{Direction: types.SideLong, AddOK: true},
	}
	actions, err := Plan(in)
	require.NoError(t, err)
	assert.NotContains(t, kinds(actions), types.ActionAdd)

	// 冷却结束后同一信号恢复加仓
	in.CooldownActive = false
	actions, err = Plan(in)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionAdd, actions[0].Kind)
}

// 冷却期内反手降级为离场：论点失效仍要出场，但不开反向新仓。
func TestCooldownDegradesFlipToExit(t *testing.T) {
	in := Inputs{
		Regime:         okRegime(),
		Guard:          types.AccountGuardResult{},
		State:          types.StateLongHolding,
		HeldSide:       types.SideLong,
		HeldSize:       1,
		CooldownActive: true,
		Signal: types.SignalSnapshot{
			ReverseEntryOK:    true,
			ThesisInvalidated: true,
			StopPrice:         95,
		},
	}
	actions, err := Plan(in)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionExit, actions[0].Kind)
	assert.NotContains(t, kinds(actions), types.ActionFlip)
}

// 冷却不影响止损改良：MOVE_SL 属于仓位管理，不算新风险。
func TestCooldownStillAllowsMoveStop(t *testing.T) {
	actions, err := Plan(Inputs{
		Regime:         okRegime(),
		Guard:          types.AccountGuardResult{},
		State:          types.StateLongHolding,
		HeldSide:       types.SideLong,
		HeldSize:       1,
		OldStop:        95,
		CooldownActive: true,
		Signal:         types.SignalSnapshot{StopPrice: 97},
	})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionMoveSL, actions[0].Kind)
}

func TestCooldownFlatDoesNothing(t *testing.T) {
	actions, err := Plan(Inputs{
		Regime: okRegime(),
		Guard:  types.AccountGuardResult{},
		State:  types.StateCooldown,
		Signal: longSignal(),
	})
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestValidateRejectsContradictoryPlan(t *testing.T) {
	err := validate(types.TierOK, []types.PlannedAction{
		{Kind: types.ActionEnter},
		{Kind: types.ActionExit},
	})
	var inv *types.InvariantViolationError
	require.ErrorAs(t, err, &inv)

	err = validate(types.TierStopAll, []types.PlannedAction{{Kind: types.ActionEnter}})
	require.ErrorAs(t, err, &inv)

	err = validate(types.TierNoNewEntry, []types.PlannedAction{{Kind: types.ActionAdd}})
	require.ErrorAs(t, err, &inv)
}

func TestPlanDeterministic(t *testing.T) {
	in := Inputs{
		Regime:   okRegime(),
		Guard:    types.AccountGuardResult{},
		State:    types.StateLongHolding,
		HeldSide: types.SideLong,
		HeldSize: 1,
		Signal:   types.SignalSnapshot{ReverseEntryOK: true, ThesisInvalidated: true, StopPrice: 95},
	}
	a, err1 := Plan(in)
	b, err2 := Plan(in)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, a, b)
}
