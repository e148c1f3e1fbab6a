package types

// Side 表示信号方向。NONE 表示结构上有方向但当前位置/动能不支持入场，选择观望。
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideNone  Side = "NONE"
)

// Opposite 返回相反方向；NONE 的反面仍是 NONE。
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideNone
	}
}

// MarketRegime 市场体制：纯环境标签，不含持仓信息。
type MarketRegime string

const (
	RegimeTrend   MarketRegime = "trend"   // ADX 高位，惯性与共识主导
	RegimeRange   MarketRegime = "range"   // ADX 低位，噪音主导
	RegimeMixed   MarketRegime = "mixed"   // 趋势生灭切换中，假突破高发
	RegimeUnknown MarketRegime = "unknown" // 数据不足，不判断
)

// VolState 波动环境。只用于策略许可与风险缩放，不是方向判断。
type VolState string

const (
	VolLow     VolState = "low"     // 压缩期：假突破多，入场需更严格
	VolNormal  VolState = "normal"  // 正常区间
	VolHigh    VolState = "high"    // 扩张期：禁均值回归，趋势降仓
	VolUnknown VolState = "unknown" // 指标未预热或数据缺失，直接 fail-safe
)

// Slope 平滑斜率序列的当前方向。
type Slope string

const (
	SlopeUp      Slope = "UP"
	SlopeDown    Slope = "DOWN"
	SlopeFlat    Slope = "FLAT"
	SlopeUnknown Slope = "UNKNOWN"
)

// SlopeState 斜率状态快照。
type SlopeState struct {
	State Slope
	Cur   float64
	Eps   float64
	Known bool
}

// TimingState 时机状态：ADX 斜率与布林带宽斜率。
type TimingState struct {
	ADXSlope SlopeState
	BBWSlope SlopeState
}

// Override 账户风控层的否决结果。STOP_ALL > NO_NEW_ENTRY > NONE。
type Override string

const (
	OverrideNone       Override = "NONE"
	OverrideStopAll    Override = "STOP_ALL"     // 清仓 + 撤单，本周期不再做任何事
	OverrideNoNewEntry Override = "NO_NEW_ENTRY" // 禁新开仓/加仓，允许管理已有仓位
)

// PositionState 当前周期的行为状态，由持久化状态 + 仓位符号推导。
type PositionState string

const (
	StateFlat         PositionState = "FLAT"
	StateLongHolding  PositionState = "LONG_HOLDING"
	StateShortHolding PositionState = "SHORT_HOLDING"
	StateReduceOnly   PositionState = "REDUCE_ONLY"
	StateCooldown     PositionState = "COOLDOWN"
)

// Holding 表示该状态下是否持有仓位（含只减仓）。
func (s PositionState) Holding() bool {
	switch s {
	case StateLongHolding, StateShortHolding, StateReduceOnly:
		return true
	default:
		return false
	}
}

// ActionKind 计划动作类型。
type ActionKind string

const (
	ActionEnter  ActionKind = "ENTER"
	ActionAdd    ActionKind = "ADD"
	ActionReduce ActionKind = "REDUCE"
	ActionExit   ActionKind = "EXIT"
	ActionFlip   ActionKind = "FLIP" // 下游拆成 EXIT+ENTER，永远不是原子单
	ActionMoveSL ActionKind = "MOVE_SL"
	ActionNone   ActionKind = "NONE"
)

// NewRisk 表示该动作会增加净风险敞口。
func (k ActionKind) NewRisk() bool {
	switch k {
	case ActionEnter, ActionAdd, ActionFlip:
		return true
	default:
		return false
	}
}

// Tier 动作被授权时所处的许可层级。
type Tier string

const (
	TierStopAll    Tier = "STOP_ALL"
	TierNoNewEntry Tier = "NO_NEW_ENTRY"
	TierOK         Tier = "OK"
)
