package types

import "fmt"

// RegimeDecision 体制分类结果：本周期允许哪些策略族、风险缩放多少。
// 每周期重新生成，不跨周期持久化。
type RegimeDecision struct {
	AllowNewEntry bool
	AllowTrend    bool
	AllowMeanRev  bool
	StrictEntry   bool
	RiskScale     float64 // [0,1]
	CooldownScale float64 // [0,1] 归一化后的冷却放大系数
	Regime        MarketRegime
	Reasons       []string
}

// AccountGuardResult 账户风控否决。只是建议输出，真正的覆盖由 Planner 执行。
type AccountGuardResult struct {
	Override Override
	Reasons  []string
}

// SignalSnapshot 信号引擎输出。entry/add/reverse 标志只有结合
// PositionState 才有语义（FLAT 时 AddOK 无意义）。
type SignalSnapshot struct {
	Direction      Side
	EntryOK        bool
	AddOK          bool
	ReverseEntryOK bool

	ThesisInvalidated bool // 开仓依据已不成立
	TrendExhausted    bool // 动能衰竭超过阈值

	EntryPriceHint float64
	StopPrice      float64
	Score          float64
	TTLSeconds     int
	Reasons        []string
}

// PlannedAction 一个计划动作及其被授权的许可层级。
type PlannedAction struct {
	Kind      ActionKind
	Tier      Tier
	Side      Side
	CancelAll bool // STOP_ALL 专用：连带撤掉所有挂单
	Reasons   []string
}

// SizingResult 仓位测算结果。Rejected=true 时 Quantity 必为 0，
// 对应动作由 Planner 降级为 NONE，绝不偷换成别的动作。
type SizingResult struct {
	Quantity     float64
	Notional     float64
	RiskBudget   float64
	StopDistance float64
	Rejected     bool
	Reason       string

	// 订单构造层的提示，核心不关心订单机制
	OrderTypeHint string  // "MARKET" / "LIMIT"
	TakeProfit    float64 // 按 RR 推算的止盈参考价
}

// InvariantViolationError 计划层结构性不变量被破坏（例如同周期同时出现
// ENTER 和 EXIT）。这类错误对本周期是致命的：放弃计划、不产生任何新风险
// 动作，并且必须与普通"无交易"结果可区分。
type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("planner invariant violated: %s", e.Detail)
}
