package types

import "time"

// IndicatorValue 单个指标值。缺失必须显式表达，不允许用 0 顶替，
// 否则 Regime/Signal 的 fail-safe 分支永远不会触发。
type IndicatorValue struct {
	Value float64
	OK    bool
}

// Indicators 指标名 -> 指标值。
type Indicators map[string]IndicatorValue

// Get 返回指标值；缺失时 ok=false。
func (m Indicators) Get(name string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[name]
	if !ok || !v.OK {
		return 0, false
	}
	return v.Value, true
}

// ContractRules 合约静态规则（数量精度 / 最大杠杆 / 仅逐仓）。
type ContractRules struct {
	Symbol       string
	SizeDecimals int
	MaxLeverage  float64
	OnlyIsolated bool
}

// OrderBookInfo 盘口微观结构快照。Present=false 表示本周期没拿到盘口，
// 下游按 soft-stop 处理而不是按零深度处理。
type OrderBookInfo struct {
	Present       bool
	BestBid       float64
	BestAsk       float64
	MidPrice      float64
	SpreadBps     float64
	BidDepthValue float64
	AskDepthValue float64
	Imbalance     float64 // (bid-ask)/(bid+ask)，约 [-1, 1]
	Timestamp     int64
}

// Depth 买卖盘深度之和。
func (o OrderBookInfo) Depth() float64 { return o.BidDepthValue + o.AskDepthValue }

// AccountMetrics 账户层输入：风控 Guard 与 Sizing 共用。
type AccountMetrics struct {
	Equity          float64
	AvailableMargin float64
	PositionSize    float64 // 正=多，负=空，0=空仓
	AvgEntryPrice   float64
	Leverage        float64
	DailyPnL        float64 // 当日已实现+未实现损益（负数为回撤）
	ConsecutiveSLs  int     // 连续止损次数
}

// DailyDrawdownPct 当日回撤占权益比例（>=0）。
func (a AccountMetrics) DailyDrawdownPct() float64 {
	if a.Equity <= 0 || a.DailyPnL >= 0 {
		return 0
	}
	return -a.DailyPnL / a.Equity
}

// TradeContext 单周期只读快照。构建完成后不再修改，
// 所有下游组件读到同一份值；周期结束随状态更新一起丢弃。
type TradeContext struct {
	Symbol  string
	CycleID string
	Now     time.Time

	Account   AccountMetrics
	Rules     ContractRules
	MarkPrice float64
	MidPrice  float64
	Funding   float64
	OpenInt   float64
	OrderBook OrderBookInfo

	Indicators Indicators

	// 上游分类结果（Regime 分类器的输入，不是原始指标）
	BaseRegime MarketRegime
	ADX        IndicatorValue
	VolState   VolState
	Timing     TimingState
}

// PersistedState 跨周期唯一的可变状态。周期开始时读、周期结束时写一次，
// 中途任何组件都不得修改。
type PersistedState struct {
	Symbol        string
	PrevBase      MarketRegime
	PrevSize      float64
	StopPrice     float64 // 最近一次下发的止损价，作为移动止损的棘轮基准；0 表示无
	LastTradeAt   time.Time
	CooldownUntil time.Time
	ReduceOnly    bool // 由上一轮 STOP_ALL 置位，直到仓位归零才清
	UpdatedAt     time.Time
}

// InCooldown 判断 now 是否仍处于冷却期。
func (s PersistedState) InCooldown(now time.Time) bool {
	return !s.CooldownUntil.IsZero() && now.Before(s.CooldownUntil)
}
