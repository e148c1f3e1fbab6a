// Package execution 订单落地层。核心只产出计划动作和数量，
// 订单机制（类型、TTL、切单）都在这一层收口。
package execution

import (
	"context"

	"petrel/internal/types"
)

// Order 一条待提交的订单指令。
type Order struct {
	Symbol     string
	Kind       types.ActionKind
	Side       types.Side
	Quantity   float64
	Price      float64 // 0 表示市价
	StopPrice  float64
	TakeProfit float64
	ReduceOnly bool
	TypeHint   string // "MARKET" / "LIMIT"
}

// Fill 确认成交回报，State Update 只消费确认后的仓位增量。
type Fill struct {
	Symbol   string
	Side     types.Side
	Quantity float64
	Price    float64
	Closed   bool    // 是否是平仓腿
	PnL      float64 // 平仓腿的已实现盈亏
}

// OrderSink 接收订单指令的执行通道。
type OrderSink interface {
	Submit(ctx context.Context, order Order) (*Fill, error)
	MoveStop(ctx context.Context, symbol string, stopPrice float64) error
	CancelAll(ctx context.Context, symbol string) error
}

// AccountSource 提供账户口径输入。
type AccountSource interface {
	Metrics(ctx context.Context, symbol string) (types.AccountMetrics, error)
}
