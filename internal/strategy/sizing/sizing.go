// Package sizing 风险法仓位测算：风险预算除以止损距离得出数量，
// 再按精度、杠杆、名义上限逐级收口。纯函数，无隐藏状态。
package sizing

import (
	"fmt"

	"petrel/internal/types"

	"github.com/shopspring/decimal"
)

// Config 测算参数。
type Config struct {
	BaseRiskPct     float64 // 单笔基础风险占权益比例
	MaxNotional     float64 // 名义价值硬上限，0 表示只按杠杆约束
	StrictReduction float64 // strict_entry 下数量缩减系数，(0,1]
	RiskReward      float64 // 止盈 RR 倍数
}

// DefaultConfig 保守默认：单笔 1% 风险，strict 下再打七五折，RR 1.8。
func DefaultConfig() Config {
	return Config{
		BaseRiskPct:     0.01,
		StrictReduction: 0.75,
		RiskReward:      1.8,
	}
}

// Inputs 一次测算的全部输入。EntryRef 是入场参考价（提示价或现价），
// StopPrice 是信号给出的止损价。
type Inputs struct {
	Side      types.Side
	Equity    float64
	RiskScale float64
	Strict    bool
	EntryRef  float64
	StopPrice float64
	Score     float64
	Rules     types.ContractRules
}

func rejected(reason string, budget, dist float64) types.SizingResult {
	return types.SizingResult{
		Rejected:     true,
		Reason:       reason,
		RiskBudget:   budget,
		StopDistance: dist,
	}
}

// Compute 测算数量。拒绝时 Quantity 恒为 0，调用方把对应动作降级为
// NONE，绝不偷换成别的动作。
func Compute(in Inputs, cfg Config) types.SizingResult {
	if in.Equity <= 0 {
		return rejected("invalid equity", 0, 0)
	}
	if in.EntryRef <= 0 {
		return rejected("invalid entry reference price", 0, 0)
	}

	budget := in.Equity * cfg.BaseRiskPct * clampScale(in.RiskScale)

	dist := in.EntryRef - in.StopPrice
	if dist < 0 {
		dist = -dist
	}
	if in.StopPrice <= 0 || dist <= 0 {
		return rejected("invalid stop distance", budget, 0)
	}

	rawQty := budget / dist

	qty := decimal.NewFromFloat(rawQty)
	if in.Strict {
		red := cfg.StrictReduction
		if red <= 0 || red > 1 {
			red = 1
		}
		qty = qty.Mul(decimal.NewFromFloat(red))
	}

	decimals := int32(in.Rules.SizeDecimals)
	entry := decimal.NewFromFloat(in.EntryRef)
	qty = qty.RoundDown(decimals)

	// 杠杆上限：qty*entry <= equity*maxLeverage
	if in.Rules.MaxLeverage > 0 {
		capQty := decimal.NewFromFloat(in.Equity * in.Rules.MaxLeverage).Div(entry)
		if qty.GreaterThan(capQty) {
			qty = capQty.RoundDown(decimals)
		}
	}
	// 名义上限兜底，防止风控参数异常
	if cfg.MaxNotional > 0 {
		capQty := decimal.NewFromFloat(cfg.MaxNotional).Div(entry)
		if qty.GreaterThan(capQty) {
			qty = capQty.RoundDown(decimals)
		}
	}

	if !qty.IsPositive() {
		return rejected("quantity rounds to zero", budget, dist)
	}

	qtyF, _ := qty.Float64()
	notional := qty.Mul(entry)
	notionalF, _ := notional.Float64()

	res := types.SizingResult{
		Quantity:     qtyF,
		Notional:     notionalF,
		RiskBudget:   budget,
		StopDistance: dist,
	}

	// 分数高吃市价，一般挂限价省滑点
	if in.Score >= 90 {
		res.OrderTypeHint = "MARKET"
	} else {
		res.OrderTypeHint = "LIMIT"
	}

	// 止盈按 RR 推算
	if rr := cfg.RiskReward; rr > 0 {
		switch in.Side {
		case types.SideLong:
			res.TakeProfit = in.EntryRef + rr*dist
		case types.SideShort:
			res.TakeProfit = in.EntryRef - rr*dist
		}
	}
	return res
}

func clampScale(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Describe 日志用的一行摘要。
func Describe(r types.SizingResult) string {
	if r.Rejected {
		return fmt.Sprintf("rejected (%s), budget=%.2f", r.Reason, r.RiskBudget)
	}
	return fmt.Sprintf("qty=%v notional=%.2f budget=%.2f stop_dist=%.4f", r.Quantity, r.Notional, r.RiskBudget, r.StopDistance)
}
