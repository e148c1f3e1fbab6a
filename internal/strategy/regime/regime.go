// Package regime 把预计算的环境分类（体制/波动/时机）映射为本周期的
// 交易许可与风险缩放。纯函数：相同输入永远得到相同输出，不读仓位、
// 不读账户、无副作用。
package regime

import (
	"fmt"

	"petrel/internal/types"
)

// Config 体制判定阈值。
type Config struct {
	MaxSpreadBps   float64 // 点差硬上限（bps），超过直接禁新开仓
	MinDepth       float64 // 盘口深度软下限（USD）
	ImbalanceLimit float64 // 盘口不平衡软上限（绝对值）
	ADXTrendFloor  float64 // ADX 低于此值禁趋势
	ADXStrongLevel float64 // ADX 高于此值视为强趋势，允许斜率回调
}

// DefaultConfig 与原有参数对齐的缺省值。
func DefaultConfig() Config {
	return Config{
		MaxSpreadBps:   2.0,
		MinDepth:       200_000,
		ImbalanceLimit: 0.8,
		ADXTrendFloor:  20,
		ADXStrongLevel: 25,
	}
}

// Inputs 分类器输入：全部是上游算好的分类结果，不是原始指标序列。
type Inputs struct {
	Base   types.MarketRegime
	ADX    types.IndicatorValue
	Vol    types.VolState
	Timing types.TimingState
	Book   types.OrderBookInfo
}

// failSafe 数据不足时的最保守决策：禁新开仓、风险归零、冷却拉满。
func failSafe(base types.MarketRegime, reasons []string) types.RegimeDecision {
	return types.RegimeDecision{
		AllowNewEntry: false,
		AllowTrend:    false,
		AllowMeanRev:  false,
		RiskScale:     0,
		CooldownScale: 1,
		Regime:        base,
		Reasons:       reasons,
	}
}

// Classify 决定交易体制。
//
// 判定分四步：
//  1. 硬阻断：体制/波动 unknown、ADX 缺失、点差过宽 -> fail-safe
//  2. 策略裁剪：高波动禁均值，低波动狙击模式（strict entry），
//     ADX 过弱禁趋势，ADX 斜率下行时弱趋势出局、强趋势放行
//  3. 软阻断：盘口薄、极端不平衡、盘口缺失 -> 禁新开仓但保留管理权限
//  4. 风险缩放：波动状态定基准，动能衰减与狙击模式再打折
func Classify(in Inputs, cfg Config) types.RegimeDecision {
	// ---- 1) hard stop ----
	var hard []string
	if in.Base == types.RegimeUnknown || in.Vol == types.VolUnknown {
		hard = append(hard, "regime or vol state unknown")
	}
	if !in.ADX.OK {
		hard = append(hard, "ADX missing")
	}
	if in.Book.Present && cfg.MaxSpreadBps > 0 && in.Book.SpreadBps > cfg.MaxSpreadBps {
		hard = append(hard, fmt.Sprintf("spread too wide (%.2fbps)", in.Book.SpreadBps))
	}
	if len(hard) > 0 {
		return failSafe(in.Base, hard)
	}

	adx := in.ADX.Value
	allowTrend := in.Base == types.RegimeTrend || in.Base == types.RegimeMixed
	allowMean := in.Base == types.RegimeRange || in.Base == types.RegimeMixed
	strictEntry := false
	var reasons []string

	// ---- 2) strategy gates ----
	switch in.Vol {
	case types.VolHigh:
		if allowMean {
			allowMean = false
			reasons = append(reasons, "gate: high vol disables mean reversion")
		}
	case types.VolLow:
		if in.Timing.BBWSlope.State != types.SlopeUp {
			strictEntry = true
			reasons = append(reasons, "gate: low vol -> strict entry (no expansion)")
		} else {
			reasons = append(reasons, "gate: low vol but bbw expanding -> ok")
		}
	}

	if adx < cfg.ADXTrendFloor && allowTrend {
		allowTrend = false
		reasons = append(reasons, fmt.Sprintf("gate: adx too weak (%.1f<%.0f)", adx, cfg.ADXTrendFloor))
	}

	if in.Timing.ADXSlope.State == types.SlopeDown && allowTrend && adx <= cfg.ADXStrongLevel {
		// 强趋势回调放行，弱势下跌视为趋势结束
		allowTrend = false
		reasons = append(reasons, fmt.Sprintf("gate: adx fading (%.1f) & slope down", adx))
	}

	if in.Timing.BBWSlope.State == types.SlopeUp && allowMean &&
		(in.Base == types.RegimeRange || in.Base == types.RegimeMixed) {
		allowMean = false
		reasons = append(reasons, "gate: bbw expanding disables mean reversion")
	}

	// ---- 3) soft stop ----
	var soft []string
	if in.Book.Present {
		if depth := in.Book.Depth(); depth > 0 && depth < cfg.MinDepth {
			soft = append(soft, fmt.Sprintf("order book thin (depth=%.0f)", depth))
		}
		if cfg.ImbalanceLimit > 0 && abs(in.Book.Imbalance) > cfg.ImbalanceLimit {
			soft = append(soft, fmt.Sprintf("extreme imbalance (%.2f)", in.Book.Imbalance))
		}
	} else {
		soft = append(soft, "order book missing")
	}
	if in.Vol == types.VolHigh && (in.Base == types.RegimeRange || in.Base == types.RegimeMixed) {
		soft = append(soft, "high vol + range: whipsaw risk")
	}

	// ---- 4) risk scaling ----
	var riskScale, cooldownScale float64
	switch in.Vol {
	case types.VolHigh:
		riskScale, cooldownScale = 0.6, 1.0
	case types.VolLow:
		riskScale, cooldownScale = 0.8, 0.75
	default:
		riskScale, cooldownScale = 1.0, 0.5
	}
	if in.Timing.ADXSlope.State == types.SlopeDown && allowTrend && adx > cfg.ADXStrongLevel {
		riskScale *= 0.75
		reasons = append(reasons, "risk: trend momentum fading -> scale *0.75")
	}
	if in.Vol == types.VolLow && strictEntry {
		riskScale *= 0.7
		reasons = append(reasons, "risk: sniper mode -> scale *0.7")
	}
	riskScale = clamp01(riskScale)
	cooldownScale = clamp01(cooldownScale)

	if len(soft) > 0 {
		return types.RegimeDecision{
			AllowNewEntry: false,
			AllowTrend:    allowTrend,
			AllowMeanRev:  allowMean,
			StrictEntry:   strictEntry,
			RiskScale:     riskScale,
			CooldownScale: cooldownScale,
			Regime:        in.Base,
			Reasons:       append(soft, reasons...),
		}
	}
	if !allowTrend && !allowMean {
		if len(reasons) == 0 {
			reasons = []string{"logic gap: no strategy fits"}
		}
		return types.RegimeDecision{
			AllowNewEntry: false,
			AllowTrend:    false,
			AllowMeanRev:  false,
			RiskScale:     riskScale,
			CooldownScale: cooldownScale,
			Regime:        in.Base,
			Reasons:       reasons,
		}
	}

	return types.RegimeDecision{
		AllowNewEntry: true,
		AllowTrend:    allowTrend,
		AllowMeanRev:  allowMean,
		StrictEntry:   strictEntry,
		RiskScale:     riskScale,
		CooldownScale: cooldownScale,
		Regime:        in.Base,
		Reasons:       append(reasons, fmt.Sprintf("ok: regime=%s", in.Base)),
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
