package signal

import (
	"fmt"

	"petrel/internal/market"
	"petrel/internal/types"
)

// 1h 方向层调参。先写死，后续要调再挪进 config。
const (
	minSlopePct    = 0.0002 // 0.02%/bar，过滤走平假趋势
	extLimit       = 0.02   // 乖离 2% 开始视为追高/追低
	extHard        = 0.035  // 乖离 3.5% 施加最大惩罚
	extPenaltyMax  = 0.15
	slopePenalty   = 0.12
	adxStrongLevel = 25.0
	adxWeakLevel   = 18.0
)

// DirectionResult 1h 方向偏置。confidence 属于 [0,1]。
type DirectionResult struct {
	Side       types.Side
	Confidence float64
	Reasons    []string
}

// ComputeDirection 1h 方向层（偏置，不是入场）。
// 结构由 ema20 vs ema50 决定；价格位置分 Momentum / Pullback / Breakdown
// 三段定级；再按 ADX 强弱、EMA20 斜率、乖离率和体制门控修正。
// 目标是宽容地保持方向偏置：回调区不丢方向，走平/追高/环境不允许时降权。
func ComputeDirection(f *market.Frame, regime types.RegimeDecision) DirectionResult {
	var reasons []string

	if f == nil || f.Len() < 2 {
		return DirectionResult{Side: types.SideNone, Reasons: []string{"1h: insufficient bars (<2)"}}
	}
	close0, ok1 := lastClose(f, 0)
	ema20, ok2 := f.Last(market.ColEMA20, 0)
	ema50, ok3 := f.Last(market.ColEMA50, 0)
	adx, ok4 := f.Last(market.ColADX14, 0)
	ema20Prev, ok5 := f.Last(market.ColEMA20, 1)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return DirectionResult{Side: types.SideNone, Reasons: []string{"1h: indicators not warmed up"}}
	}

	slopePct := 0.0
	if ema20Prev != 0 {
		slopePct = (ema20 - ema20Prev) / ema20Prev
	}
	ext := 0.0
	if ema20 != 0 {
		ext = (close0 - ema20) / ema20 // 正数表示在 ema20 上方
	}

	side := types.SideNone
	conf := 0.0

	switch {
	case ema20 > ema50: // 多头结构
		side = types.SideLong
		switch {
		case close0 > ema20: // Momentum
			conf = 0.60
			reasons = append(reasons, "1h: bull momentum (close>ema20)")
			if slopePct >= minSlopePct {
				conf += 0.05
				reasons = append(reasons, fmt.Sprintf("1h: slope up (+) %.3f%%", slopePct*100))
			} else {
				conf -= slopePenalty
				reasons = append(reasons, fmt.Sprintf("1h: slope too flat (-) %.3f%%", slopePct*100))
			}
			if ext > extLimit {
				pen := extensionPenalty(ext)
				conf -= pen
				reasons = append(reasons, fmt.Sprintf("1h: extension high (+%.2f%%) -> -%.2f", ext*100, pen))
			}
		case close0 > ema50: // Pullback
			conf = 0.48
			reasons = append(reasons, "1h: bull pullback (ema50<close<=ema20)")
			if slopePct < -minSlopePct {
				conf -= 0.10
				reasons = append(reasons, fmt.Sprintf("1h: pullback but slope turning down (%.3f%%)", slopePct*100))
			}
		default: // Breakdown：不立刻归零，给低置信度等确认
			side = types.SideNone
			conf = 0.15
			reasons = append(reasons, "1h: below ema50 -> possible bull breakdown (wait confirm)")
		}

	case ema20 < ema50: // 空头结构
		side = types.SideShort
		switch {
		case close0 < ema20:
			conf = 0.60
			reasons = append(reasons, "1h: bear momentum (close<ema20)")
			if slopePct <= -minSlopePct {
				conf += 0.05
				reasons = append(reasons, fmt.Sprintf("1h: slope down (+) %.3f%%", slopePct*100))
			} else {
				conf -= slopePenalty
				reasons = append(reasons, fmt.Sprintf("1h: slope too flat (-) %.3f%%", slopePct*100))
			}
			if ext < -extLimit {
				pen := extensionPenalty(-ext)
				conf -= pen
				reasons = append(reasons, fmt.Sprintf("1h: extension high (%.2f%%) -> -%.2f", ext*100, pen))
			}
		case close0 < ema50:
			conf = 0.48
			reasons = append(reasons, "1h: bear pullback (ema50>close>=ema20)")
			if slopePct > minSlopePct {
				conf -= 0.10
				reasons = append(reasons, fmt.Sprintf("1h: pullback but slope turning up (%.3f%%)", slopePct*100))
			}
		default:
			side = types.SideNone
			conf = 0.15
			reasons = append(reasons, "1h: above ema50 -> possible bear breakdown (wait confirm)")
		}

	default:
		side = types.SideNone
		conf = 0.25
		reasons = append(reasons, "1h: emas tangled -> no clear bias")
	}

	// ADX 强弱按数值加减权，不依赖体制分类字段
	if side != types.SideNone {
		if adx >= adxStrongLevel {
			conf += 0.15
			reasons = append(reasons, fmt.Sprintf("1h: adx strong (+) %.1f", adx))
		} else if adx <= adxWeakLevel {
			conf -= 0.10
			reasons = append(reasons, fmt.Sprintf("1h: adx weak (-) %.1f", adx))
		}
	}

	// 体制门控只降权，不封杀
	if side != types.SideNone && !regime.AllowTrend {
		conf *= 0.60
		reasons = append(reasons, "regime: trend not allowed -> confidence *0.60")
	}

	conf = clamp01(conf)
	if side == types.SideNone && conf > 0.40 {
		conf = 0.40
	}
	return DirectionResult{Side: side, Confidence: conf, Reasons: reasons}
}

// extensionPenalty ext 超出 extLimit 后线性爬升到 extPenaltyMax。
func extensionPenalty(ext float64) float64 {
	t := (ext - extLimit) / (extHard - extLimit)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return extPenaltyMax * t
}

func lastClose(f *market.Frame, off int) (float64, bool) {
	n := f.Len()
	idx := n - 1 - off
	if idx < 0 {
		return 0, false
	}
	return f.Candles[idx].Close, true
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
