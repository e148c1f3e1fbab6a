package market

import (
	talib "github.com/markcheno/go-talib"
)

// 指标列名。下游（Regime/Signal）只通过这些名字取值，
// 取不到就走 fail-safe，绝不把 warmup 期的 0 当成真值。
const (
	ColEMA20    = "ema_20"
	ColEMA50    = "ema_50"
	ColATR14    = "atr_14"
	ColNATR14   = "natr_14"
	ColADX14    = "adx_14"
	ColBBWidth  = "bb_width"
	ColADXSlope = "adx_slope"
	ColBBWSlope = "bbw_slope"
)

type column struct {
	values []float64
	warmup int // 此下标之前的值属于预热期，视为缺失
}

// Frame 一个周期的 K 线序列加全部指标列。构建后只读。
type Frame struct {
	Candles []Candle
	cols    map[string]column
}

// NewFrame 计算指标列。K 线不足时对应列保持"全缺失"，由取值方处理。
func NewFrame(candles []Candle) *Frame {
	f := &Frame{Candles: candles, cols: make(map[string]column)}
	n := len(candles)
	if n == 0 {
		return f
	}
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		high[i], low[i], closes[i] = c.High, c.Low, c.Close
	}

	if n > 20 {
		f.cols[ColEMA20] = column{values: talib.Ema(closes, 20), warmup: 20}
	}
	if n > 50 {
		f.cols[ColEMA50] = column{values: talib.Ema(closes, 50), warmup: 50}
	}
	if n > 14 {
		f.cols[ColATR14] = column{values: talib.Atr(high, low, closes, 14), warmup: 14}
		f.cols[ColNATR14] = column{values: talib.Natr(high, low, closes, 14), warmup: 14}
	}
	if n > 28 {
		// ADX 的有效起点约为 2*period
		f.cols[ColADX14] = column{values: talib.Adx(high, low, closes, 14), warmup: 28}
	}
	if n > 20 {
		upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
		width := make([]float64, n)
		for i := range width {
			if middle[i] != 0 {
				width[i] = (upper[i] - lower[i]) / middle[i]
			}
		}
		f.cols[ColBBWidth] = column{values: width, warmup: 20}
	}
	if adx, ok := f.cols[ColADX14]; ok {
		f.cols[ColADXSlope] = slopeColumn(adx)
	}
	if bbw, ok := f.cols[ColBBWidth]; ok {
		f.cols[ColBBWSlope] = slopeColumn(bbw)
	}
	return f
}

// slopeColumn 先做 5 周期 EMA 平滑再取一阶差分，降低单根噪声。
func slopeColumn(src column) column {
	n := len(src.values)
	warmup := src.warmup + 6
	if n <= warmup {
		return column{values: make([]float64, n), warmup: n}
	}
	smooth := talib.Ema(src.values, 5)
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		out[i] = smooth[i] - smooth[i-1]
	}
	return column{values: out, warmup: warmup}
}

// Len K 线根数。
func (f *Frame) Len() int { return len(f.Candles) }

// Last 取某列倒数第 off+1 个有效值；off=0 为最新。
// 落在预热期或列不存在时 ok=false。
func (f *Frame) Last(name string, off int) (float64, bool) {
	col, ok := f.cols[name]
	if !ok || off < 0 {
		return 0, false
	}
	i := len(col.values) - 1 - off
	if i < col.warmup || i < 0 {
		return 0, false
	}
	return col.values[i], true
}

// Tail 返回某列末尾 window 个有效值；有效样本不足时 ok=false。
func (f *Frame) Tail(name string, window int) ([]float64, bool) {
	col, ok := f.cols[name]
	if !ok || window <= 0 {
		return nil, false
	}
	valid := len(col.values) - col.warmup
	if valid < window {
		return nil, false
	}
	return col.values[len(col.values)-window:], true
}

// LastCandle 最新一根 K 线。
func (f *Frame) LastCandle() (Candle, bool) {
	if len(f.Candles) == 0 {
		return Candle{}, false
	}
	return f.Candles[len(f.Candles)-1], true
}

// HighestHigh / LowestLow 不含当前 K 的前 n 根极值。
func (f *Frame) HighestHigh(n int) (float64, bool) {
	if n <= 0 || len(f.Candles) < 2 {
		return 0, false
	}
	if n > len(f.Candles)-1 {
		n = len(f.Candles) - 1
	}
	window := f.Candles[len(f.Candles)-1-n : len(f.Candles)-1]
	hh := window[0].High
	for _, c := range window[1:] {
		if c.High > hh {
			hh = c.High
		}
	}
	return hh, true
}

func (f *Frame) LowestLow(n int) (float64, bool) {
	if n <= 0 || len(f.Candles) < 2 {
		return 0, false
	}
	if n > len(f.Candles)-1 {
		n = len(f.Candles) - 1
	}
	window := f.Candles[len(f.Candles)-1-n : len(f.Candles)-1]
	ll := window[0].Low
	for _, c := range window[1:] {
		if c.Low < ll {
			ll = c.Low
		}
	}
	return ll, true
}

// SwingLow / SwingHigh 含当前 K 的近 n 根极值（止损锚点用）。
func (f *Frame) SwingLow(n int) (float64, bool) {
	if n <= 0 || len(f.Candles) == 0 {
		return 0, false
	}
	if n > len(f.Candles) {
		n = len(f.Candles)
	}
	window := f.Candles[len(f.Candles)-n:]
	low := window[0].Low
	for _, c := range window[1:] {
		if c.Low < low {
			low = c.Low
		}
	}
	return low, true
}

func (f *Frame) SwingHigh(n int) (float64, bool) {
	if n <= 0 || len(f.Candles) == 0 {
		return 0, false
	}
	if n > len(f.Candles) {
		n = len(f.Candles)
	}
	window := f.Candles[len(f.Candles)-n:]
	high := window[0].High
	for _, c := range window[1:] {
		if c.High > high {
			high = c.High
		}
	}
	return high, true
}
