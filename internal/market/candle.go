package market

import "time"

// Candle 单根 K 线。
type Candle struct {
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Closed 判断该 K 线在 now 时刻是否已经收盘。
func (c Candle) Closed(now time.Time) bool {
	return c.CloseTime > 0 && now.UnixMilli() >= c.CloseTime
}

// DropUnclosed 去掉序列末尾尚未收盘的 K 线，避免用半成品计算指标。
func DropUnclosed(candles []Candle, now time.Time) []Candle {
	for len(candles) > 0 && !candles[len(candles)-1].Closed(now) {
		candles = candles[:len(candles)-1]
	}
	return candles
}
