package market

import (
	"context"
	"time"

	"petrel/internal/types"
)

// 核心只消费这三个周期：1h 定方向，15m 定触发，5m 做质量确认。
const (
	Interval1h  = "1h"
	Interval15m = "15m"
	Interval5m  = "5m"
)

// Snapshot 数据层产出的一次完整市场快照。取不到的部分必须显式缺失
// （Book.Present=false、Frames 缺 key），不许用零值冒充。
type Snapshot struct {
	Symbol       string
	Frames       map[string]*Frame
	Book         types.OrderBookInfo
	MarkPrice    float64
	MidPrice     float64
	FundingRate  float64
	OpenInterest float64
	Rules        types.ContractRules
	FetchedAt    time.Time
}

// Frame 返回指定周期的指标帧，可能为 nil。
func (s *Snapshot) Frame(interval string) *Frame {
	if s == nil || s.Frames == nil {
		return nil
	}
	return s.Frames[interval]
}

// Source 行情数据采集边界。实现负责 I/O 与容错，核心管线不做任何网络调用。
type Source interface {
	Fetch(ctx context.Context, symbol string) (*Snapshot, error)
}
