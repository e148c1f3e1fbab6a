package execution

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"petrel/internal/logger"
	"petrel/internal/types"
)

// PaperBroker 纸面撮合：所有订单按传入价格立即全量成交，
// 在内存里维护一份账户口径，同时充当 OrderSink 和 AccountSource。
// 盈亏按均价法结算，隔日自动翻篇 DailyPnL。
type PaperBroker struct {
	mu sync.Mutex

	symbol   string
	equity   float64
	size     float64 // 正=多，负=空
	avgEntry float64
	stop     float64
	leverage float64

	dailyPnL float64
	day      time.Time // 当日 UTC 零点
	consecSL int

	nowFn func() time.Time
}

// NewPaperBroker 创建纸面账户。initialEquity 为起始权益（USDT 口径）。
func NewPaperBroker(symbol string, initialEquity, leverage float64) *PaperBroker {
	if leverage <= 0 {
		leverage = 1
	}
	return &PaperBroker{
		symbol:   symbol,
		equity:   initialEquity,
		leverage: leverage,
		nowFn:    time.Now,
	}
}

// Submit 立即按 order.Price 成交。开仓腿更新均价，平仓腿结算已实现盈亏。
func (b *PaperBroker) Submit(_ context.Context, order Order) (*Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollDay()

	if order.Quantity <= 0 {
		return nil, fmt.Errorf("paper: 数量非法 %.8f", order.Quantity)
	}
	if order.Price <= 0 {
		return nil, fmt.Errorf("paper: 成交参考价缺失")
	}

	if order.ReduceOnly {
		return b.closeLocked(order)
	}
	return b.openLocked(order)
}

func (b *PaperBroker) openLocked(order Order) (*Fill, error) {
	signed := order.Quantity
	if order.Side == types.SideShort {
		signed = -signed
	}
	if b.size != 0 && (b.size > 0) != (signed > 0) {
		return nil, fmt.Errorf("paper: 持仓方向冲突，先平后开")
	}

	newSize := b.size + signed
	notional := b.avgEntry*math.Abs(b.size) + order.Price*order.Quantity
	b.avgEntry = notional / math.Abs(newSize)
	b.size = newSize
	if order.StopPrice > 0 {
		b.stop = order.StopPrice
	}
	logger.Infof("paper 开仓 %s %s qty=%.6f @%.4f stop=%.4f size=%.6f",
		order.Symbol, order.Side, order.Quantity, order.Price, order.StopPrice, b.size)
	return &Fill{Symbol: order.Symbol, Side: order.Side, Quantity: order.Quantity, Price: order.Price}, nil
}

func (b *PaperBroker) closeLocked(order Order) (*Fill, error) {
	held := math.Abs(b.size)
	if held == 0 {
		return nil, fmt.Errorf("paper: 空仓不可平")
	}
	qty := math.Min(order.Quantity, held)

	var pnl float64
	if b.size > 0 {
		pnl = (order.Price - b.avgEntry) * qty
	} else {
		pnl = (b.avgEntry - order.Price) * qty
	}
	b.equity += pnl
	b.dailyPnL += pnl

	if b.size > 0 {
		b.size -= qty
	} else {
		b.size += qty
	}
	closed := math.Abs(b.size) < 1e-12
	if closed {
		b.size = 0
		b.avgEntry = 0
		b.stop = 0
		if pnl < 0 {
			b.consecSL++
		} else if pnl > 0 {
			b.consecSL = 0
		}
	}
	logger.Infof("paper 平仓 %s qty=%.6f @%.4f pnl=%.2f equity=%.2f",
		order.Symbol, qty, order.Price, pnl, b.equity)
	return &Fill{Symbol: order.Symbol, Side: order.Side, Quantity: qty, Price: order.Price, Closed: closed, PnL: pnl}, nil
}

// MoveStop 更新内存止损价。
func (b *PaperBroker) MoveStop(_ context.Context, symbol string, stopPrice float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return fmt.Errorf("paper: 空仓不可移动止损")
	}
	b.stop = stopPrice
	logger.Infof("paper 移动止损 %s -> %.4f", symbol, stopPrice)
	return nil
}

// CancelAll 纸面账户没有挂单，只记一条日志。
func (b *PaperBroker) CancelAll(_ context.Context, symbol string) error {
	logger.Debugf("paper 撤销全部挂单 %s", symbol)
	return nil
}

// Metrics 返回当前账户口径快照。
func (b *PaperBroker) Metrics(_ context.Context, _ string) (types.AccountMetrics, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollDay()
	return types.AccountMetrics{
		Equity:          b.equity,
		AvailableMargin: b.availableLocked(),
		PositionSize:    b.size,
		AvgEntryPrice:   b.avgEntry,
		Leverage:        b.leverage,
		DailyPnL:        b.dailyPnL,
		ConsecutiveSLs:  b.consecSL,
	}, nil
}

func (b *PaperBroker) availableLocked() float64 {
	used := b.avgEntry * math.Abs(b.size) / b.leverage
	avail := b.equity - used
	if avail < 0 {
		return 0
	}
	return avail
}

func (b *PaperBroker) rollDay() {
	today := b.nowFn().UTC().Truncate(24 * time.Hour)
	if !today.Equal(b.day) {
		b.day = today
		b.dailyPnL = 0
	}
}
