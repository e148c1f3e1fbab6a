package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petrel/internal/types"
)

func TestPaperBrokerOpenAndClose(t *testing.T) {
	b := NewPaperBroker("BTCUSDT", 10000, 10)
	ctx := context.Background()

	fill, err := b.Submit(ctx, Order{
		Symbol: "BTCUSDT", Kind: types.ActionEnter, Side: types.SideLong,
		Quantity: 0.5, Price: 1000, StopPrice: 980,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, fill.Quantity)

	m, err := b.Metrics(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.5, m.PositionSize)
	assert.Equal(t, 1000.0, m.AvgEntryPrice)

	fill, err = b.Submit(ctx, Order{
		Symbol: "BTCUSDT", Kind: types.ActionExit, Side: types.SideShort,
		Quantity: 0.5, Price: 1100, ReduceOnly: true,
	})
	require.NoError(t, err)
	assert.True(t, fill.Closed)
	assert.InDelta(t, 50.0, fill.PnL, 1e-9)

	m, err = b.Metrics(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 10050.0, m.Equity, 1e-9)
	assert.Zero(t, m.PositionSize)
	assert.Zero(t, m.ConsecutiveSLs)
}

func TestPaperBrokerAveragesEntries(t *testing.T) {
	b := NewPaperBroker("ETHUSDT", 5000, 5)
	ctx := context.Background()

	_, err := b.Submit(ctx, Order{Symbol: "ETHUSDT", Side: types.SideLong, Quantity: 1, Price: 100})
	require.NoError(t, err)
	_, err = b.Submit(ctx, Order{Symbol: "ETHUSDT", Side: types.SideLong, Quantity: 1, Price: 110})
	require.NoError(t, err)

	m, _ := b.Metrics(ctx, "ETHUSDT")
	assert.InDelta(t, 105.0, m.AvgEntryPrice, 1e-9)
	assert.Equal(t, 2.0, m.PositionSize)
}

func TestPaperBrokerLossBumpsConsecutiveStops(t *testing.T) {
	b := NewPaperBroker("BTCUSDT", 10000, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Submit(ctx, Order{Symbol: "BTCUSDT", Side: types.SideLong, Quantity: 1, Price: 1000})
		require.NoError(t, err)
		_, err = b.Submit(ctx, Order{Symbol: "BTCUSDT", Side: types.SideShort, Quantity: 1, Price: 990, ReduceOnly: true})
		require.NoError(t, err)
	}
	m, _ := b.Metrics(ctx, "BTCUSDT")
	assert.Equal(t, 2, m.ConsecutiveSLs)
	assert.InDelta(t, -20.0, m.DailyPnL, 1e-9)

	// 盈利出场清零连亏计数
	_, err := b.Submit(ctx, Order{Symbol: "BTCUSDT", Side: types.SideLong, Quantity: 1, Price: 1000})
	require.NoError(t, err)
	_, err = b.Submit(ctx, Order{Symbol: "BTCUSDT", Side: types.SideShort, Quantity: 1, Price: 1030, ReduceOnly: true})
	require.NoError(t, err)
	m, _ = b.Metrics(ctx, "BTCUSDT")
	assert.Zero(t, m.ConsecutiveSLs)
}

func TestPaperBrokerRejectsBadOrders(t *testing.T) {
	b := NewPaperBroker("BTCUSDT", 10000, 10)
	ctx := context.Background()

	_, err := b.Submit(ctx, Order{Symbol: "BTCUSDT", Side: types.SideLong, Quantity: 0, Price: 1000})
	assert.Error(t, err)

	_, err = b.Submit(ctx, Order{Symbol: "BTCUSDT", Side: types.SideShort, Quantity: 1, Price: 1000, ReduceOnly: true})
	assert.Error(t, err, "空仓不可平")

	_, err = b.Submit(ctx, Order{Symbol: "BTCUSDT", Side: types.SideLong, Quantity: 1, Price: 1000})
	require.NoError(t, err)
	_, err = b.Submit(ctx, Order{Symbol: "BTCUSDT", Side: types.SideShort, Quantity: 1, Price: 1010})
	assert.Error(t, err, "反向开仓必须先平")
}

func TestPaperBrokerDailyRollover(t *testing.T) {
	b := NewPaperBroker("BTCUSDT", 10000, 10)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.nowFn = func() time.Time { return now }
	ctx := context.Background()

	_, err := b.Submit(ctx, Order{Symbol: "BTCUSDT", Side: types.SideLong, Quantity: 1, Price: 1000})
	require.NoError(t, err)
	_, err = b.Submit(ctx, Order{Symbol: "BTCUSDT", Side: types.SideShort, Quantity: 1, Price: 980, ReduceOnly: true})
	require.NoError(t, err)

	m, _ := b.Metrics(ctx, "BTCUSDT")
	assert.InDelta(t, -20.0, m.DailyPnL, 1e-9)

	now = now.Add(24 * time.Hour)
	m, _ = b.Metrics(ctx, "BTCUSDT")
	assert.Zero(t, m.DailyPnL)
	assert.InDelta(t, 9980.0, m.Equity, 1e-9)
}
