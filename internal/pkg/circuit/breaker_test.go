package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.Allow(), "阈值未到仍放行")
	cb.RecordFailure()

	assert.Equal(t, StateOpen, cb.CurrentState())
	assert.False(t, cb.Allow())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)
	now := time.Now()
	cb.nowFn = func() time.Time { return now }

	cb.RecordFailure()
	assert.False(t, cb.Allow())

	// 冷却窗口过后放一次探测
	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.CurrentState())

	// 探测失败立刻回到打开
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.CurrentState())

	// 再探测一次，这次成功 -> 闭合
	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.CurrentState())
	assert.True(t, cb.Allow())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.CurrentState(), "成功清零后单次失败不应打开")
}
