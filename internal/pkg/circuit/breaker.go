// Package circuit 三态熔断器，用于隔离持续失败的外部依赖。
package circuit

import (
	"sync"
	"time"

	"petrel/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker 连续失败 threshold 次后打开，冷却 timeout 后放一次
// 探测请求（half-open），探测成功才闭合。
type CircuitBreaker struct {
	mu          sync.Mutex
	name        string
	state       State
	failures    int
	threshold   int
	timeout     time.Duration
	lastFailure time.Time
	nowFn       func() time.Time
}

func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		timeout:   timeout,
		state:     StateClosed,
		nowFn:     time.Now,
	}
}

// Allow 当前是否允许发起调用。open 状态超过冷却窗口时转 half-open
// 并放行一次探测。
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		if cb.nowFn().Sub(cb.lastFailure) > cb.timeout {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	}
	return true
}

// RecordSuccess 记一次成功：half-open 转闭合，失败计数清零。
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
}

// RecordFailure 记一次失败：闭合态连续失败到阈值即打开，
// half-open 的探测失败立刻回到打开。
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = cb.nowFn()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.threshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// CurrentState 返回当前状态（诊断用）。
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	logger.Warnf("熔断器 %s: %s -> %s (failures=%d/%d)",
		cb.name, from, to, cb.failures, cb.threshold)
}
