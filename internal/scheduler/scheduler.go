// Package scheduler 周期触发：对齐 K 线收盘时刻，收盘后延迟 offset 再执行，
// 给交易所留出落 K 线的时间。
package scheduler

import (
	"context"
	"time"

	"petrel/internal/logger"
)

// AlignedScheduler 单 goroutine 的对齐循环。task 串行执行，
// 上一轮没跑完之前不会触发下一轮。
type AlignedScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAlignedScheduler(ctx context.Context, interval, offset time.Duration) *AlignedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start 阻塞运行调度循环，直到 ctx 取消。
func (s *AlignedScheduler) Start(task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler: 周期非法 %s，退出", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("scheduler: 启动 interval=%s offset=%s run_immediately=%v",
		s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately {
		task()
	}

	for {
		now := s.nowFn().UTC()
		nextClose, wait := s.nextWake(now)
		logger.Infof("scheduler: 下一根收盘 %s，%s 后执行",
			nextClose.Format(time.RFC3339), wait.Truncate(time.Second))

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				logger.Infof("scheduler: ctx 取消，退出")
				return
			case <-timer.C:
			}
		}
		task()
	}
}

// nextWake 下一根 K 线收盘时刻与距执行的等待时长。
func (s *AlignedScheduler) nextWake(now time.Time) (time.Time, time.Duration) {
	nextClose := now.UTC().Truncate(s.Interval).Add(s.Interval)
	wakeAt := nextClose.Add(s.Offset)
	return nextClose, wakeAt.Sub(now)
}
