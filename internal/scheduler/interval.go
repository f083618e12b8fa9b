// Package scheduler provides the periodic drivers the coordinator needs:
// a plain interval runner for the bracket ack watchdog and a day-aligned
// runner for the trading-day rollover.
package scheduler

import (
	"context"
	"time"

	"corral/internal/logger"
)

// Interval runs task every period until the context is cancelled.
type Interval struct {
	Period time.Duration

	ctx   context.Context
	nowFn func() time.Time
}

func NewInterval(ctx context.Context, period time.Duration) *Interval {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Interval{Period: period, ctx: ctx, nowFn: time.Now}
}

// Start blocks; callers run it on its own goroutine.
func (s *Interval) Start(task func()) {
	if task == nil || s.Period <= 0 {
		logger.Warnf("scheduler: interval runner misconfigured (period=%s), exit", s.Period)
		return
	}
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			task()
		case <-s.ctx.Done():
			return
		}
	}
}
