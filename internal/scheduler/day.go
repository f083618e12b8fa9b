package scheduler

import (
	"context"
	"time"

	"corral/internal/logger"
)

// DayBoundary wakes once per UTC day boundary and invokes task with the new
// day in YYYY-MM-DD form. The risk gate's stored marker makes a duplicate
// invocation after a restart harmless.
type DayBoundary struct {
	ctx   context.Context
	nowFn func() time.Time
}

func NewDayBoundary(ctx context.Context) *DayBoundary {
	if ctx == nil {
		ctx = context.Background()
	}
	return &DayBoundary{ctx: ctx, nowFn: time.Now}
}

// Start blocks; callers run it on its own goroutine. It fires immediately
// for the current day, then at each following midnight UTC.
func (d *DayBoundary) Start(task func(day string)) {
	if task == nil {
		logger.Warnf("scheduler: day boundary task is nil, exit")
		return
	}
	for {
		now := d.nowFn().UTC()
		task(now.Format("2006-01-02"))

		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		wait := time.Until(next)
		logger.Debugf("scheduler: next day rollover at %s (in %s)", next.Format(time.RFC3339), wait.Truncate(time.Second))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-d.ctx.Done():
			timer.Stop()
			return
		}
	}
}
