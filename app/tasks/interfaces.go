package tasks

import (
	"context"
)

// TaskSchedulerInterface is what the application needs from the poll loop.
//
//	scheduler := NewScheduler(store, SchedulerOptions{Interval: 15 * time.Second})
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	RunRound(ctx context.Context) RoundResult
	State() State
	Rounds() int64
}
