package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultInterval    = 15 * time.Second
	DefaultTaskTimeout = 5 * time.Minute
)

type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
)

type SchedulerOptions struct {
	Interval    time.Duration
	WorkerCount int // 0 runs every feed of a round at once
	TaskTimeout time.Duration
}

type RoundResult struct {
	Feeds     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

type Scheduler struct {
	store       Refresher
	interval    time.Duration
	workerCount int
	taskTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	state   atomic.Value
	rounds  atomic.Int64
}

func NewScheduler(store Refresher, opts SchedulerOptions) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	if opts.WorkerCount < 0 {
		opts.WorkerCount = 0
	}

	s := &Scheduler{
		store:       store,
		interval:    opts.Interval,
		workerCount: opts.WorkerCount,
		taskTimeout: opts.TaskTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	s.state.Store(StateIdle)

	return s
}

// Start launches the poll loop. The first round runs right away and each
// following round is armed Interval after the previous one settled.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-timer.C:
				s.RunRound(s.ctx)
				timer.Reset(s.interval)
			}
		}
	}()

	slog.Info("Scheduler started", "interval", s.interval, "workers", s.workerCount)
}

// Stop cancels the loop and waits for an in-flight round to settle.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("Scheduler stopped", "rounds", s.rounds.Load())
}

func (s *Scheduler) State() State {
	return s.state.Load().(State)
}

func (s *Scheduler) Rounds() int64 {
	return s.rounds.Load()
}

// RunRound refreshes every feed known at the start of the round and returns
// once all of them have settled. A failing feed does not affect the others.
func (s *Scheduler) RunRound(ctx context.Context) RoundResult {
	s.state.Store(StatePolling)
	defer s.state.Store(StateIdle)

	started := time.Now()
	feeds := s.store.Feeds()

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		sem       chan struct{}
	)
	if s.workerCount > 0 {
		sem = make(chan struct{}, s.workerCount)
	}

	for _, f := range feeds {
		task := NewRefreshFeedTask(f, s.store)

		wg.Add(1)
		go func() {
			defer wg.Done()

			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					// No slot: the refresh fails on the cancelled context
					// and the store records it.
					slog.Debug("Round cancelled before task started", "feed", task.GetFeedName())
				}
			}

			if s.executeTask(ctx, task) == nil {
				succeeded.Add(1)
			}
		}()
	}

	wg.Wait()
	s.rounds.Add(1)

	result := RoundResult{
		Feeds:     len(feeds),
		Succeeded: int(succeeded.Load()),
		Duration:  time.Since(started),
	}
	result.Failed = result.Feeds - result.Succeeded

	slog.Debug("Round completed",
		"feeds", result.Feeds,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", result.Duration)

	return result
}

func (s *Scheduler) executeTask(ctx context.Context, task TaskInterface) (err error) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
		if err != nil {
			slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "feed", task.GetFeedName(), "duration", task.GetDuration(), "error", err)
		}
	}()

	return task.Execute(taskCtx)
}
