package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler enqueues tasks on fixed intervals. It never runs task logic itself.
type Scheduler struct {
	enqueuer *Enqueuer
	entries  []*entry
	logger   *slog.Logger
}

type entry struct {
	name     string
	interval time.Duration
	payload  any
	opts     []EnqueueOption
}

func NewScheduler(enqueuer *Enqueuer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{enqueuer: enqueuer, logger: logger}
}

// Every registers a task to be enqueued each interval. Must be called before Run.
func (s *Scheduler) Every(name string, interval time.Duration, payload any, opts ...EnqueueOption) error {
	if name == "" {
		return ErrEmptyTaskName
	}
	for _, e := range s.entries {
		if e.name == name {
			return ErrAlreadyScheduled
		}
	}
	s.entries = append(s.entries, &entry{name: name, interval: interval, payload: payload, opts: opts})
	s.logger.Info("registered periodic task",
		slog.String("task_name", name),
		slog.Duration("interval", interval))
	return nil
}

// Run enqueues every registered task once immediately and then on its interval
// until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, e := range s.entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, e)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if _, err := s.trigger(ctx, e); err != nil && ctx.Err() == nil {
			s.logger.Error("failed to schedule task",
				slog.String("task_name", e.name),
				slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick enqueues every registered task that has no pending run and returns how
// many were enqueued.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	n := 0
	for _, e := range s.entries {
		ok, err := s.trigger(ctx, e)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *Scheduler) trigger(ctx context.Context, e *entry) (bool, error) {
	pending, err := s.enqueuer.storage.HasPending(ctx, e.name)
	if err != nil {
		return false, err
	}
	if pending {
		s.logger.Debug("periodic task already pending", slog.String("task_name", e.name))
		return false, nil
	}
	if _, err := s.enqueuer.Enqueue(ctx, e.name, e.payload, e.opts...); err != nil {
		return false, err
	}
	return true, nil
}
