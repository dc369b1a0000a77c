package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Worker struct {
	storage     Storage
	handlers    map[string]Handler
	queues      []string
	concurrency int
	interval    time.Duration
	lease       time.Duration
	backoff     time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

type WorkerOption func(*Worker)

func WithQueues(queues ...string) WorkerOption {
	return func(w *Worker) {
		if len(queues) > 0 {
			w.queues = queues
		}
	}
}

func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLease sets how long a claimed task is reserved for one worker. It also
// bounds the handler's run time.
func WithLease(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lease = d
		}
	}
}

// WithBackoff sets the retry delay step: attempt n waits n times d.
func WithBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d >= 0 {
			w.backoff = d
		}
	}
}

func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

func NewWorker(storage Storage, handlers []Handler, opts ...WorkerOption) *Worker {
	w := &Worker{
		storage:     storage,
		handlers:    make(map[string]Handler, len(handlers)),
		queues:      []string{DefaultQueue},
		concurrency: 1,
		interval:    time.Second,
		lease:       5 * time.Minute,
		backoff:     30 * time.Second,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, h := range handlers {
		w.handlers[h.Name()] = h
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls the storage with the configured number of goroutines until ctx is
// done. Tasks already started are allowed to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("concurrency", w.concurrency))

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.poll(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) poll(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			processed, err := w.ProcessNext(ctx)
			if err != nil && !errors.Is(err, ErrHandlerNotFound) {
				w.logger.Error("failed to process task", slog.Any("error", err))
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext claims and runs a single task. processed is false when no task
// was ready. The returned error is the storage or handler failure, if any.
func (w *Worker) ProcessNext(ctx context.Context) (processed bool, err error) {
	task, err := w.storage.Claim(ctx, w.queues, w.lease)
	if errors.Is(err, ErrNoTask) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}

	// bookkeeping must survive shutdown of ctx
	bg := context.WithoutCancel(ctx)

	handler, ok := w.handlers[task.Name]
	if !ok {
		w.logger.Error("no handler registered for task",
			slog.String("task_id", task.ID.String()),
			slog.String("task_name", task.Name))
		if err := w.storage.Fail(bg, task.ID, ErrHandlerNotFound.Error(), nil); err != nil {
			return true, fmt.Errorf("mark task %s failed: %w", task.ID, err)
		}
		return true, fmt.Errorf("%w: %s", ErrHandlerNotFound, task.Name)
	}

	start := w.now()
	runErr := w.execute(bg, handler, task)
	duration := w.now().Sub(start)

	if runErr == nil {
		if err := w.storage.Complete(bg, task.ID); err != nil {
			return true, fmt.Errorf("mark task %s completed: %w", task.ID, err)
		}
		w.logger.Debug("task completed",
			slog.String("task_id", task.ID.String()),
			slog.String("task_name", task.Name),
			slog.Duration("duration", duration))
		return true, nil
	}

	var retryAt *time.Time
	if task.RetryCount < task.MaxRetries && !errors.Is(runErr, ErrSkipRetry) {
		at := w.now().UTC().Add(w.backoff * time.Duration(task.RetryCount+1))
		retryAt = &at
	}

	w.logger.Error("task failed",
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.Name),
		slog.Int("retry_count", task.RetryCount),
		slog.Int("max_retries", task.MaxRetries),
		slog.Bool("will_retry", retryAt != nil),
		slog.Duration("duration", duration),
		slog.Any("error", runErr))

	if err := w.storage.Fail(bg, task.ID, runErr.Error(), retryAt); err != nil {
		return true, fmt.Errorf("mark task %s failed: %w", task.ID, err)
	}
	return true, runErr
}

func (w *Worker) execute(ctx context.Context, h Handler, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, w.lease)
	defer cancel()

	return h.Handle(ctx, task.Payload)
}
