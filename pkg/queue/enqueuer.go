package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultMaxRetries = 3

type Enqueuer struct {
	storage    Storage
	queue      string
	maxRetries int
	now        func() time.Time
}

type EnqueuerOption func(*Enqueuer)

func WithDefaultQueue(name string) EnqueuerOption {
	return func(e *Enqueuer) {
		if name != "" {
			e.queue = name
		}
	}
}

func WithDefaultMaxRetries(n int) EnqueuerOption {
	return func(e *Enqueuer) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

func NewEnqueuer(storage Storage, opts ...EnqueuerOption) *Enqueuer {
	e := &Enqueuer{
		storage:    storage,
		queue:      DefaultQueue,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type EnqueueOption func(*Task)

func WithQueue(name string) EnqueueOption {
	return func(t *Task) { t.Queue = name }
}

// WithDelay postpones the first attempt.
func WithDelay(d time.Duration) EnqueueOption {
	return func(t *Task) { t.RetryAt = t.RetryAt.Add(d) }
}

func WithMaxRetries(n int) EnqueueOption {
	return func(t *Task) { t.MaxRetries = n }
}

// Enqueue stores a pending task whose payload is the JSON encoding of payload.
func (e *Enqueuer) Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) (*Task, error) {
	if name == "" {
		return nil, ErrEmptyTaskName
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", name, err)
	}

	now := e.now().UTC()
	task := &Task{
		ID:         uuid.New(),
		Queue:      e.queue,
		Name:       name,
		Payload:    data,
		Status:     StatusPending,
		MaxRetries: e.maxRetries,
		RetryAt:    now,
	}
	for _, opt := range opts {
		opt(task)
	}

	if err := e.storage.Push(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", name, err)
	}
	return task, nil
}
