// Package queue runs named background tasks with retries. Tasks live in a
// Storage, are added by an Enqueuer or a Scheduler and executed by a Worker.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const DefaultQueue = "default"

var (
	ErrNoTask           = errors.New("no task to claim")
	ErrTaskNotFound     = errors.New("task not found")
	ErrHandlerNotFound  = errors.New("no handler registered for task")
	ErrSkipRetry        = errors.New("task must not be retried")
	ErrHandlerPanic     = errors.New("task handler panicked")
	ErrEmptyTaskName    = errors.New("task name is empty")
	ErrAlreadyScheduled = errors.New("task already scheduled")
	ErrLeaseExpired     = errors.New("task lease expired")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type Task struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Queue       string    `gorm:"size:100;not null;index:idx_queue_tasks_claim,priority:1"`
	Name        string    `gorm:"size:100;not null;index"`
	Payload     []byte
	Status      Status    `gorm:"size:20;not null;index:idx_queue_tasks_claim,priority:2"`
	RetryCount  int       `gorm:"not null"`
	MaxRetries  int       `gorm:"not null"`
	RetryAt     time.Time `gorm:"not null;index:idx_queue_tasks_claim,priority:3"`
	LockedUntil *time.Time
	Version     int64 `gorm:"not null"`
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Task) TableName() string {
	return "queue_tasks"
}

// claimable reports whether the task may be handed to a worker at now: pending
// and due, or processing with an expired lease.
func (t *Task) claimable(queues []string, now time.Time) bool {
	if !contains(queues, t.Queue) {
		return false
	}
	switch t.Status {
	case StatusPending:
		return !t.RetryAt.After(now)
	case StatusProcessing:
		return t.LockedUntil != nil && !t.LockedUntil.After(now)
	}
	return false
}

// exhausted reports whether a task may not be attempted again.
func (t *Task) exhausted() bool {
	return t.RetryCount >= t.MaxRetries
}

// Storage persists tasks. Claim returns ErrNoTask when nothing is ready.
// Reclaiming a task whose lease expired counts as a failed attempt: the retry
// count goes up, and a task without retries left is marked failed instead of
// being handed out again. Fail with a nil retryAt marks the task failed for
// good, otherwise it goes back to pending until retryAt.
type Storage interface {
	Push(ctx context.Context, task *Task) error
	Claim(ctx context.Context, queues []string, lease time.Duration) (*Task, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, reason string, retryAt *time.Time) error
	HasPending(ctx context.Context, name string) (bool, error)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
