package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const claimAttempts = 5

// DatabaseStorage keeps tasks in the queue_tasks table. Claims are optimistic:
// a candidate row is read, then updated only if its version is unchanged.
type DatabaseStorage struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDatabaseStorage(db *gorm.DB) *DatabaseStorage {
	return &DatabaseStorage{db: db, now: time.Now}
}

func (s *DatabaseStorage) Push(ctx context.Context, task *Task) error {
	return s.db.WithContext(ctx).Create(task).Error
}

func (s *DatabaseStorage) Claim(ctx context.Context, queues []string, lease time.Duration) (*Task, error) {
	db := s.db.WithContext(ctx)

	for i := 0; i < claimAttempts; i++ {
		now := s.now().UTC()

		var task Task
		err := db.
			Where("queue IN ?", queues).
			Where("(status = ? AND retry_at <= ?) OR (status = ? AND locked_until <= ?)",
				StatusPending, now, StatusProcessing, now).
			Order("retry_at, created_at").
			Take(&task).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoTask
		}
		if err != nil {
			return nil, err
		}

		reclaim := task.Status == StatusProcessing
		if reclaim && task.exhausted() {
			err := db.Model(&Task{}).
				Where("id = ? AND version = ?", task.ID, task.Version).
				Updates(map[string]any{
					"status":       StatusFailed,
					"last_error":   ErrLeaseExpired.Error(),
					"locked_until": nil,
					"version":      task.Version + 1,
				}).Error
			if err != nil {
				return nil, err
			}
			continue
		}

		lockedUntil := now.Add(lease)
		values := map[string]any{
			"status":       StatusProcessing,
			"locked_until": lockedUntil,
			"version":      task.Version + 1,
		}
		if reclaim {
			values["retry_count"] = task.RetryCount + 1
			values["last_error"] = ErrLeaseExpired.Error()
		}

		res := db.Model(&Task{}).
			Where("id = ? AND version = ?", task.ID, task.Version).
			Updates(values)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			if reclaim {
				task.RetryCount++
				task.LastError = ErrLeaseExpired.Error()
			}
			task.Status = StatusProcessing
			task.LockedUntil = &lockedUntil
			task.Version++
			return &task, nil
		}
	}
	return nil, ErrNoTask
}

func (s *DatabaseStorage) Complete(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, id, map[string]any{
		"status":       StatusCompleted,
		"locked_until": nil,
	})
}

func (s *DatabaseStorage) Fail(ctx context.Context, id uuid.UUID, reason string, retryAt *time.Time) error {
	if retryAt == nil {
		return s.update(ctx, id, map[string]any{
			"status":       StatusFailed,
			"last_error":   reason,
			"locked_until": nil,
		})
	}
	return s.update(ctx, id, map[string]any{
		"status":       StatusPending,
		"last_error":   reason,
		"locked_until": nil,
		"retry_at":     retryAt.UTC(),
		"retry_count":  gorm.Expr("retry_count + 1"),
	})
}

func (s *DatabaseStorage) HasPending(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Task{}).
		Where("name = ? AND status IN ?", name, []Status{StatusPending, StatusProcessing}).
		Count(&count).Error
	return count > 0, err
}

func (s *DatabaseStorage) update(ctx context.Context, id uuid.UUID, values map[string]any) error {
	res := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
