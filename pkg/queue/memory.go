package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps tasks in a slice. Finished tasks stay in place so tests
// can inspect them.
type MemoryStorage struct {
	items []*Task
	mu    sync.Mutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items: make([]*Task, 0),
	}
}

func (s *MemoryStorage) Push(_ context.Context, task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *task
	s.items = append(s.items, &t)
	return nil
}

func (s *MemoryStorage) Claim(_ context.Context, queues []string, lease time.Duration) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, t := range s.items {
		if !t.claimable(queues, now) {
			continue
		}
		if t.Status == StatusProcessing {
			t.LastError = ErrLeaseExpired.Error()
			t.UpdatedAt = now
			if t.exhausted() {
				t.Status = StatusFailed
				t.LockedUntil = nil
				continue
			}
			t.RetryCount++
		}
		lockedUntil := now.Add(lease)
		t.Status = StatusProcessing
		t.LockedUntil = &lockedUntil
		t.Version++
		t.UpdatedAt = now

		claimed := *t
		return &claimed, nil
	}
	return nil, ErrNoTask
}

func (s *MemoryStorage) Complete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.find(id)
	if t == nil {
		return ErrTaskNotFound
	}
	t.Status = StatusCompleted
	t.LockedUntil = nil
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) Fail(_ context.Context, id uuid.UUID, reason string, retryAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.find(id)
	if t == nil {
		return ErrTaskNotFound
	}
	t.LastError = reason
	t.LockedUntil = nil
	t.UpdatedAt = time.Now()
	if retryAt == nil {
		t.Status = StatusFailed
		return nil
	}
	t.Status = StatusPending
	t.RetryCount++
	t.RetryAt = *retryAt
	return nil
}

func (s *MemoryStorage) HasPending(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.items {
		if t.Name == name && (t.Status == StatusPending || t.Status == StatusProcessing) {
			return true, nil
		}
	}
	return false, nil
}

// Size returns the number of tasks not yet completed or failed.
func (s *MemoryStorage) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.items {
		if t.Status == StatusPending || t.Status == StatusProcessing {
			n++
		}
	}
	return n
}

// All returns copies of every stored task in insertion order.
func (s *MemoryStorage) All() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Task, len(s.items))
	for i, t := range s.items {
		result[i] = *t
	}
	return result
}

func (s *MemoryStorage) find(id uuid.UUID) *Task {
	for _, t := range s.items {
		if t.ID == id {
			return t
		}
	}
	return nil
}
