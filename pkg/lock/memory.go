package lock

import (
	"context"
	"sync"
	"time"
)

type holder struct {
	token   string
	expires time.Time
}

// MemoryLocker keeps locks in process memory. Suitable for tests and single
// node deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]holder
	now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]holder),
		now:   time.Now,
	}
}

// WithClock replaces the time source used for expiry.
func (l *MemoryLocker) WithClock(now func() time.Time) *MemoryLocker {
	l.now = now
	return l
}

func (l *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.locks[key]; ok && now.Before(h.expires) {
		return "", false, nil
	}
	token := newToken()
	l.locks[key] = holder{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.locks[key]; ok && h.token == token {
		delete(l.locks, key)
	}
	return nil
}
