// Package lock provides best-effort named locks with a time to live. A holder
// that dies without releasing loses the lock once the TTL elapses.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Locker hands out named locks. TryAcquire reports false, not an error, when
// the lock is already held. Each successful acquire returns a fresh token and
// Release only frees the lock while it still carries that token, so a holder
// whose TTL ran out cannot free its successor's lock. Releasing a lock that is
// not held is a no-op.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// WithLock runs fn while holding key. When the lock is held elsewhere fn does
// not run and acquired is false. The lock is released on every exit from fn,
// panics included, with a context that outlives cancellation of ctx.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(context.Context) error) (acquired bool, err error) {
	token, ok, err := l.TryAcquire(ctx, key, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	defer func() {
		if rerr := l.Release(context.WithoutCancel(ctx), key, token); rerr != nil {
			err = errors.Join(err, fmt.Errorf("release lock %q: %w", key, rerr))
		}
	}()

	return true, fn(ctx)
}

func newToken() string {
	return uuid.NewString()
}
