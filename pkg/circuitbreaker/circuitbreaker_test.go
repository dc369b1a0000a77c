package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, timeout, window time.Duration) (*CircuitBreaker, *clock) {
	c := &clock{t: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreakerWithWindow(maxFailures, timeout, window)
	cb.now = c.now
	return cb, c
}

var errSend = errors.New("send failed")

func fail() error    { return errSend }
func succeed() error { return nil }

func TestOpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute, time.Minute)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(fail, nil), errSend)
		assert.Equal(t, StateClosed, cb.GetState())
	}
	assert.ErrorIs(t, cb.Execute(fail, nil), errSend)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	}, nil)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestFallbackWhenOpen(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute, time.Minute)
	_ = cb.Execute(fail, nil)

	fallbackErr := errors.New("fallback")
	assert.ErrorIs(t, cb.Execute(succeed, func() error { return fallbackErr }), fallbackErr)
}

func TestFailuresOutsideWindowAreForgotten(t *testing.T) {
	cb, c := newTestBreaker(2, time.Minute, 10*time.Second)

	_ = cb.Execute(fail, nil)
	c.advance(11 * time.Second)
	_ = cb.Execute(fail, nil)

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenRecovery(t *testing.T) {
	cb, c := newTestBreaker(1, 30*time.Second, time.Minute)
	_ = cb.Execute(fail, nil)
	assert.Equal(t, StateOpen, cb.GetState())

	c.advance(31 * time.Second)
	assert.NoError(t, cb.Execute(succeed, nil))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb, c := newTestBreaker(5, 30*time.Second, time.Minute)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(fail, nil)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	c.advance(31 * time.Second)
	assert.ErrorIs(t, cb.Execute(fail, nil), errSend)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(succeed, nil), ErrOpen)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
