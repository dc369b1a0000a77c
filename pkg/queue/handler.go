package queue

import (
	"context"
	"fmt"
)

type Handler interface {
	Name() string
	Handle(ctx context.Context, payload []byte) error
}

type HandlerFunc[T any] func(ctx context.Context, payload T) error

// NewHandler decodes the JSON payload into T before calling fn. A payload that
// cannot be decoded fails the task without retry.
func NewHandler[T any](name string, fn HandlerFunc[T]) Handler {
	return &typedHandler[T]{name: name, fn: fn}
}

type typedHandler[T any] struct {
	name string
	fn   HandlerFunc[T]
}

func (h *typedHandler[T]) Name() string {
	return h.name
}

func (h *typedHandler[T]) Handle(ctx context.Context, payload []byte) error {
	var v T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("%w: decode %s payload: %w", ErrSkipRetry, h.name, err)
		}
	}
	return h.fn(ctx, v)
}
