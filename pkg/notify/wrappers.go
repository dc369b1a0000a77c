package notify

import (
	"context"
	"log/slog"

	"library_tracking/pkg/circuitbreaker"
)

// WithBreaker stops calling n while cb is open. Sends then fail with
// circuitbreaker.ErrOpen.
func WithBreaker(n Notifier, cb *circuitbreaker.CircuitBreaker) Notifier {
	return NotifierFunc(func(ctx context.Context, msg Message) error {
		return cb.Execute(func() error {
			return n.Send(ctx, msg)
		}, nil)
	})
}

// Quiet logs send failures instead of returning them.
func Quiet(n Notifier, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return NotifierFunc(func(ctx context.Context, msg Message) error {
		if err := n.Send(ctx, msg); err != nil {
			logger.WarnContext(ctx, "message not sent",
				slog.String("to", msg.To),
				slog.String("subject", msg.Subject),
				slog.Any("error", err))
		}
		return nil
	})
}
