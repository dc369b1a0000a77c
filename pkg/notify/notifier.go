// Package notify delivers plain text messages to members.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"library_tracking/pkg/circuitbreaker"
	"library_tracking/pkg/config"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrSendFailed     = errors.New("failed to send message")
)

type Message struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	To      string `json:"to"`
}

func (m Message) Validate() error {
	if m.To == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	return nil
}

// Notifier sends a message. Failures are returned to the caller.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// New picks postmark when a server token is configured and the file notifier
// otherwise, guarded by a circuit breaker.
func New(cfg config.Mail, logger *slog.Logger) (Notifier, error) {
	var n Notifier
	if cfg.ServerToken != "" {
		pm, err := NewPostmark(cfg.ServerToken, cfg.AccountToken, cfg.From)
		if err != nil {
			return nil, err
		}
		n = pm
	} else {
		logger.Warn("POSTMARK_SERVER_TOKEN not set, writing messages to disk", slog.String("dir", cfg.DevDir))
		n = NewFileNotifier(cfg.DevDir)
	}

	n = WithBreaker(n, circuitbreaker.NewCircuitBreaker(cfg.BreakerLimit, cfg.BreakerTimeout))
	if cfg.FailSilently {
		n = Quiet(n, logger)
	}
	return n, nil
}
