package jobs

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"library_tracking/pkg/lock"
	"library_tracking/pkg/queue"
)

type ScanResult struct {
	Skipped bool
	Batches int
	Members int
}

// Scanner finds members with overdue loans and fans them out in fixed size
// batches of reminder tasks. Runs are serialised through a named lock.
type Scanner struct {
	query     OverdueQuery
	locker    lock.Locker
	enqueuer  Enqueuer
	batchSize int
	lockTTL   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type ScannerOption func(*Scanner)

func WithBatchSize(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithLockTTL(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

func WithScannerClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) { s.now = now }
}

func WithScannerLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewScanner(query OverdueQuery, locker lock.Locker, enqueuer Enqueuer, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		query:     query,
		locker:    locker,
		enqueuer:  enqueuer,
		batchSize: DefaultBatchSize,
		lockTTL:   OverdueLockTTL,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one scan. When another scan holds the lock it returns a
// skipped result and no error. Any failure stops the scan; batches already
// enqueued stay enqueued.
func (s *Scanner) Run(ctx context.Context) (ScanResult, error) {
	var res ScanResult

	acquired, err := lock.WithLock(ctx, s.locker, OverdueLockKey, s.lockTTL, func(ctx context.Context) error {
		for batch, err := range chunk(s.query.OverdueMembers(ctx, s.now()), s.batchSize) {
			if err != nil {
				return err
			}
			payload := BatchOverduePayload{Members: batch}
			if _, err := s.enqueuer.Enqueue(ctx, SendBatchOverdueNotification, payload, queue.WithQueue(ScheduleQueue)); err != nil {
				return fmt.Errorf("dispatch batch %d: %w", res.Batches+1, err)
			}
			res.Batches++
			res.Members += len(batch)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "overdue scan failed",
			slog.Int("batches", res.Batches),
			slog.Any("error", err))
		return res, err
	}
	if !acquired {
		s.logger.InfoContext(ctx, "overdue scan already running")
		return ScanResult{Skipped: true}, nil
	}

	s.logger.InfoContext(ctx, "overdue scan finished",
		slog.Int("batches", res.Batches),
		slog.Int("members", res.Members))
	return res, nil
}

// chunk groups seq into slices of size. The last slice may be shorter; an
// error ends the sequence after being yielded.
func chunk[T any](seq iter.Seq2[T, error], size int) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		batch := make([]T, 0, size)
		for v, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			batch = append(batch, v)
			if len(batch) == size {
				if !yield(batch, nil) {
					return
				}
				batch = make([]T, 0, size)
			}
		}
		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}
