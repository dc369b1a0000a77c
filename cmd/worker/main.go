package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"library_tracking/pkg/config"
	"library_tracking/pkg/database"
	"library_tracking/pkg/jobs"
	"library_tracking/pkg/loans"
	"library_tracking/pkg/lock"
	"library_tracking/pkg/logger"
	"library_tracking/pkg/notify"
	"library_tracking/pkg/queue"
)

func main() {
	log.Println("Starting library worker...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(
		logger.WithLevelName(cfg.Log.Level),
		logger.WithFormat(logger.Format(cfg.Log.Format)),
		logger.WithService("worker"),
	)
	slog.SetDefault(l)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Error("worker failed", logger.Error(err))
		os.Exit(1)
	}
	l.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, l *slog.Logger) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(db, jobs.Tables()...); err != nil {
		return err
	}

	locker, err := newLocker(ctx, cfg, db)
	if err != nil {
		return err
	}

	notifier, err := notify.New(cfg.Mail, l)
	if err != nil {
		return fmt.Errorf("configure notifier: %w", err)
	}

	storage := queue.NewDatabaseStorage(db)
	enqueuer := queue.NewEnqueuer(storage, queue.WithDefaultMaxRetries(cfg.Queue.MaxRetries))
	store := loans.NewStore(db, loans.WithPageSize(cfg.Overdue.PageSize))

	scanner := jobs.NewScanner(store, locker, enqueuer,
		jobs.WithBatchSize(cfg.Overdue.BatchSize),
		jobs.WithLockTTL(cfg.Overdue.LockTTL),
		jobs.WithScannerLogger(l),
	)
	notifications := jobs.NewNotifications(store, store, notifier, l)

	worker := queue.NewWorker(storage, jobs.Handlers(scanner, notifications),
		queue.WithQueues(queue.DefaultQueue, jobs.ScheduleQueue),
		queue.WithConcurrency(cfg.Queue.Workers),
		queue.WithPollInterval(cfg.Queue.PollInterval),
		queue.WithLease(cfg.Queue.Lease),
		queue.WithBackoff(cfg.Queue.RetryBackoff),
		queue.WithLogger(l),
	)

	scheduler := queue.NewScheduler(enqueuer, l)
	if err := scheduler.Every(jobs.CheckOverdueLoans, cfg.Overdue.ScanInterval, nil); err != nil {
		return err
	}

	l.Info("overdue scan scheduled",
		slog.String("lock_backend", cfg.Lock.Backend),
		slog.Duration("interval", cfg.Overdue.ScanInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	return g.Wait()
}

func newLocker(ctx context.Context, cfg config.Config, db *gorm.DB) (lock.Locker, error) {
	switch cfg.Lock.Backend {
	case "memory":
		return lock.NewMemoryLocker(), nil
	case "redis":
		client, err := lock.Connect(ctx, cfg.Lock.RedisURL, cfg.Database.MaxRetries, cfg.Database.RetryInterval)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return lock.NewRedisLocker(client), nil
	default:
		return lock.NewDatabaseLocker(db), nil
	}
}
