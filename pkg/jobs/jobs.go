// Package jobs holds the background work of the library: the overdue scan and
// the member notifications it and loan creation trigger.
package jobs

import (
	"context"
	"iter"
	"time"

	"library_tracking/pkg/lock"
	"library_tracking/pkg/models"
	"library_tracking/pkg/queue"
)

const (
	CheckOverdueLoans            = "check_overdue_loans"
	SendBatchOverdueNotification = "send_batch_overdue_notification"
	SendLoanNotification         = "send_loan_notification"

	// ScheduleQueue carries the work fanned out by the overdue scan.
	ScheduleQueue = "schedule"

	OverdueLockKey   = "overdue_loans_task"
	OverdueLockTTL   = 300 * time.Second
	DefaultBatchSize = 50
)

type LoanNotificationPayload struct {
	LoanID uint `json:"loan_id"`
}

type BatchOverduePayload struct {
	Members []models.MemberSummary `json:"members"`
}

// OverdueQuery is the read side the scan and the reminders need.
type OverdueQuery interface {
	OverdueMembers(ctx context.Context, asOf time.Time) iter.Seq2[models.MemberSummary, error]
	OverdueBookTitles(ctx context.Context, memberID uint, asOf time.Time) ([]string, error)
}

type LoanFinder interface {
	GetLoan(ctx context.Context, id uint) (*models.Loan, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...queue.EnqueueOption) (*queue.Task, error)
}

// Dispatcher schedules the confirmation for a newly created loan. Only the id
// travels with the task.
type Dispatcher struct {
	enqueuer Enqueuer
}

func NewDispatcher(enqueuer Enqueuer) *Dispatcher {
	return &Dispatcher{enqueuer: enqueuer}
}

func (d *Dispatcher) LoanCreated(ctx context.Context, loanID uint) error {
	_, err := d.enqueuer.Enqueue(ctx, SendLoanNotification, LoanNotificationPayload{LoanID: loanID})
	return err
}

// Handlers returns the queue handlers for every job of this package.
func Handlers(scanner *Scanner, notifications *Notifications) []queue.Handler {
	return []queue.Handler{
		queue.NewHandler(CheckOverdueLoans, func(ctx context.Context, _ struct{}) error {
			_, err := scanner.Run(ctx)
			return err
		}),
		queue.NewHandler(SendBatchOverdueNotification, notifications.SendBatchOverdue),
		queue.NewHandler(SendLoanNotification, notifications.SendLoanConfirmation),
	}
}

// Tables lists every model the service and the worker migrate.
func Tables() []any {
	return []any{
		&models.Author{},
		&models.Book{},
		&models.Member{},
		&models.Loan{},
		&queue.Task{},
		&lock.Record{},
	}
}
