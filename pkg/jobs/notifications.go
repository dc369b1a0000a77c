package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"library_tracking/pkg/loans"
	"library_tracking/pkg/models"
	"library_tracking/pkg/notify"
)

const (
	LoanConfirmationSubject = "Book Loaned Successfully"
	OverdueReminderSubject  = "Loan Overdue Reminder"
)

type Notifications struct {
	query    OverdueQuery
	loans    LoanFinder
	notifier notify.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

func NewNotifications(query OverdueQuery, finder LoanFinder, notifier notify.Notifier, logger *slog.Logger) *Notifications {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifications{
		query:    query,
		loans:    finder,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
}

// SendBatchOverdue reminds each member of the batch about their overdue books.
// Titles are looked up at send time. Members without an email are skipped.
func (n *Notifications) SendBatchOverdue(ctx context.Context, p BatchOverduePayload) error {
	asOf := n.now()

	for _, m := range p.Members {
		if m.Email == "" {
			n.logger.WarnContext(ctx, "member has no email, skipping overdue reminder",
				slog.Uint64("member_id", uint64(m.ID)))
			continue
		}

		titles, err := n.query.OverdueBookTitles(ctx, m.ID, asOf)
		if err != nil {
			return err
		}
		if err := n.notifier.Send(ctx, OverdueReminder(m, titles)); err != nil {
			return fmt.Errorf("send overdue reminder to member %d: %w", m.ID, err)
		}
	}
	return nil
}

// SendLoanConfirmation tells the member about a new loan. A loan that no
// longer exists is ignored.
func (n *Notifications) SendLoanConfirmation(ctx context.Context, p LoanNotificationPayload) error {
	loan, err := n.loans.GetLoan(ctx, p.LoanID)
	if errors.Is(err, loans.ErrLoanNotFound) {
		n.logger.InfoContext(ctx, "loan gone before confirmation was sent",
			slog.Uint64("loan_id", uint64(p.LoanID)))
		return nil
	}
	if err != nil {
		return err
	}
	if loan.Member.Email == "" {
		n.logger.WarnContext(ctx, "member has no email, skipping loan confirmation",
			slog.Uint64("loan_id", uint64(loan.ID)))
		return nil
	}

	if err := n.notifier.Send(ctx, LoanConfirmation(loan)); err != nil {
		return fmt.Errorf("send loan confirmation for loan %d: %w", loan.ID, err)
	}
	return nil
}

func LoanConfirmation(loan *models.Loan) notify.Message {
	return notify.Message{
		Subject: LoanConfirmationSubject,
		Body: fmt.Sprintf("Hello %s,\n\nYou have successfully loaned \"%s\".\nPlease return it by the due date.",
			loan.Member.Username, loan.Book.Title),
		To: loan.Member.Email,
	}
}

// OverdueReminder lists one title per line. An empty list still yields a message.
func OverdueReminder(m models.MemberSummary, titles []string) notify.Message {
	return notify.Message{
		Subject: OverdueReminderSubject,
		Body: fmt.Sprintf("Hello %s,\n\nThese books are overdue:\n%s\n\nPlease return them.",
			m.Name, strings.Join(titles, "\n")),
		To: m.Email,
	}
}
