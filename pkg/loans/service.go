package loans

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"library_tracking/pkg/models"
)

// LoanNotifier is told about every committed loan so a confirmation can be sent
// out of band.
type LoanNotifier interface {
	LoanCreated(ctx context.Context, loanID uint) error
}

type Service struct {
	db       *gorm.DB
	store    *Store
	notifier LoanNotifier
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n LoanNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(db *gorm.DB, store *Store, opts ...Option) *Service {
	s := &Service{
		db:     db,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Store() *Store {
	return s.store
}

// CreateLoan lends one copy of a book to a member. The copy count is decremented
// only while it is positive, so two requests for the last copy cannot both win.
func (s *Service) CreateLoan(ctx context.Context, bookID, memberID uint) (*models.Loan, error) {
	var loan models.Loan

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.Member
		if err := tx.Select("id").First(&member, memberID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}

		res := tx.Model(&models.Book{}).
			Where("id = ? AND available_copies > 0", bookID).
			UpdateColumn("available_copies", gorm.Expr("available_copies - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Book{}).Where("id = ?", bookID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrBookNotFound
			}
			return invalid("No available copies for this book.")
		}

		loan = models.Loan{
			BookID:   bookID,
			MemberID: memberID,
			LoanDate: models.DateOf(s.now()),
		}
		return tx.Omit(clause.Associations).Create(&loan).Error
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.LoanCreated(ctx, loan.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to schedule loan confirmation",
				slog.Uint64("loan_id", uint64(loan.ID)),
				slog.Any("error", err))
		}
	}
	return &loan, nil
}

// ExtendDueDate pushes the due date of an active, not yet overdue loan forward by
// days. Only due_date is written.
func (s *Service) ExtendDueDate(ctx context.Context, loanID uint, days int) (*models.Loan, error) {
	if days <= 0 {
		return nil, invalid("Additional days must be a positive number.")
	}

	var loan models.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockLoan(tx, &loan, loanID); err != nil {
			return err
		}
		if loan.IsReturned {
			return invalid("Cannot extend the due date of a returned loan.")
		}
		if loan.IsOverdue(s.now()) {
			return invalid("Cannot extend the due date of an overdue loan.")
		}

		due := loan.LoanDate.AddDate(0, 0, models.LoanPeriodDays)
		if loan.DueDate != nil {
			due = *loan.DueDate
		}
		due = models.DateOf(due).AddDate(0, 0, days)

		if err := tx.Model(&loan).UpdateColumn("due_date", due).Error; err != nil {
			return err
		}
		loan.DueDate = &due
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// ReturnLoan marks the loan returned today and puts the copy back on the shelf.
func (s *Service) ReturnLoan(ctx context.Context, loanID uint) (*models.Loan, error) {
	var loan models.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockLoan(tx, &loan, loanID); err != nil {
			return err
		}
		if loan.IsReturned {
			return invalid("This loan has already been returned.")
		}

		today := models.DateOf(s.now())
		err := tx.Model(&loan).Updates(map[string]any{
			"is_returned": true,
			"return_date": today,
		}).Error
		if err != nil {
			return err
		}
		loan.IsReturned = true
		loan.ReturnDate = &today

		return restock(tx, loan.BookID, 1)
	})
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// SetDueDate overwrites the due date of a loan. Unlike ExtendDueDate it also
// applies to returned and overdue loans.
func (s *Service) SetDueDate(ctx context.Context, loanID uint, due time.Time) (*models.Loan, error) {
	due = models.DateOf(due)

	var loan models.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockLoan(tx, &loan, loanID); err != nil {
			return err
		}
		if due.Before(models.DateOf(loan.LoanDate)) {
			return invalid("Due date cannot be before the loan date.")
		}
		if err := tx.Model(&loan).UpdateColumn("due_date", due).Error; err != nil {
			return err
		}
		loan.DueDate = &due
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// DeleteLoan removes a loan. An unreturned loan puts its copy back on the shelf.
func (s *Service) DeleteLoan(ctx context.Context, loanID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loan models.Loan
		if err := lockLoan(tx, &loan, loanID); err != nil {
			return err
		}
		if err := tx.Delete(&models.Loan{}, loan.ID).Error; err != nil {
			return err
		}
		if loan.IsReturned {
			return nil
		}
		return restock(tx, loan.BookID, 1)
	})
}

// DeleteMember removes a member together with their loans. Copies held on
// unreturned loans go back on the shelf.
func (s *Service) DeleteMember(ctx context.Context, memberID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.Member
		if err := tx.Select("id").First(&member, memberID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}

		var held []struct {
			BookID uint
			Copies int
		}
		err := tx.Model(&models.Loan{}).
			Select("book_id, COUNT(*) AS copies").
			Where("member_id = ? AND is_returned = ?", memberID, false).
			Group("book_id").
			Scan(&held).Error
		if err != nil {
			return err
		}
		for _, h := range held {
			if err := restock(tx, h.BookID, h.Copies); err != nil {
				return err
			}
		}

		if err := tx.Where("member_id = ?", memberID).Delete(&models.Loan{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Member{}, memberID).Error
	})
}

func (s *Service) TopActiveMembers(ctx context.Context, n int) ([]ActiveMember, error) {
	if n <= 0 {
		return nil, invalid("n must be a positive number.")
	}
	return s.store.TopActiveMembers(ctx, n)
}

func lockLoan(tx *gorm.DB, loan *models.Loan, id uint) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(loan, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrLoanNotFound
	}
	return err
}

func restock(tx *gorm.DB, bookID uint, n int) error {
	return tx.Model(&models.Book{}).
		Where("id = ?", bookID).
		UpdateColumn("available_copies", gorm.Expr("available_copies + ?", n)).Error
}
