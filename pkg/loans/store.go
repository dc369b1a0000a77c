package loans

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"gorm.io/gorm"

	"library_tracking/pkg/models"
)

const DefaultPageSize = 500

// Store holds the read side of loans: lookups, the overdue scan and rankings.
type Store struct {
	db       *gorm.DB
	pageSize int
}

type StoreOption func(*Store)

// WithPageSize sets how many members OverdueMembers fetches per round trip.
func WithPageSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewStore(db *gorm.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetLoan loads a loan together with its book and member.
func (s *Store) GetLoan(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	err := s.db.WithContext(ctx).Preload("Book").Preload("Member").First(&loan, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return &loan, nil
}

// OverdueMembers streams every member holding at least one unreturned loan due
// on or before the day of asOf. Members are read in pages ordered by id, so each
// appears once and only one page is held in memory. The sequence is single-pass.
func (s *Store) OverdueMembers(ctx context.Context, asOf time.Time) iter.Seq2[models.MemberSummary, error] {
	today := models.DateOf(asOf)

	return func(yield func(models.MemberSummary, error) bool) {
		var lastID uint
		for {
			overdue := s.db.Model(&models.Loan{}).
				Select("1").
				Where("loans.member_id = members.id").
				Where("loans.is_returned = ? AND loans.due_date <= ?", false, today)

			var page []models.Member
			err := s.db.WithContext(ctx).
				Where("EXISTS (?)", overdue).
				Where("members.id > ?", lastID).
				Order("members.id").
				Limit(s.pageSize).
				Find(&page).Error
			if err != nil {
				yield(models.MemberSummary{}, fmt.Errorf("fetch overdue members after id %d: %w", lastID, err))
				return
			}

			for _, m := range page {
				if !yield(m.Summary(), nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			lastID = page[len(page)-1].ID
		}
	}
}

// OverdueBookTitles returns one title per unreturned loan of the member whose
// due date is strictly before the day of asOf, oldest due date first.
func (s *Store) OverdueBookTitles(ctx context.Context, memberID uint, asOf time.Time) ([]string, error) {
	var titles []string
	err := s.db.WithContext(ctx).
		Model(&models.Loan{}).
		Joins("JOIN books ON books.id = loans.book_id").
		Where("loans.member_id = ?", memberID).
		Where("loans.is_returned = ? AND loans.due_date < ?", false, models.DateOf(asOf)).
		Order("loans.due_date, loans.id").
		Pluck("books.title", &titles).Error
	if err != nil {
		return nil, fmt.Errorf("fetch overdue titles for member %d: %w", memberID, err)
	}
	if titles == nil {
		titles = []string{}
	}
	return titles, nil
}

type ActiveMember struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	ActiveLoans int64  `json:"active_loans"`
}

// TopActiveMembers ranks members by their number of unreturned loans. Ties keep
// member id order.
func (s *Store) TopActiveMembers(ctx context.Context, n int) ([]ActiveMember, error) {
	members := []ActiveMember{}
	err := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Select("members.id, members.username, members.first_name, members.last_name, members.email, COUNT(loans.id) AS active_loans").
		Joins("LEFT JOIN loans ON loans.member_id = members.id AND loans.is_returned = ?", false).
		Group("members.id, members.username, members.first_name, members.last_name, members.email").
		Order("active_loans DESC, members.id").
		Limit(n).
		Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
