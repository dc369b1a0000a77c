package models

import (
	"time"

	"gorm.io/gorm"
)

// LoanPeriodDays is the lending period applied when a loan has no explicit due date.
const LoanPeriodDays = 14

type Genre string

const (
	GenreFiction        Genre = "fiction"
	GenreScience        Genre = "science"
	GenreNonFiction     Genre = "nonfiction"
	GenreScienceFiction Genre = "sci-fi"
	GenreProgramming    Genre = "dev"
	GenreBiography      Genre = "Biography"
	GenreOther          Genre = "Other"
)

func (g Genre) Valid() bool {
	switch g {
	case GenreFiction, GenreScience, GenreNonFiction, GenreScienceFiction,
		GenreProgramming, GenreBiography, GenreOther:
		return true
	}
	return false
}

type Author struct {
	ID        uint   `gorm:"primaryKey"`
	FirstName string `gorm:"size:100;not null"`
	LastName  string `gorm:"size:100;not null"`
	Biography string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Book struct {
	ID              uint   `gorm:"primaryKey"`
	Title           string `gorm:"size:200;not null"`
	AuthorID        uint   `gorm:"not null;index"`
	ISBN            string `gorm:"column:isbn;size:13;uniqueIndex;not null"`
	Genre           Genre  `gorm:"size:50;not null"`
	AvailableCopies int    `gorm:"not null;check:available_copies >= 0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Author Author `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
}

type Member struct {
	ID             uint      `gorm:"primaryKey"`
	Username       string    `gorm:"size:150;uniqueIndex;not null"`
	FirstName      string    `gorm:"size:150"`
	LastName       string    `gorm:"size:150"`
	Email          string    `gorm:"size:254"`
	MembershipDate time.Time `gorm:"type:date;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DisplayName is the name used to greet the member in notifications.
func (m Member) DisplayName() string {
	if m.FirstName != "" {
		return m.FirstName
	}
	return m.Username
}

func (m Member) Summary() MemberSummary {
	return MemberSummary{ID: m.ID, Name: m.DisplayName(), Email: m.Email}
}

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.MembershipDate.IsZero() {
		m.MembershipDate = Today()
	} else {
		m.MembershipDate = DateOf(m.MembershipDate)
	}
	return nil
}

// MemberSummary is the plain identifying data handed to deferred work instead of
// a live Member.
type MemberSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Loan struct {
	ID         uint       `gorm:"primaryKey"`
	BookID     uint       `gorm:"not null;index"`
	MemberID   uint       `gorm:"not null;index"`
	LoanDate   time.Time  `gorm:"type:date;not null"`
	DueDate    *time.Time `gorm:"type:date;index"`
	ReturnDate *time.Time `gorm:"type:date"`
	IsReturned bool       `gorm:"not null;default:false;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Book   Book   `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
	Member Member `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate stamps the loan date and derives the due date so that every
// persisted loan carries one.
func (l *Loan) BeforeCreate(tx *gorm.DB) error {
	if l.LoanDate.IsZero() {
		l.LoanDate = Today()
	} else {
		l.LoanDate = DateOf(l.LoanDate)
	}
	if l.DueDate == nil {
		due := l.LoanDate.AddDate(0, 0, LoanPeriodDays)
		l.DueDate = &due
	} else {
		due := DateOf(*l.DueDate)
		l.DueDate = &due
	}
	return nil
}

// IsOverdue reports whether the loan's due date lies strictly before the
// calendar day of now. Loans without a due date fall back to the loan date plus
// the lending period.
func (l Loan) IsOverdue(now time.Time) bool {
	if l.DueDate != nil {
		return l.DueDate.Before(DateOf(now))
	}
	return l.LoanDate.AddDate(0, 0, LoanPeriodDays).Before(now)
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Today() time.Time {
	return DateOf(time.Now())
}
