package lock

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is a row of the task_locks table.
type Record struct {
	Name      string    `gorm:"primaryKey;size:191"`
	Owner     string    `gorm:"size:64;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

func (Record) TableName() string {
	return "task_locks"
}

// DatabaseLocker stores locks as rows so that every process sharing the
// database sees them. The owner column holds the token of the acquire that
// wrote the row.
type DatabaseLocker struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDatabaseLocker(db *gorm.DB) *DatabaseLocker {
	return &DatabaseLocker{
		db:  db,
		now: time.Now,
	}
}

func (l *DatabaseLocker) WithClock(now func() time.Time) *DatabaseLocker {
	l.now = now
	return l
}

func (l *DatabaseLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	now := l.now().UTC()
	db := l.db.WithContext(ctx)

	// expired rows belong to holders that never released
	err := db.Where("name = ? AND expires_at <= ?", key, now).Delete(&Record{}).Error
	if err != nil {
		return "", false, err
	}

	token := newToken()
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Record{
		Name:      key,
		Owner:     token,
		ExpiresAt: now.Add(ttl),
	})
	if res.Error != nil {
		return "", false, res.Error
	}
	if res.RowsAffected != 1 {
		return "", false, nil
	}
	return token, true, nil
}

func (l *DatabaseLocker) Release(ctx context.Context, key, token string) error {
	return l.db.WithContext(ctx).
		Where("name = ? AND owner = ?", key, token).
		Delete(&Record{}).Error
}
