package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library_tracking/pkg/config"
	"library_tracking/pkg/models"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)

	require.NoError(t, Migrate(db, &models.Author{}, &models.Book{}, &models.Member{}, &models.Loan{}))
	assert.True(t, db.Migrator().HasTable(&models.Loan{}))
	assert.True(t, db.Migrator().HasColumn(&models.Loan{}, "due_date"))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.Database{Driver: "mysql"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestOpenSQLiteDriver(t *testing.T) {
	db, err := Open(config.Database{Driver: "sqlite", SQLitePath: ":memory:", MaxRetries: 1})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}

func TestIsUniqueViolation(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db, &models.Member{}))

	require.NoError(t, db.Create(&models.Member{Username: "jdoe"}).Error)
	err = db.Create(&models.Member{Username: "jdoe"}).Error

	assert.True(t, IsUniqueViolation(err))
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}
