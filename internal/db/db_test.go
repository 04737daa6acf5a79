package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learncode/internal/apperr"
)

func setupMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(mockDB, "sqlmock")
	t.Cleanup(func() { sqlxDB.Close() })
	return sqlxDB, mock
}

func TestWithTx_Commit(t *testing.T) {
	sqlxDB, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE items SET approved = TRUE WHERE id = $1")).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := WithTx(context.Background(), sqlxDB, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("UPDATE items SET approved = TRUE WHERE id = $1", 1)
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	sqlxDB, mock := setupMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := NewTxRunner(sqlxDB).InTx(context.Background(), func(tx *sqlx.Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	sqlxDB, mock := setupMock(t)
	query := "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)"

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := Exists(context.Background(), sqlxDB, query, 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505"}

	assert.True(t, IsUniqueViolation(dup))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"plain", errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestStoreError(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, StoreError(ctx, "noop", nil))

	notFound := apperr.New(apperr.NotFound, "missing")
	assert.Same(t, notFound, StoreError(ctx, "get", notFound))

	err := StoreError(ctx, "get item", &pq.Error{Code: "08006"})
	assert.True(t, apperr.IsKind(err, apperr.Unavailable))
	assert.Contains(t, err.Error(), "get item")

	err = StoreError(ctx, "get item", errors.New("syntax error"))
	assert.False(t, apperr.IsKind(err, apperr.Unavailable))
	assert.EqualError(t, err, "get item: syntax error")

	expired, cancel := context.WithCancel(ctx)
	cancel()
	err = StoreError(expired, "get item", errors.New("canceling query"))
	assert.True(t, apperr.IsKind(err, apperr.Unavailable))
}

func TestStoreError_StalledQuery(t *testing.T) {
	sqlxDB, mock := setupMock(t)
	query := "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)"

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(7).
		WillDelayFor(2 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Exists(ctx, sqlxDB, query, 7)
	err = StoreError(ctx, "check user", err)

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, apperr.IsKind(err, apperr.Unavailable))
}
