package session

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, userID int, token string, expiresAt time.Time) (*Session, error)
	GetByToken(ctx context.Context, token string) (*Session, error)

	// LockUser serializes session changes for one user inside a transaction.
	LockUser(ctx context.Context, userID int) error
	CountActive(ctx context.Context, userID int, now time.Time) (int, error)
	// EvictOldest flags the single oldest active session expired.
	EvictOldest(ctx context.Context, userID int, now time.Time) (int64, error)
	ListActive(ctx context.Context, userID int, now time.Time) ([]Session, error)

	ExpireByToken(ctx context.Context, token string) (int64, error)
	ExpireAll(ctx context.Context, userID int) (int64, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)

	WithTx(tx *sqlx.Tx) Repository
}
