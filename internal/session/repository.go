package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"learncode/internal/apperr"
	"learncode/internal/db"
)

const sessionColumns = `id, user_id, token, expired, created_at, expires_at`

type repository struct {
	db      *sqlx.DB
	tx      *sqlx.Tx
	timeout time.Duration
}

func NewRepository(conn *sqlx.DB, timeout time.Duration) Repository {
	if timeout <= 0 {
		timeout = db.DefaultTimeout
	}
	return &repository{db: conn, timeout: timeout}
}

func (r *repository) WithTx(tx *sqlx.Tx) Repository {
	return &repository{db: r.db, tx: tx, timeout: r.timeout}
}

func (r *repository) ext() sqlx.ExtContext {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *repository) Create(ctx context.Context, userID int, token string, expiresAt time.Time) (*Session, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	s := &Session{}
	err := sqlx.GetContext(ctx, r.ext(), s,
		`INSERT INTO sessions (user_id, token, expires_at) VALUES ($1, $2, $3) RETURNING `+sessionColumns,
		userID, token, expiresAt,
	)
	if db.IsUniqueViolation(err) {
		return nil, apperr.Wrap(apperr.Conflict, "session token already registered", err)
	}
	if err != nil {
		return nil, db.StoreError(ctx, "create session", err)
	}
	return s, nil
}

func (r *repository) GetByToken(ctx context.Context, token string) (*Session, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	s := &Session{}
	err := sqlx.GetContext(ctx, r.ext(), s, `SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "session not found")
	}
	if err != nil {
		return nil, db.StoreError(ctx, "get session", err)
	}
	return s, nil
}

func (r *repository) LockUser(ctx context.Context, userID int) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var id int
	err := sqlx.GetContext(ctx, r.ext(), &id, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		return db.StoreError(ctx, "lock user", err)
	}
	return nil
}

func (r *repository) CountActive(ctx context.Context, userID int, now time.Time) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var n int
	err := sqlx.GetContext(ctx, r.ext(), &n,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND expired = FALSE AND expires_at > $2`,
		userID, now,
	)
	if err != nil {
		return 0, db.StoreError(ctx, "count sessions", err)
	}
	return n, nil
}

func (r *repository) EvictOldest(ctx context.Context, userID int, now time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.ext().ExecContext(ctx,
		`UPDATE sessions SET expired = TRUE
		 WHERE id = (SELECT id FROM sessions WHERE user_id = $1 AND expired = FALSE AND expires_at > $2 ORDER BY created_at ASC, id ASC LIMIT 1 FOR UPDATE SKIP LOCKED)`,
		userID, now,
	)
	if err != nil {
		return 0, db.StoreError(ctx, "evict session", err)
	}
	return res.RowsAffected()
}

func (r *repository) ListActive(ctx context.Context, userID int, now time.Time) ([]Session, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	sessions := []Session{}
	err := sqlx.SelectContext(ctx, r.ext(), &sessions,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 AND expired = FALSE AND expires_at > $2 ORDER BY created_at ASC`,
		userID, now,
	)
	if err != nil {
		return nil, db.StoreError(ctx, "list sessions", err)
	}
	return sessions, nil
}

func (r *repository) ExpireByToken(ctx context.Context, token string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.ext().ExecContext(ctx, `UPDATE sessions SET expired = TRUE WHERE token = $1 AND expired = FALSE`, token)
	if err != nil {
		return 0, db.StoreError(ctx, "expire session", err)
	}
	return res.RowsAffected()
}

func (r *repository) ExpireAll(ctx context.Context, userID int) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.ext().ExecContext(ctx, `UPDATE sessions SET expired = TRUE WHERE user_id = $1 AND expired = FALSE`, userID)
	if err != nil {
		return 0, db.StoreError(ctx, "expire sessions", err)
	}
	return res.RowsAffected()
}

func (r *repository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.ext().ExecContext(ctx,
		`DELETE FROM sessions WHERE (expired = TRUE OR expires_at <= $1) AND created_at < $1`,
		before,
	)
	if err != nil {
		return 0, db.StoreError(ctx, "purge sessions", err)
	}
	return res.RowsAffected()
}
