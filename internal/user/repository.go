package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"learncode/internal/apperr"
	"learncode/internal/db"
)

const userColumns = `id, name, email, password_hash, role, google_id, github_id, created_at`

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

func (r *repository) Create(ctx context.Context, name, email, passwordHash, role string) (*User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var u User
	err := sqlx.GetContext(ctx, r.ext(), &u,
		`INSERT INTO users (name, email, password_hash, role) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		name, email, passwordHash, role,
	)
	if db.IsUniqueViolation(err) {
		return nil, apperr.Wrap(apperr.Conflict, "email already registered", err)
	}
	if err != nil {
		return nil, db.StoreError(ctx, "create user", err)
	}
	return &u, nil
}

func (r *repository) CreateLinked(ctx context.Context, name, email, role string, provider LinkedProvider) (*User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, ok := provider.column()
	if !ok {
		return nil, apperr.Errorf(apperr.Invalid, "unsupported provider %q", provider.Kind)
	}

	var u User
	err := sqlx.GetContext(ctx, r.ext(), &u,
		`INSERT INTO users (name, email, role, `+col+`) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		name, email, role, provider.ProviderID,
	)
	if db.IsUniqueViolation(err) {
		return nil, apperr.Wrap(apperr.Conflict, "account already exists", err)
	}
	if err != nil {
		return nil, db.StoreError(ctx, "create linked user", err)
	}
	return &u, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *repository) FindByID(ctx context.Context, id int) (*User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *repository) FindByProvider(ctx context.Context, provider LinkedProvider) (*User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, ok := provider.column()
	if !ok {
		return nil, apperr.Errorf(apperr.Invalid, "unsupported provider %q", provider.Kind)
	}
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE `+col+` = $1`, provider.ProviderID)
}

func (r *repository) LinkProvider(ctx context.Context, userID int, provider LinkedProvider) (*User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	col, ok := provider.column()
	if !ok {
		return nil, apperr.Errorf(apperr.Invalid, "unsupported provider %q", provider.Kind)
	}

	var u User
	err := sqlx.GetContext(ctx, r.ext(), &u,
		`UPDATE users SET `+col+` = $1 WHERE id = $2 AND (`+col+` IS NULL OR `+col+` = $1) RETURNING `+userColumns,
		provider.ProviderID, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.Conflict, "account already linked to a different identity")
	}
	if db.IsUniqueViolation(err) {
		return nil, apperr.Wrap(apperr.Conflict, "provider identity linked to another user", err)
	}
	if err != nil {
		return nil, db.StoreError(ctx, "link provider", err)
	}
	return &u, nil
}

func (r *repository) EmailExists(ctx context.Context, email string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ok, err := db.Exists(ctx, r.ext(), `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email)
	if err != nil {
		return false, db.StoreError(ctx, "check email", err)
	}
	return ok, nil
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, r.ext(), &u, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		return nil, db.StoreError(ctx, "find user", err)
	}
	return &u, nil
}
