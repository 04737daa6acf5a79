package user

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, name, email, passwordHash, role string) (*User, error)
	CreateLinked(ctx context.Context, name, email, role string, provider LinkedProvider) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int) (*User, error)
	FindByProvider(ctx context.Context, provider LinkedProvider) (*User, error)
	LinkProvider(ctx context.Context, userID int, provider LinkedProvider) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	WithTx(tx *sqlx.Tx) Repository
}
