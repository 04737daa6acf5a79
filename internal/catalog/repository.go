package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"learncode/internal/apperr"
	"learncode/internal/db"
)

type repository struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewRepository(conn *sqlx.DB, timeout time.Duration) Repository {
	if timeout <= 0 {
		timeout = db.DefaultTimeout
	}
	return &repository{db: conn, timeout: timeout}
}

func (r *repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *repository) CreateItem(ctx context.Context, title string, creatorID int, priceCents int64, approved bool) (*Item, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO items (title, creator_id, price_cents, approved)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, creator_id, price_cents, approved, created_at
	`

	var item Item
	if err := r.db.GetContext(ctx, &item, query, title, creatorID, priceCents, approved); err != nil {
		return nil, db.StoreError(ctx, "create item", err)
	}

	return &item, nil
}

func (r *repository) GetItemByID(ctx context.Context, id int) (*Item, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, title, creator_id, price_cents, approved, created_at
		FROM items
		WHERE id = $1
	`

	var item Item
	err := r.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "item not found")
	}
	if err != nil {
		return nil, db.StoreError(ctx, "get item", err)
	}

	return &item, nil
}

func (r *repository) ListItems(ctx context.Context, onlyApproved bool) ([]Item, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, title, creator_id, price_cents, approved, created_at
		FROM items
		WHERE ($1 = FALSE OR approved = TRUE)
		ORDER BY created_at DESC
	`

	items := []Item{}
	if err := r.db.SelectContext(ctx, &items, query, onlyApproved); err != nil {
		return nil, db.StoreError(ctx, "list items", err)
	}

	return items, nil
}
