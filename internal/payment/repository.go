package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"learncode/internal/apperr"
	"learncode/internal/db"
)

const paymentColumns = `id, user_id, gateway_order_id, gateway_payment_id, amount_cents, discount_cents, currency, status, coupon_code, credited_at, created_at, updated_at`

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

func (r *repository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	created := &Payment{}
	err := sqlx.GetContext(ctx, r.ext(), created,
		`INSERT INTO payments (user_id, gateway_order_id, amount_cents, discount_cents, currency, status, coupon_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+paymentColumns,
		p.UserID, p.GatewayOrderID, p.AmountCents, p.DiscountCents, p.Currency, StatusCreated, p.CouponCode,
	)
	if db.IsUniqueViolation(err) {
		return nil, apperr.Wrap(apperr.Conflict, "payment order already recorded", err)
	}
	if err != nil {
		return nil, db.StoreError(ctx, "create payment", err)
	}
	return created, nil
}

func (r *repository) GetByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.getByOrderID(ctx, orderID)
}

func (r *repository) getByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	p := &Payment{}
	err := sqlx.GetContext(ctx, r.ext(), p, `SELECT `+paymentColumns+` FROM payments WHERE gateway_order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "payment not found")
	}
	if err != nil {
		return nil, db.StoreError(ctx, "get payment", err)
	}
	return p, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int) ([]Payment, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	payments := []Payment{}
	err := sqlx.SelectContext(ctx, r.ext(), &payments,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, db.StoreError(ctx, "list payments", err)
	}
	return payments, nil
}

// Transition relies on the status = 'created' guard so at most one caller
// ever moves a payment out of created.
func (r *repository) Transition(ctx context.Context, orderID string, to Status, gatewayPaymentID string) (*Payment, bool, error) {
	if !to.Terminal() {
		return nil, false, apperr.Errorf(apperr.Invalid, "cannot transition to %s", to)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	p := &Payment{}
	err := sqlx.GetContext(ctx, r.ext(), p,
		`UPDATE payments SET status = $1, gateway_payment_id = COALESCE($2, gateway_payment_id), updated_at = NOW()
		 WHERE gateway_order_id = $3 AND status = 'created'
		 RETURNING `+paymentColumns,
		to, sql.NullString{String: gatewayPaymentID, Valid: gatewayPaymentID != ""}, orderID,
	)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, db.StoreError(ctx, "transition payment", err)
	}

	current, err := r.getByOrderID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (r *repository) MarkCredited(ctx context.Context, id int) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.ext().ExecContext(ctx,
		`UPDATE payments SET credited_at = NOW(), updated_at = NOW() WHERE id = $1 AND credited_at IS NULL`,
		id,
	)
	if err != nil {
		return false, db.StoreError(ctx, "mark payment credited", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) ListUncredited(ctx context.Context, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	payments := []Payment{}
	err := sqlx.SelectContext(ctx, r.ext(), &payments,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = 'captured' AND credited_at IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, db.StoreError(ctx, "list uncredited payments", err)
	}
	return payments, nil
}

// ListStale returns orders still in created that were opened before cutoff.
func (r *repository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	payments := []Payment{}
	err := sqlx.SelectContext(ctx, r.ext(), &payments,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = 'created' AND created_at < $1
		 ORDER BY id
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, db.StoreError(ctx, "list stale payments", err)
	}
	return payments, nil
}
