package coupon

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"learncode/internal/apperr"
	"learncode/internal/db"
)

const couponColumns = `id, code, discount, is_percentage, min_value_cents, expiry_date, max_users, created_at`

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

func (r *repository) Create(ctx context.Context, c *Coupon) (*Coupon, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	created := &Coupon{}
	err := sqlx.GetContext(ctx, r.ext(), created,
		`INSERT INTO coupons (code, discount, is_percentage, min_value_cents, expiry_date, max_users)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+couponColumns,
		c.Code, c.Discount, c.IsPercentage, c.MinValueCents, c.ExpiryDate, c.MaxUsers,
	)
	if db.IsUniqueViolation(err) {
		return nil, apperr.Wrap(apperr.Conflict, "coupon code already exists", err)
	}
	if err != nil {
		return nil, db.StoreError(ctx, "create coupon", err)
	}
	return created, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.getOne(ctx, r.ext(), `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code)
}

func (r *repository) GetByID(ctx context.Context, id int) (*Coupon, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.getOne(ctx, r.ext(), `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
}

func (r *repository) getOne(ctx context.Context, q sqlx.QueryerContext, query string, arg interface{}) (*Coupon, error) {
	c := &Coupon{}
	err := sqlx.GetContext(ctx, q, c, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "coupon not found")
	}
	if err != nil {
		return nil, db.StoreError(ctx, "get coupon", err)
	}
	return c, nil
}

func (r *repository) List(ctx context.Context) ([]Coupon, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	coupons := []Coupon{}
	err := sqlx.SelectContext(ctx, r.ext(), &coupons, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC`)
	if err != nil {
		return nil, db.StoreError(ctx, "list coupons", err)
	}
	return coupons, nil
}

func (r *repository) UpdateExpiry(ctx context.Context, id int, expiry time.Time) (*Coupon, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	c := &Coupon{}
	err := sqlx.GetContext(ctx, r.ext(), c,
		`UPDATE coupons SET expiry_date = $1 WHERE id = $2 RETURNING `+couponColumns,
		expiry, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "coupon not found")
	}
	if err != nil {
		return nil, db.StoreError(ctx, "update coupon expiry", err)
	}
	return c, nil
}

func (r *repository) CountOtherRedemptions(ctx context.Context, couponID, userID int) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return countOthers(ctx, r.ext(), couponID, userID)
}

func (r *repository) HasRedeemed(ctx context.Context, couponID, userID int) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return hasRedeemed(ctx, r.ext(), couponID, userID)
}

func (r *repository) Redeem(ctx context.Context, userID, couponID int, paymentID *int, now time.Time) (*Redemption, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	red := &Redemption{}
	run := func(tx *sqlx.Tx) error {
		c, err := r.getOne(ctx, tx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1 FOR UPDATE`, couponID)
		if err != nil {
			return err
		}
		if c.ExpiredAt(now) {
			return apperr.New(apperr.Expired, "coupon has expired")
		}

		others, err := countOthers(ctx, tx, couponID, userID)
		if err != nil {
			return err
		}
		if others >= c.MaxUsers {
			return apperr.New(apperr.LimitReached, "coupon usage limit reached")
		}

		redeemed, err := hasRedeemed(ctx, tx, couponID, userID)
		if err != nil {
			return err
		}
		if redeemed {
			return apperr.New(apperr.AlreadyRedeemed, "coupon already redeemed")
		}

		err = sqlx.GetContext(ctx, tx, red,
			`INSERT INTO coupon_redemptions (user_id, coupon_id, payment_id) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, coupon_id) DO NOTHING
			 RETURNING id, user_id, coupon_id, payment_id, created_at`,
			userID, couponID, paymentID,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.AlreadyRedeemed, "coupon already redeemed")
		}
		return err
	}

	var err error
	if r.tx != nil {
		err = run(r.tx)
	} else {
		err = db.WithTx(ctx, r.db, run)
	}
	if err != nil {
		return nil, db.StoreError(ctx, "redeem coupon", err)
	}
	return red, nil
}

func (r *repository) ReleaseByPayment(ctx context.Context, paymentID int) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.ext().ExecContext(ctx, `DELETE FROM coupon_redemptions WHERE payment_id = $1`, paymentID)
	if err != nil {
		return 0, db.StoreError(ctx, "release redemption", err)
	}
	return res.RowsAffected()
}

func countOthers(ctx context.Context, q sqlx.QueryerContext, couponID, userID int) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = $1 AND user_id <> $2`,
		couponID, userID,
	)
	if err != nil {
		return 0, db.StoreError(ctx, "count redemptions", err)
	}
	return n, nil
}

func hasRedeemed(ctx context.Context, q sqlx.QueryerContext, couponID, userID int) (bool, error) {
	ok, err := db.Exists(ctx, q,
		`SELECT EXISTS(SELECT 1 FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2)`,
		couponID, userID,
	)
	if err != nil {
		return false, db.StoreError(ctx, "check redemption", err)
	}
	return ok, nil
}
