package coupon

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, c *Coupon) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id int) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	UpdateExpiry(ctx context.Context, id int, expiry time.Time) (*Coupon, error)

	// CountOtherRedemptions counts redemptions of couponID by users other
	// than userID.
	CountOtherRedemptions(ctx context.Context, couponID, userID int) (int, error)
	HasRedeemed(ctx context.Context, couponID, userID int) (bool, error)

	// Redeem locks the coupon row, re-checks expiry and limits as of now and
	// records the redemption.
	Redeem(ctx context.Context, userID, couponID int, paymentID *int, now time.Time) (*Redemption, error)
	ReleaseByPayment(ctx context.Context, paymentID int) (int64, error)

	WithTx(tx *sqlx.Tx) Repository
}
