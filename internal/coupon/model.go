package coupon

import (
	"database/sql"
	"time"
)

type Coupon struct {
	ID            int       `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	Discount      int64     `db:"discount" json:"discount"`
	IsPercentage  bool      `db:"is_percentage" json:"is_percentage"`
	MinValueCents int64     `db:"min_value_cents" json:"min_value_cents"`
	ExpiryDate    time.Time `db:"expiry_date" json:"expiry_date"`
	MaxUsers      int       `db:"max_users" json:"max_users"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DiscountFor returns the discount on amountCents, floored for percentage
// coupons and never more than the amount itself.
func (c *Coupon) DiscountFor(amountCents int64) int64 {
	discount := c.Discount
	if c.IsPercentage {
		discount = amountCents * c.Discount / 100
	}
	if discount > amountCents {
		return amountCents
	}
	return discount
}

func (c *Coupon) ExpiredAt(now time.Time) bool {
	return now.After(c.ExpiryDate)
}

type Redemption struct {
	ID        int           `db:"id" json:"id"`
	UserID    int           `db:"user_id" json:"user_id"`
	CouponID  int           `db:"coupon_id" json:"coupon_id"`
	PaymentID sql.NullInt64 `db:"payment_id" json:"-"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

type CreateCouponRequest struct {
	Code          string    `json:"code" binding:"required" validate:"min=3,max=64"`
	Discount      int64     `json:"discount" binding:"required"`
	IsPercentage  bool      `json:"is_percentage"`
	MinValueCents int64     `json:"min_value_cents"`
	ExpiryDate    time.Time `json:"expiry_date" binding:"required"`
	MaxUsers      int       `json:"max_users" binding:"required"`
}

type ValidateRequest struct {
	Code        string `json:"code" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required"`
}

type ValidateResponse struct {
	Code             string `json:"code"`
	DiscountCents    int64  `json:"discount_cents"`
	FinalAmountCents int64  `json:"final_amount_cents"`
}
