package payment

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusCreated  Status = "created"
	StatusCaptured Status = "captured"
	StatusFailed   Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCaptured || s == StatusFailed
}

// Payment tracks one gateway order. AmountCents is what the user is charged;
// the wallet is credited AmountCents + DiscountCents on capture.
type Payment struct {
	ID               int            `db:"id"`
	UserID           int            `db:"user_id"`
	GatewayOrderID   string         `db:"gateway_order_id"`
	GatewayPaymentID sql.NullString `db:"gateway_payment_id"`
	AmountCents      int64          `db:"amount_cents"`
	DiscountCents    int64          `db:"discount_cents"`
	Currency         string         `db:"currency"`
	Status           Status         `db:"status"`
	CouponCode       sql.NullString `db:"coupon_code"`
	CreditedAt       sql.NullTime   `db:"credited_at"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (p *Payment) CreditAmount() int64 {
	return p.AmountCents + p.DiscountCents
}

type Response struct {
	ID            int        `json:"id"`
	OrderID       string     `json:"order_id"`
	PaymentID     string     `json:"payment_id,omitempty"`
	AmountCents   int64      `json:"amount_cents"`
	DiscountCents int64      `json:"discount_cents"`
	Currency      string     `json:"currency"`
	Status        Status     `json:"status"`
	CouponCode    string     `json:"coupon_code,omitempty"`
	CreditedAt    *time.Time `json:"credited_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (p *Payment) ToResponse() Response {
	r := Response{
		ID:            p.ID,
		OrderID:       p.GatewayOrderID,
		PaymentID:     p.GatewayPaymentID.String,
		AmountCents:   p.AmountCents,
		DiscountCents: p.DiscountCents,
		Currency:      p.Currency,
		Status:        p.Status,
		CouponCode:    p.CouponCode.String,
		CreatedAt:     p.CreatedAt,
	}
	if p.CreditedAt.Valid {
		t := p.CreditedAt.Time
		r.CreditedAt = &t
	}
	return r
}

type InitiateRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	CouponCode  string `json:"coupon_code" validate:"omitempty,max=64"`
}

type InitiateResponse struct {
	OrderID       string `json:"order_id"`
	KeyID         string `json:"key_id"`
	AmountCents   int64  `json:"amount_cents"`
	DiscountCents int64  `json:"discount_cents"`
	Currency      string `json:"currency"`
	Receipt       string `json:"receipt"`
}

type ConfirmRequest struct {
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
	// AmountCents is what the client believes it paid. It is only compared
	// with the order and never trusted.
	AmountCents int64 `json:"amount_cents,omitempty" validate:"gte=0"`
}

type ConfirmResult struct {
	Payment          Response `json:"payment"`
	CreditedCents    int64    `json:"credited_cents"`
	AlreadyProcessed bool     `json:"already_processed"`
}
