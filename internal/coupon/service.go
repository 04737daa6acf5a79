package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"learncode/internal/apperr"
	"learncode/internal/logger"
	"learncode/internal/metrics"
	"learncode/internal/tracing"
)

type Service interface {
	// Validate reports the discount couponCode gives userID on amountCents.
	// Checks run in order: not found, expired, below minimum, limit reached,
	// already redeemed.
	Validate(ctx context.Context, code string, amountCents int64, userID int) (int64, *Coupon, error)
	Redeem(ctx context.Context, userID, couponID int, paymentID *int) (*Redemption, error)
	Release(ctx context.Context, paymentID int) error

	Create(ctx context.Context, req CreateCouponRequest) (*Coupon, error)
	Enable(ctx context.Context, id int, newExpiry time.Time) (*Coupon, error)
	Disable(ctx context.Context, id int) (*Coupon, error)
	Get(ctx context.Context, id int) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)

	WithTx(tx *sqlx.Tx) Service
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{
		repo: repo,
		now:  time.Now,
	}
}

func (s *service) WithTx(tx *sqlx.Tx) Service {
	return &service{repo: s.repo.WithTx(tx), now: s.now}
}

func (s *service) Validate(ctx context.Context, code string, amountCents int64, userID int) (int64, *Coupon, error) {
	ctx, span := tracing.Start(ctx, "coupon.validate")
	discount, c, err := s.validate(ctx, strings.TrimSpace(code), amountCents, userID)
	tracing.End(span, err)

	if err != nil {
		metrics.RecordCouponValidation(string(apperr.KindOf(err)))
		return 0, nil, err
	}
	metrics.RecordCouponValidation("valid")
	return discount, c, nil
}

func (s *service) validate(ctx context.Context, code string, amountCents int64, userID int) (int64, *Coupon, error) {
	if amountCents <= 0 {
		return 0, nil, apperr.New(apperr.InvalidAmount, "amount must be positive")
	}

	c, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return 0, nil, err
	}

	if c.ExpiredAt(s.now()) {
		return 0, nil, apperr.New(apperr.Expired, "coupon has expired")
	}

	if amountCents < c.MinValueCents {
		return 0, nil, apperr.Errorf(apperr.BelowMinimum, "minimum amount for this coupon is %d", c.MinValueCents)
	}

	others, err := s.repo.CountOtherRedemptions(ctx, c.ID, userID)
	if err != nil {
		return 0, nil, err
	}
	if others >= c.MaxUsers {
		return 0, nil, apperr.New(apperr.LimitReached, "coupon usage limit reached")
	}

	redeemed, err := s.repo.HasRedeemed(ctx, c.ID, userID)
	if err != nil {
		return 0, nil, err
	}
	if redeemed {
		return 0, nil, apperr.New(apperr.AlreadyRedeemed, "coupon already redeemed")
	}

	return c.DiscountFor(amountCents), c, nil
}

func (s *service) Redeem(ctx context.Context, userID, couponID int, paymentID *int) (*Redemption, error) {
	red, err := s.repo.Redeem(ctx, userID, couponID, paymentID, s.now())
	if err != nil {
		return nil, err
	}
	metrics.RecordCouponRedemption()
	return red, nil
}

// Release frees the redemption tied to a payment that will never be captured.
func (s *service) Release(ctx context.Context, paymentID int) error {
	n, err := s.repo.ReleaseByPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("coupon redemption released", "payment_id", paymentID)
	}
	return nil
}

func (s *service) Create(ctx context.Context, req CreateCouponRequest) (*Coupon, error) {
	code := strings.TrimSpace(req.Code)
	switch {
	case code == "":
		return nil, apperr.New(apperr.Invalid, "code is required")
	case req.Discount <= 0:
		return nil, apperr.New(apperr.InvalidAmount, "discount must be positive")
	case req.IsPercentage && req.Discount > 100:
		return nil, apperr.New(apperr.InvalidAmount, "percentage discount cannot exceed 100")
	case req.MinValueCents < 0:
		return nil, apperr.New(apperr.InvalidAmount, "minimum value must not be negative")
	case req.MaxUsers < 1:
		return nil, apperr.New(apperr.Invalid, "max users must be at least 1")
	case !req.ExpiryDate.After(s.now()):
		return nil, apperr.New(apperr.Invalid, "expiry date must be in the future")
	}

	return s.repo.Create(ctx, &Coupon{
		Code:          code,
		Discount:      req.Discount,
		IsPercentage:  req.IsPercentage,
		MinValueCents: req.MinValueCents,
		ExpiryDate:    req.ExpiryDate,
		MaxUsers:      req.MaxUsers,
	})
}

func (s *service) Enable(ctx context.Context, id int, newExpiry time.Time) (*Coupon, error) {
	if !newExpiry.After(s.now()) {
		return nil, apperr.New(apperr.Invalid, "expiration date must be in the future")
	}
	return s.repo.UpdateExpiry(ctx, id, newExpiry)
}

// Disable expires the coupon immediately. Existing redemptions stay.
func (s *service) Disable(ctx context.Context, id int) (*Coupon, error) {
	return s.repo.UpdateExpiry(ctx, id, s.now())
}

func (s *service) Get(ctx context.Context, id int) (*Coupon, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context) ([]Coupon, error) {
	return s.repo.List(ctx)
}
