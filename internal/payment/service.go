package payment

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"

	"learncode/internal/apperr"
	"learncode/internal/coupon"
	"learncode/internal/db"
	"learncode/internal/events"
	"learncode/internal/gateway"
	"learncode/internal/logger"
	"learncode/internal/metrics"
	"learncode/internal/tracing"
	"learncode/internal/wallet"
)

const (
	EventCaptured = "payment.captured"
	EventFailed   = "payment.failed"

	defaultCurrency = "INR"

	sourceConfirm = "confirm"
	sourceWebhook = "webhook"
)

type Service interface {
	Initiate(ctx context.Context, userID int, req InitiateRequest) (*InitiateResponse, error)
	Confirm(ctx context.Context, userID int, req ConfirmRequest) (*ConfirmResult, error)
	HandleWebhook(ctx context.Context, event gateway.WebhookEvent) error
	Reconcile(ctx context.Context, limit int) (int, error)
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	Get(ctx context.Context, orderID string) (*Payment, error)
	ListByUser(ctx context.Context, userID int) ([]Payment, error)
}

// Verifier checks client confirmation signatures.
type Verifier interface {
	Verify(orderID, paymentID, signature string) bool
}

type Deps struct {
	Repo      Repository
	Wallets   wallet.Repository
	Coupons   coupon.Service
	Gateway   gateway.Client
	Verifier  Verifier
	Tx        db.TxRunner
	Publisher events.Publisher
	KeyID     string
	Now       func() time.Time
}

type service struct {
	Deps
}

func NewService(deps Deps) Service {
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{Deps: deps}
}

func (s *service) Initiate(ctx context.Context, userID int, req InitiateRequest) (*InitiateResponse, error) {
	ctx, span := tracing.Start(ctx, "payment.initiate")
	span.SetAttributes(attribute.Int("user.id", userID), attribute.Int64("payment.amount", req.AmountCents))

	resp, err := s.initiate(ctx, userID, req)
	tracing.End(span, err)
	return resp, err
}

func (s *service) initiate(ctx context.Context, userID int, req InitiateRequest) (*InitiateResponse, error) {
	if req.AmountCents <= 0 {
		return nil, apperr.New(apperr.InvalidAmount, "amount must be positive")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	code := strings.TrimSpace(req.CouponCode)

	var (
		discount int64
		cp       *coupon.Coupon
	)
	if code != "" {
		var err error
		discount, cp, err = s.Coupons.Validate(ctx, code, req.AmountCents, userID)
		if err != nil {
			return nil, err
		}
	}

	finalAmount := req.AmountCents - discount
	if finalAmount <= 0 {
		return nil, apperr.New(apperr.InvalidAmount, "amount after discount must be positive")
	}

	receipt := newReceipt(userID)
	notes := map[string]string{"userId": strconv.Itoa(userID)}
	if cp != nil {
		notes["couponCode"] = cp.Code
	}

	order, err := s.Gateway.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   finalAmount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, err
	}

	// The coupon is redeemed in the same transaction as the payment row, with
	// the coupon locked and its limits re-checked at commit time.
	err = s.Tx.InTx(ctx, func(tx *sqlx.Tx) error {
		p, err := s.Repo.WithTx(tx).Create(ctx, &Payment{
			UserID:         userID,
			GatewayOrderID: order.ID,
			AmountCents:    finalAmount,
			DiscountCents:  discount,
			Currency:       currency,
			CouponCode:     sql.NullString{String: code, Valid: cp != nil},
		})
		if err != nil {
			return err
		}
		if cp != nil {
			if _, err := s.Coupons.WithTx(tx).Redeem(ctx, userID, cp.ID, &p.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn("payment initiation rolled back", "user_id", userID, "order_id", order.ID, "error", err)
		return nil, err
	}

	metrics.RecordPayment(string(StatusCreated))
	events.Emit(ctx, s.Publisher, events.Event{
		Type:        events.PaymentInitiated,
		UserID:      userID,
		Reference:   order.ID,
		AmountCents: finalAmount,
	})
	logger.Info("payment initiated", "user_id", userID, "order_id", order.ID, "amount_cents", finalAmount, "discount_cents", discount)

	return &InitiateResponse{
		OrderID:       order.ID,
		KeyID:         s.KeyID,
		AmountCents:   finalAmount,
		DiscountCents: discount,
		Currency:      currency,
		Receipt:       receipt,
	}, nil
}

// Confirm verifies the client-side signature before touching any state, then
// captures the payment and credits the owner's wallet once.
func (s *service) Confirm(ctx context.Context, userID int, req ConfirmRequest) (*ConfirmResult, error) {
	ctx, span := tracing.Start(ctx, "payment.confirm")
	span.SetAttributes(attribute.String("payment.order_id", req.OrderID))

	result, err := s.confirm(ctx, userID, req)
	tracing.End(span, err)
	return result, err
}

func (s *service) confirm(ctx context.Context, userID int, req ConfirmRequest) (*ConfirmResult, error) {
	if !s.Verifier.Verify(req.OrderID, req.PaymentID, req.Signature) {
		logger.Warn("payment signature mismatch", "user_id", userID, "order_id", req.OrderID)
		return nil, apperr.New(apperr.SignatureMismatch, "payment signature verification failed")
	}

	p, err := s.Repo.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperr.New(apperr.Unauthorized, "payment belongs to another user")
	}
	checkAmount(sourceConfirm, p, req.AmountCents)

	p, fresh, err := s.capture(ctx, sourceConfirm, req.OrderID, req.PaymentID)
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{Payment: p.ToResponse(), AlreadyProcessed: !fresh}
	if fresh {
		result.CreditedCents = p.CreditAmount()
	}
	return result, nil
}

// checkAmount flags a reported amount that differs from the order. The
// signature remains the only gate; the stored amount is always credited.
func checkAmount(source string, p *Payment, reported int64) {
	if reported == 0 || reported == p.AmountCents {
		return
	}
	metrics.RecordAmountMismatch(source)
	logger.Warn("payment amount mismatch",
		"source", source,
		"order_id", p.GatewayOrderID,
		"expected_cents", p.AmountCents,
		"reported_cents", reported,
	)
}

// capture moves the payment to captured and, on a fresh transition, credits
// amount + discount and stamps credited_at in the same transaction.
func (s *service) capture(ctx context.Context, source, orderID, gatewayPaymentID string) (*Payment, bool, error) {
	var (
		p     *Payment
		fresh bool
	)
	err := s.Tx.InTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.Repo.WithTx(tx)

		var err error
		p, fresh, err = repo.Transition(ctx, orderID, StatusCaptured, gatewayPaymentID)
		if err != nil || !fresh {
			return err
		}

		if _, err := s.Wallets.WithTx(tx).Credit(ctx, p.UserID, p.CreditAmount(), wallet.Entry{
			Type:      wallet.EntryPaymentCredit,
			Reference: p.GatewayOrderID,
		}); err != nil {
			return err
		}

		_, err = repo.MarkCredited(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if !fresh && p.Status == StatusFailed {
		metrics.RecordLateCapture(source)
		logger.Error("capture for a failed order, refund required",
			"source", source,
			"user_id", p.UserID,
			"order_id", p.GatewayOrderID,
			"payment_id", gatewayPaymentID,
		)
	}

	if fresh {
		metrics.RecordPayment(string(StatusCaptured))
		events.Emit(ctx, s.Publisher, events.Event{
			Type:        events.PaymentCaptured,
			UserID:      p.UserID,
			Reference:   p.GatewayOrderID,
			AmountCents: p.CreditAmount(),
		})
		logger.Info("payment captured", "user_id", p.UserID, "order_id", p.GatewayOrderID, "credited_cents", p.CreditAmount())
	}
	return p, fresh, nil
}

func (s *service) fail(ctx context.Context, orderID, gatewayPaymentID string) error {
	_, err := s.failOrder(ctx, orderID, gatewayPaymentID)
	return err
}

// failOrder moves a created payment to failed and releases its coupon
// redemption in the same transaction. fresh is false if it was already
// terminal.
func (s *service) failOrder(ctx context.Context, orderID, gatewayPaymentID string) (bool, error) {
	var (
		p     *Payment
		fresh bool
	)
	err := s.Tx.InTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, fresh, err = s.Repo.WithTx(tx).Transition(ctx, orderID, StatusFailed, gatewayPaymentID)
		if err != nil || !fresh {
			return err
		}
		if p.CouponCode.Valid {
			return s.Coupons.WithTx(tx).Release(ctx, p.ID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if fresh {
		metrics.RecordPayment(string(StatusFailed))
		events.Emit(ctx, s.Publisher, events.Event{
			Type:        events.PaymentFailed,
			UserID:      p.UserID,
			Reference:   p.GatewayOrderID,
			AmountCents: p.AmountCents,
		})
		logger.Info("payment failed", "user_id", p.UserID, "order_id", p.GatewayOrderID)
	}
	return fresh, nil
}

// HandleWebhook applies a gateway event. Events for unknown orders and
// event types other than captured/failed are acknowledged and ignored.
func (s *service) HandleWebhook(ctx context.Context, event gateway.WebhookEvent) error {
	ctx, span := tracing.Start(ctx, "payment.webhook")
	span.SetAttributes(attribute.String("webhook.event", event.Event))

	entity := event.Payload.Payment.Entity

	var err error
	switch event.Event {
	case EventCaptured:
		var p *Payment
		p, _, err = s.capture(ctx, sourceWebhook, entity.OrderID, entity.ID)
		if err == nil {
			checkAmount(sourceWebhook, p, entity.Amount)
		}
	case EventFailed:
		err = s.fail(ctx, entity.OrderID, entity.ID)
	default:
		metrics.RecordWebhook(event.Event, "ignored")
		tracing.End(span, nil)
		return nil
	}

	if apperr.IsKind(err, apperr.NotFound) {
		logger.Warn("webhook for unknown order", "event", event.Event, "order_id", entity.OrderID)
		metrics.RecordWebhook(event.Event, "unknown_order")
		tracing.End(span, nil)
		return nil
	}

	outcome := "processed"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordWebhook(event.Event, outcome)
	tracing.End(span, err)
	return err
}

// Reconcile credits captured payments whose credit never landed. Each payment
// is claimed by stamping credited_at in the same transaction as the credit,
// so concurrent sweeps credit it at most once.
func (s *service) Reconcile(ctx context.Context, limit int) (int, error) {
	ctx, span := tracing.Start(ctx, "payment.reconcile")

	pending, err := s.Repo.ListUncredited(ctx, limit)
	if err != nil {
		tracing.End(span, err)
		return 0, err
	}

	credited := 0
	for i := range pending {
		p := pending[i]
		ok, err := s.reconcileOne(ctx, &p)
		if err != nil {
			logger.Error("reconcile payment failed", "payment_id", p.ID, "order_id", p.GatewayOrderID, "error", err)
			continue
		}
		if ok {
			credited++
			events.Emit(ctx, s.Publisher, events.Event{
				Type:        events.PaymentReconciled,
				UserID:      p.UserID,
				Reference:   p.GatewayOrderID,
				AmountCents: p.CreditAmount(),
			})
		}
	}

	if credited > 0 {
		metrics.RecordReconciled(credited)
		logger.Info("reconciled captured payments", "credited", credited, "scanned", len(pending))
	}
	span.SetAttributes(attribute.Int("reconcile.credited", credited))
	tracing.End(span, nil)
	return credited, nil
}

// ExpireStale fails orders left in created for longer than olderThan and
// releases their coupon redemptions. Orders already settled by a racing
// confirm or webhook are skipped.
func (s *service) ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	ctx, span := tracing.Start(ctx, "payment.expire_stale")

	stale, err := s.Repo.ListStale(ctx, s.Now().Add(-olderThan), limit)
	if err != nil {
		tracing.End(span, err)
		return 0, err
	}

	expired := 0
	for _, p := range stale {
		fresh, err := s.failOrder(ctx, p.GatewayOrderID, "")
		if err != nil {
			logger.Error("expire payment failed", "payment_id", p.ID, "order_id", p.GatewayOrderID, "error", err)
			continue
		}
		if fresh {
			expired++
		}
	}

	if expired > 0 {
		metrics.RecordExpiredOrders(expired)
		logger.Info("expired abandoned payment orders", "expired", expired, "scanned", len(stale))
	}
	span.SetAttributes(attribute.Int("expire.count", expired))
	tracing.End(span, nil)
	return expired, nil
}

func (s *service) reconcileOne(ctx context.Context, p *Payment) (bool, error) {
	claimed := false
	err := s.Tx.InTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		claimed, err = s.Repo.WithTx(tx).MarkCredited(ctx, p.ID)
		if err != nil || !claimed {
			return err
		}

		_, err = s.Wallets.WithTx(tx).Credit(ctx, p.UserID, p.CreditAmount(), wallet.Entry{
			Type:      wallet.EntryPaymentCredit,
			Reference: p.GatewayOrderID,
		})
		return err
	})

	// The journal already holds this order's credit; only the stamp was lost.
	if apperr.IsKind(err, apperr.Conflict) {
		if _, err := s.Repo.MarkCredited(ctx, p.ID); err != nil {
			return false, err
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (s *service) Get(ctx context.Context, orderID string) (*Payment, error) {
	return s.Repo.GetByOrderID(ctx, orderID)
}

func (s *service) ListByUser(ctx context.Context, userID int) ([]Payment, error) {
	return s.Repo.ListByUser(ctx, userID)
}

func newReceipt(userID int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("receipt_%d_%s", userID, id[:16])
}
