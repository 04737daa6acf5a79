package payment

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) (*Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	ListByUser(ctx context.Context, userID int) ([]Payment, error)

	// Transition moves a created payment to the target status. fresh is
	// false when the payment was already terminal; the stored row is
	// returned unchanged in that case.
	Transition(ctx context.Context, orderID string, to Status, gatewayPaymentID string) (p *Payment, fresh bool, err error)

	// MarkCredited stamps credited_at once; claimed is false if another
	// caller stamped it first.
	MarkCredited(ctx context.Context, id int) (claimed bool, err error)
	ListUncredited(ctx context.Context, limit int) ([]Payment, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error)

	WithTx(tx *sqlx.Tx) Repository
}
