package payment

import (
	"context"
	"time"

	"learncode/internal/logger"
)

// Reconciler periodically credits captured payments that were never
// credited, e.g. after a crash between capture and credit, and fails orders
// abandoned in created so their coupon redemptions are released.
type Reconciler struct {
	service  Service
	interval time.Duration
	batch    int
	orderTTL time.Duration
}

func NewReconciler(service Service, interval time.Duration, batch int, orderTTL time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	if orderTTL <= 0 {
		orderTTL = time.Hour
	}
	return &Reconciler{service: service, interval: interval, batch: batch, orderTTL: orderTTL}
}

// Start runs sweeps until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) error {
	logger.Info("payment reconciler started", "interval", r.interval.String(), "batch", r.batch, "order_ttl", r.orderTTL.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("payment reconciler stopped")
			return nil
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce returns the number of payments credited. Expiry runs even when
// the credit sweep fails.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	n, err := r.service.Reconcile(ctx, r.batch)
	if err != nil {
		logger.Error("reconcile sweep failed", "error", err)
		n = 0
	}

	if _, err := r.service.ExpireStale(ctx, r.orderTTL, r.batch); err != nil {
		logger.Error("expire sweep failed", "error", err)
	}
	return n
}
