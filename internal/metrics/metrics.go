package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learncode_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "learncode_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learncode_ledger_entries_total",
			Help: "Total number of wallet ledger entries by type",
		},
		[]string{"type"},
	)

	LedgerAmountCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learncode_ledger_amount_cents_total",
			Help: "Total amount moved through wallets in minor units",
		},
		[]string{"direction"},
	)

	InsufficientBalanceTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learncode_insufficient_balance_total",
			Help: "Total number of debits rejected for insufficient balance",
		},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learncode_payments_total",
			Help: "Total number of payment transitions by status",
		},
		[]string{"status"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "learncode_gateway_request_duration_seconds",
			Help:    "Payment gateway call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learncode_webhook_events_total",
			Help: "Total number of gateway webhook events received",
		},
		[]string{"event", "outcome"},
	)

	WebhookQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "learncode_webhook_queue_length",
			Help: "Current length of the webhook queue",
		},
	)

	CouponValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learncode_coupon_validations_total",
			Help: "Total number of coupon validations by outcome",
		},
		[]string{"outcome"},
	)

	CouponRedemptionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learncode_coupon_redemptions_total",
			Help: "Total number of coupon redemptions",
		},
	)

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learncode_purchases_total",
			Help: "Total number of purchase settlements by outcome",
		},
		[]string{"outcome"},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learncode_sessions_total",
			Help: "Total number of session lifecycle events",
		},
		[]string{"event"},
	)

	ReconciledPaymentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learncode_reconciled_payments_total",
			Help: "Total number of captured payments credited by the reconciler",
		},
	)

	ExpiredOrdersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learncode_expired_orders_total",
			Help: "Total number of abandoned payment orders failed by the reconciler",
		},
	)

	PaymentAnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learncode_payment_anomalies_total",
			Help: "Payment events that disagree with the stored order",
		},
		[]string{"kind", "source"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordLedgerEntry counts a journal row; negative amounts are debits.
func RecordLedgerEntry(entryType string, amountCents int64) {
	LedgerEntriesTotal.WithLabelValues(entryType).Inc()
	if amountCents < 0 {
		LedgerAmountCents.WithLabelValues("debit").Add(float64(-amountCents))
		return
	}
	LedgerAmountCents.WithLabelValues("credit").Add(float64(amountCents))
}

func RecordInsufficientBalance() {
	InsufficientBalanceTotal.Inc()
}

func RecordPayment(status string) {
	PaymentsTotal.WithLabelValues(status).Inc()
}

func RecordGatewayCall(operation, outcome string, duration float64) {
	GatewayRequestDuration.WithLabelValues(operation, outcome).Observe(duration)
}

func RecordWebhook(event, outcome string) {
	WebhookEventsTotal.WithLabelValues(event, outcome).Inc()
}

func RecordCouponValidation(outcome string) {
	CouponValidationsTotal.WithLabelValues(outcome).Inc()
}

func RecordCouponRedemption() {
	CouponRedemptionsTotal.Inc()
}

func RecordPurchase(outcome string) {
	PurchasesTotal.WithLabelValues(outcome).Inc()
}

func RecordSession(event string) {
	SessionsTotal.WithLabelValues(event).Inc()
}

func RecordReconciled(n int) {
	ReconciledPaymentsTotal.Add(float64(n))
}

func RecordExpiredOrders(n int) {
	ExpiredOrdersTotal.Add(float64(n))
}

// RecordAmountMismatch counts a reported amount that differs from the order.
func RecordAmountMismatch(source string) {
	PaymentAnomaliesTotal.WithLabelValues("amount_mismatch", source).Inc()
}

// RecordLateCapture counts a capture for an order that had already failed.
func RecordLateCapture(source string) {
	PaymentAnomaliesTotal.WithLabelValues("late_capture", source).Inc()
}
