package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"learncode/internal/apperr"
	"learncode/internal/logger"
	"learncode/internal/metrics"
	"learncode/internal/tracing"
)

type Client interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

type Config struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	Timeout    time.Duration
	MaxRetries int
}

type httpClient struct {
	cfg        Config
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

func NewClient(cfg Config) Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &httpClient{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// CreateOrder registers an order with the gateway. Network errors, 429 and
// 5xx responses are retried with exponential backoff; the final failure is
// an Unavailable error. Other 4xx responses fail immediately.
func (c *httpClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	ctx, span := tracing.Start(ctx, "gateway.create_order", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("gateway.receipt", req.Receipt),
		attribute.Int64("gateway.amount", req.Amount),
	)

	body, err := json.Marshal(req)
	if err != nil {
		tracing.End(span, err)
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	start := time.Now()
	attempt := 0
	order, err := backoff.Retry(ctx, func() (*Order, error) {
		attempt++
		return c.postOrder(ctx, body)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("gateway call failed, retrying", "receipt", req.Receipt, "attempt", attempt, "retry_in", next.String(), "error", err)
		}),
	)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			err = apperr.Wrap(apperr.Unavailable, "payment gateway unavailable", err)
		}
	}
	metrics.RecordGatewayCall("create_order", outcome, time.Since(start).Seconds())
	tracing.End(span, err)

	if err != nil {
		return nil, err
	}
	return order, nil
}

func (c *httpClient) postOrder(ctx context.Context, body []byte) (*Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	otel.GetTextMapPropagator().Inject(callCtx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	case resp.StatusCode >= http.StatusBadRequest:
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		msg := eb.Error.Description
		if msg == "" {
			msg = resp.Status
		}
		return nil, backoff.Permanent(apperr.Errorf(apperr.Invalid, "gateway rejected order: %s", msg))
	}

	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode order: %w", err))
	}
	if order.ID == "" {
		return nil, backoff.Permanent(errors.New("gateway returned order without id"))
	}
	return &order, nil
}
