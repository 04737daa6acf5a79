package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"learncode/internal/api"
	"learncode/internal/apperr"
	"learncode/internal/auth"
	"learncode/internal/gateway"
	"learncode/internal/logger"
	"learncode/internal/metrics"
)

const (
	SignatureHeader = "X-Razorpay-Signature"

	maxWebhookBody = 1 << 20
)

// WebhookVerifier checks the signature the gateway puts on webhook bodies.
type WebhookVerifier interface {
	VerifyWebhook(body []byte, signature string) bool
}

// Enqueuer hands a verified webhook body to a background worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, body []byte) error
}

type Handler struct {
	service  Service
	verifier WebhookVerifier
	queue    Enqueuer
}

// NewHandler builds the payment handler. A nil queue makes webhooks apply
// synchronously.
func NewHandler(service Service, verifier WebhookVerifier, queue Enqueuer) *Handler {
	return &Handler{service: service, verifier: verifier, queue: queue}
}

// @Summary      Initiate a payment
// @Description  Creates a gateway order for a wallet top-up, optionally applying a coupon
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body payment.InitiateRequest true "Top-up amount and optional coupon"
// @Success      201 {object} payment.InitiateResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      422 {object} api.ErrorResponse
// @Failure      503 {object} api.ErrorResponse
// @Router       /payments/initiate [post]
func (h *Handler) Initiate(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	var req InitiateRequest
	if !api.BindJSON(c, &req) {
		return
	}

	resp, err := h.service.Initiate(c.Request.Context(), userID, req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary      Confirm a payment
// @Description  Verifies the gateway checkout signature and credits the wallet once
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body payment.ConfirmRequest true "Gateway checkout result"
// @Success      200 {object} payment.ConfirmResult
// @Failure      401 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /payments/confirm [post]
func (h *Handler) Confirm(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	var req ConfirmRequest
	if !api.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Confirm(c.Request.Context(), userID, req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// @Summary      List my payments
// @Tags         payments
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} payment.Response
// @Failure      401 {object} api.ErrorResponse
// @Router       /payments [get]
func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	payments, err := h.service.ListByUser(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	out := make([]Response, 0, len(payments))
	for i := range payments {
		out = append(out, payments[i].ToResponse())
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Gateway webhook
// @Description  Receives signed payment events from the gateway
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Razorpay-Signature header string true "HMAC-SHA256 of the body"
// @Success      200 {object} api.MessageResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      401 {object} api.ErrorResponse
// @Router       /payments/webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		api.BadRequest(c, "unreadable body")
		return
	}

	if !h.verifier.VerifyWebhook(body, c.GetHeader(SignatureHeader)) {
		metrics.RecordWebhook("unknown", "bad_signature")
		api.RespondError(c, apperr.New(apperr.SignatureMismatch, "invalid webhook signature"))
		return
	}

	var event gateway.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		api.BadRequest(c, "malformed webhook payload")
		return
	}

	ctx := c.Request.Context()
	if h.queue != nil {
		err := h.queue.Enqueue(ctx, body)
		if err == nil {
			c.JSON(http.StatusAccepted, api.MessageResponse{Message: "queued"})
			return
		}
		logger.Warn("webhook enqueue failed, applying inline", "event", event.Event, "error", err)
	}

	if err := h.service.HandleWebhook(ctx, event); err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "ok"})
}

// @Summary      Reconcile captured payments
// @Description  Admin-only: credit captured payments whose wallet credit is missing
// @Tags         admin,payments
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Batch size" default(100)
// @Success      200 {object} map[string]int
// @Router       /admin/payments/reconcile [post]
func (h *Handler) AdminReconcile(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		api.BadRequest(c, "invalid limit")
		return
	}

	credited, err := h.service.Reconcile(c.Request.Context(), limit)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"credited": credited})
}
