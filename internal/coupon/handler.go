package coupon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"learncode/internal/api"
	"learncode/internal/apperr"
	"learncode/internal/auth"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// @Summary      Validate a coupon
// @Description  Preview the discount a coupon gives on an amount without redeeming it
// @Tags         coupons
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body coupon.ValidateRequest true "Coupon and amount"
// @Success      200 {object} coupon.ValidateResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      422 {object} api.ErrorResponse
// @Router       /coupons/validate [post]
func (h *Handler) Validate(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	var req ValidateRequest
	if !api.BindJSON(c, &req) {
		return
	}

	discount, cp, err := h.service.Validate(c.Request.Context(), req.Code, req.AmountCents, userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ValidateResponse{
		Code:             cp.Code,
		DiscountCents:    discount,
		FinalAmountCents: req.AmountCents - discount,
	})
}

// @Summary      Create a coupon
// @Tags         admin,coupons
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body coupon.CreateCouponRequest true "Coupon payload"
// @Success      201 {object} coupon.Coupon
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /admin/coupons [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateCouponRequest
	if !api.BindJSON(c, &req) {
		return
	}

	cp, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cp)
}

// @Summary      List coupons
// @Tags         admin,coupons
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} coupon.Coupon
// @Router       /admin/coupons [get]
func (h *Handler) List(c *gin.Context) {
	coupons, err := h.service.List(c.Request.Context())
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, coupons)
}

// @Summary      Enable a coupon
// @Description  Sets a new future expiration date
// @Tags         admin,coupons
// @Produce      json
// @Security     BearerAuth
// @Param        id             path  int    true "Coupon ID"
// @Param        expirationDate query string true "New expiry (RFC3339 or YYYY-MM-DD)"
// @Success      200 {object} coupon.Coupon
// @Failure      400 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /admin/coupons/{id}/enable [patch]
func (h *Handler) Enable(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		api.BadRequest(c, "invalid coupon id")
		return
	}

	expiry, err := parseDate(c.Query("expirationDate"))
	if err != nil {
		api.BadRequest(c, "expirationDate must be RFC3339 or YYYY-MM-DD")
		return
	}

	cp, err := h.service.Enable(c.Request.Context(), id, expiry)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cp)
}

// @Summary      Disable a coupon
// @Tags         admin,coupons
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Coupon ID"
// @Success      200 {object} coupon.Coupon
// @Failure      404 {object} api.ErrorResponse
// @Router       /admin/coupons/{id}/disable [patch]
func (h *Handler) Disable(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		api.BadRequest(c, "invalid coupon id")
		return
	}

	cp, err := h.service.Disable(c.Request.Context(), id)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cp)
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
