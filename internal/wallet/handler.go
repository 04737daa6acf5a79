package wallet

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"learncode/internal/api"
	"learncode/internal/apperr"
	"learncode/internal/auth"
	"learncode/internal/logger"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

type TopUpRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required" validate:"gt=0"`
	Reference   string `json:"reference" validate:"omitempty,max=128"`
}

// @Summary      Get wallet
// @Description  Returns the caller's wallet, creating an empty one on first access
// @Tags         wallet
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} wallet.Wallet
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /wallet [get]
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	w, err := h.repo.GetWallet(c.Request.Context(), userID)
	if apperr.IsKind(err, apperr.NotFound) {
		w, err = h.repo.UpsertWallet(c.Request.Context(), userID, 0)
	}
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, w)
}

// @Summary      List wallet transactions
// @Tags         wallet
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query int false "Page size" default(50)
// @Param        offset query int false "Offset" default(0)
// @Success      200 {array} wallet.TransactionResponse
// @Failure      401 {object} api.ErrorResponse
// @Router       /wallet/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.repo.ListTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	out := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, t.ToResponse())
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Top up a wallet
// @Description  Admin-only: credit a user's wallet directly
// @Tags         admin,wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userID  path int true "User ID"
// @Param        request body wallet.TopUpRequest true "Top-up payload"
// @Success      200 {object} wallet.Wallet
// @Failure      400 {object} api.ErrorResponse
// @Failure      403 {object} api.ErrorResponse
// @Router       /admin/wallets/{userID}/top-up [post]
func (h *Handler) AdminTopUp(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userID"))
	if err != nil || userID <= 0 {
		api.BadRequest(c, "invalid user id")
		return
	}

	var req TopUpRequest
	if !api.BindJSON(c, &req) {
		return
	}

	w, err := h.repo.Credit(c.Request.Context(), userID, req.AmountCents, Entry{
		Type:      EntryAdminCredit,
		Reference: req.Reference,
	})
	if err != nil {
		api.RespondError(c, err)
		return
	}

	adminID, _ := auth.GetUserID(c)
	logger.Info("wallet topped up by admin", "admin_id", adminID, "user_id", userID, "amount_cents", req.AmountCents)

	c.JSON(http.StatusOK, w)
}
