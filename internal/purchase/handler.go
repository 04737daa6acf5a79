package purchase

import (
	"net/http"
	"strconv"

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

// @Summary      Buy a video
// @Description  Debits the wallet and grants access. Buying an owned item returns the existing grant.
// @Tags         wallet,purchases
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body purchase.BuyRequest true "Item to buy"
// @Success      200 {object} purchase.BuyResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      422 {object} api.ErrorResponse
// @Router       /wallet/buy-video [post]
func (h *Handler) Buy(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	var req BuyRequest
	if !api.BindJSON(c, &req) {
		return
	}

	grant, owned, err := h.service.Purchase(c.Request.Context(), userID, req.ItemID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, BuyResponse{Purchase: *grant, AlreadyOwned: owned})
}

// @Summary      List my purchases
// @Tags         purchases
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} wallet.Purchase
// @Router       /purchases [get]
func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	purchases, err := h.service.ListPurchases(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, purchases)
}

// @Summary      Check access to a video
// @Tags         purchases
// @Produce      json
// @Security     BearerAuth
// @Param        itemID path int true "Item ID"
// @Success      200 {object} purchase.AccessResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /items/{itemID}/access [get]
func (h *Handler) Access(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	itemID, err := strconv.Atoi(c.Param("itemID"))
	if err != nil || itemID <= 0 {
		api.BadRequest(c, "invalid item id")
		return
	}

	has, err := h.service.HasAccess(c.Request.Context(), userID, itemID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, AccessResponse{ItemID: itemID, HasAccess: has})
}
