package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"learncode/internal/api"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// @Summary      Create an item
// @Description  Admin-only: register a priced video
// @Tags         admin,items
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body catalog.CreateItemRequest true "Item payload"
// @Success      201 {object} catalog.Item
// @Failure      400 {object} api.ErrorResponse
// @Failure      403 {object} api.ErrorResponse
// @Router       /admin/items [post]
func (h *Handler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if !api.BindJSON(c, &req) {
		return
	}

	item, err := h.service.CreateItem(c.Request.Context(), req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// @Summary      List items
// @Tags         items
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} catalog.Item
// @Router       /items [get]
func (h *Handler) ListItems(c *gin.Context) {
	items, err := h.service.ListItems(c.Request.Context(), true)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// @Summary      Get an item
// @Tags         items
// @Produce      json
// @Security     BearerAuth
// @Param        itemID path int true "Item ID"
// @Success      200 {object} catalog.Item
// @Failure      404 {object} api.ErrorResponse
// @Router       /items/{itemID} [get]
func (h *Handler) GetItem(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("itemID"))
	if err != nil {
		api.BadRequest(c, "invalid item id")
		return
	}

	item, err := h.service.GetItem(c.Request.Context(), id)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}
