package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"learncode/internal/apperr"
	"learncode/internal/logger"
)

// StatusFor maps an error kind onto an HTTP status code.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Unauthorized, apperr.SignatureMismatch:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.InsufficientBalance, apperr.Conflict, apperr.AlreadyRedeemed, apperr.LimitReached:
		return http.StatusConflict
	case apperr.Expired, apperr.BelowMinimum, apperr.ItemNotPriced:
		return http.StatusUnprocessableEntity
	case apperr.InvalidAmount, apperr.Invalid:
		return http.StatusBadRequest
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as an ErrorResponse and aborts the chain. Internal
// failures are logged and answered with a generic message.
func RespondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"kind", string(kind),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: apperr.Message(err),
		Code:  string(kind),
	})
}

func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: string(apperr.Invalid)})
}
