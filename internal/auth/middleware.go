package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"learncode/internal/api"
	"learncode/internal/apperr"
	"learncode/internal/session"
)

const (
	ctxUserID    = "user_id"
	ctxUserEmail = "user_email"
	ctxUserRole  = "user_role"
	ctxToken     = "session_token"
)

// AuthMiddleware accepts a bearer JWT only while its session is still
// active in the registry.
func AuthMiddleware(secret string, sessions session.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			api.RespondError(c, apperr.New(apperr.Unauthorized, "authorization header required"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) != "Bearer" {
			api.RespondError(c, apperr.New(apperr.Unauthorized, "invalid authorization header format"))
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			api.RespondError(c, apperr.New(apperr.Unauthorized, "token is empty"))
			return
		}

		claims, err := ValidateToken(tokenString, secret)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				api.RespondError(c, apperr.New(apperr.Unauthorized, "token expired"))
				return
			}
			api.RespondError(c, apperr.New(apperr.Unauthorized, "invalid or malformed token"))
			return
		}

		if _, err := sessions.Validate(c.Request.Context(), tokenString); err != nil {
			api.RespondError(c, err)
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUserEmail, claims.Email)
		c.Set(ctxUserRole, claims.Role)
		c.Set(ctxToken, tokenString)

		c.Next()
	}
}

func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ctxUserRole)
		if !exists {
			api.RespondError(c, apperr.New(apperr.Unauthorized, "user role not found"))
			return
		}

		roleStr, ok := role.(string)
		if !ok {
			api.RespondError(c, apperr.New(apperr.Unauthorized, "invalid role type"))
			return
		}

		if roleStr != requiredRole {
			api.RespondError(c, apperr.New(apperr.Forbidden, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

func GetUserID(c *gin.Context) (int, bool) {
	userID, exists := c.Get(ctxUserID)
	if !exists {
		return 0, false
	}

	id, ok := userID.(int)
	if !ok {
		return 0, false
	}

	return id, true
}

// GetToken returns the bearer token the request was authenticated with.
func GetToken(c *gin.Context) (string, bool) {
	return c.GetString(ctxToken), c.GetString(ctxToken) != ""
}
