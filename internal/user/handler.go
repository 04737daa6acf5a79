package user

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"learncode/internal/api"
	"learncode/internal/apperr"
	"learncode/internal/auth"
)

const maxIdentityBody = 16 << 10

// IdentityVerifier authenticates bodies posted by the identity layer.
type IdentityVerifier interface {
	VerifyBody(body []byte, signature string) bool
}

type Handler struct {
	service  Service
	identity IdentityVerifier
}

// NewHandler wires the user endpoints. A nil identity verifier rejects every
// provider login.
func NewHandler(service Service, identity IdentityVerifier) *Handler {
	return &Handler{service: service, identity: identity}
}

// Register godoc
// @Summary      Register new user
// @Description  Creates a member account with an empty wallet and opens a session.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      RegisterRequest  true  "User registration data"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ErrorResponse
// @Router       /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !api.BindJSON(c, &req) {
		return
	}

	resp, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login godoc
// @Summary      Login user
// @Description  Authenticates by email and password. A fourth device expires the oldest session.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      LoginRequest  true  "User credentials"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Router       /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !api.BindJSON(c, &req) {
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// OAuth godoc
// @Summary      Login with a third-party identity
// @Description  Accepts the verified email and provider id from the identity layer. The body must be signed with IDENTITY_SECRET in X-Identity-Signature.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        X-Identity-Signature  header    string        true  "Hex HMAC-SHA256 of the body"
// @Param        request               body      OAuthRequest  true  "Verified identity"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ErrorResponse
// @Router       /auth/oauth [post]
func (h *Handler) OAuth(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdentityBody))
	if err != nil {
		api.BadRequest(c, "unreadable body")
		return
	}
	if h.identity == nil || !h.identity.VerifyBody(body, c.GetHeader(auth.IdentitySignatureHeader)) {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "identity assertion is not signed"))
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	var req OAuthRequest
	if !api.BindJSON(c, &req) {
		return
	}

	resp, err := h.service.OAuthLogin(c.Request.Context(), req)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout godoc
// @Summary      Logout this device
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  api.MessageResponse
// @Router       /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	token, ok := auth.GetToken(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	if err := h.service.Logout(c.Request.Context(), token); err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "logged out"})
}

// LogoutAll godoc
// @Summary      Logout every device
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]int64
// @Router       /auth/logout-all [post]
func (h *Handler) LogoutAll(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	n, err := h.service.LogoutAll(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"expired": n})
}

// GetMe godoc
// @Summary      Get current user
// @Tags         user
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Profile
// @Failure      401  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /me [get]
func (h *Handler) GetMe(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	profile, err := h.service.GetProfile(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// ListSessions godoc
// @Summary      List active device sessions
// @Tags         user
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  session.Session
// @Router       /me/sessions [get]
func (h *Handler) ListSessions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		api.RespondError(c, apperr.New(apperr.Unauthorized, "user not authenticated"))
		return
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), userID)
	if err != nil {
		api.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}
