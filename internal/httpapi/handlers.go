package httpapi

import (
	stderrors "errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akarimov/payguard/internal/service"
	"github.com/akarimov/payguard/pkg/errors"
)

// Handler wires the HTTP surface to the core services.
type Handler struct {
	auth     *service.AuthService
	sessions *service.SessionService
	payments *service.PaymentService
}

func NewHandler(auth *service.AuthService, sessions *service.SessionService, payments *service.PaymentService) *Handler {
	return &Handler{
		auth:     auth,
		sessions: sessions,
		payments: payments,
	}
}

// writeError maps the core error taxonomy to status codes. Anything outside
// the taxonomy is an internal fault and answers with a generic body only.
func writeError(c *gin.Context, err error) {
	switch {
	case stderrors.Is(err, errors.ErrMissingFields),
		stderrors.Is(err, errors.ErrWeakPassword),
		stderrors.Is(err, errors.ErrInvalidUsername):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrDuplicateUsername):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrAccountLocked):
		c.JSON(http.StatusLocked, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrInsufficientFunds):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := h.auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	token, err := h.sessions.Issue(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token: token,
		User:  toUserResponse(user),
	})
}

// Logout handles POST /auth/logout. Revocation is idempotent: an unknown or
// expired token still logs out successfully. Only a missing token is 401.
func (h *Handler) Logout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}

	if err := h.sessions.Revoke(c.Request.Context(), token); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Charge handles POST /payments/charge.
func (h *Handler) Charge(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}

	payment, err := h.payments.Charge(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toChargeResponse(payment))
}

// Me handles GET /users/me.
func (h *Handler) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}
