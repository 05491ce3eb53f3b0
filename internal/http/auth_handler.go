package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stepup-auth/internal/domain"
	"stepup-auth/internal/service"
)

const (
	statusOTPRequired = "otp_required"
	statusSuccess     = "success"
	statusError       = "error"
)

// AuthHandler expone los endpoints del login en dos pasos.
type AuthHandler struct {
	logger    *zap.Logger
	loginServ *service.LoginService
	sessions  *service.SessionIssuer
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, loginServ *service.LoginService, sessions *service.SessionIssuer) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		loginServ: loginServ,
		sessions:  sessions,
	}
}

type loginResponse struct {
	Status         string    `json:"status"`
	ChallengeToken string    `json:"challengeToken"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

type sessionResponse struct {
	Status    string                `json:"status"`
	Token     string                `json:"token"`
	ExpiresAt time.Time             `json:"expiresAt"`
	User      domain.UserProjection `json:"user"`
}

type resendResponse struct {
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email      string `json:"email" binding:"required"`
		Password   string `json:"password" binding:"required"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Email and password are required."))
		return
	}

	issued, err := h.loginServ.Login(c.Request.Context(), req.Email, req.Password, req.RememberMe, requestMeta(c))
	if err != nil {
		h.writeError(c, "login", err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Status:         statusOTPRequired,
		ChallengeToken: issued.Token,
		ExpiresAt:      issued.ExpiresAt,
	})
}

// VerifyOTP maneja POST /auth/login/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		OTP            string `json:"otp" binding:"required"`
		ChallengeToken string `json:"challengeToken" binding:"required"`
		RememberMe     bool   `json:"rememberMe"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify otp request", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Code and challenge token are required."))
		return
	}

	res, err := h.loginServ.VerifyOTP(c.Request.Context(), req.ChallengeToken, req.OTP, req.RememberMe, requestMeta(c))
	if err != nil {
		h.writeError(c, "verify otp", err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		Status:    statusSuccess,
		Token:     res.Session.Token,
		ExpiresAt: res.Session.ExpiresAt,
		User:      res.User,
	})
}

// ResendOTP maneja POST /auth/login/resend-otp.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req struct {
		ChallengeToken string `json:"challengeToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resend otp request", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Challenge token is required."))
		return
	}

	issued, err := h.loginServ.ResendOTP(c.Request.Context(), req.ChallengeToken, requestMeta(c))
	if err != nil {
		h.writeError(c, "resend otp", err)
		return
	}

	c.JSON(http.StatusOK, resendResponse{Status: statusSuccess, ExpiresAt: issued.ExpiresAt})
}

// Session maneja GET /auth/session.
func (h *AuthHandler) Session(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody("invalid_token", "Your session is no longer valid."))
		return
	}
	resp := gin.H{
		"status": statusSuccess,
		"userId": claims.UserID,
		"email":  claims.Email,
		"role":   claims.Role,
	}
	if claims.ExpiresAt != nil {
		resp["expiresAt"] = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, resp)
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok || h.sessions == nil {
		c.JSON(http.StatusUnauthorized, errorBody("invalid_token", "Your session is no longer valid."))
		return
	}
	if err := h.sessions.Revoke(claims); err != nil {
		h.logger.Error("revoke session failed", zap.Error(err), zap.String("user_id", claims.UserID))
		c.JSON(http.StatusInternalServerError, errorBody("internal_error", "Could not log out."))
		return
	}
	c.Status(http.StatusNoContent)
}

type apiError struct {
	status  int
	kind    string
	message string
}

// mapError traduce errores del servicio a respuestas. Un challenge
// inexistente se reporta igual que uno expirado.
func mapError(err error) apiError {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, "invalid_credentials", "Invalid email or password."}
	case errors.Is(err, service.ErrInvalidCode):
		return apiError{http.StatusBadRequest, "invalid_code", "The code you entered is incorrect."}
	case errors.Is(err, service.ErrTooManyAttempts):
		return apiError{http.StatusUnauthorized, "too_many_attempts", "Too many incorrect codes. Please log in again."}
	case errors.Is(err, service.ErrChallengeExpired), errors.Is(err, service.ErrChallengeNotFound):
		return apiError{http.StatusGone, "challenge_expired", "Your code has expired. Please log in again."}
	case errors.Is(err, service.ErrResendLimitExceeded):
		return apiError{http.StatusTooManyRequests, "resend_limit_exceeded", "You have requested too many codes. Please wait for the current one or log in again."}
	case errors.Is(err, service.ErrRateLimited):
		return apiError{http.StatusTooManyRequests, "rate_limited", "Too many login attempts. Please try again later."}
	case errors.Is(err, service.ErrDeliveryUnavailable):
		return apiError{http.StatusServiceUnavailable, "delivery_unavailable", "We could not send your code right now. Please try again."}
	default:
		return apiError{http.StatusInternalServerError, "internal_error", "Something went wrong. Please try again."}
	}
}

func (h *AuthHandler) writeError(c *gin.Context, op string, err error) {
	apiErr := mapError(err)
	if apiErr.status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Error(err))
	}
	c.JSON(apiErr.status, errorBody(apiErr.kind, apiErr.message))
}

func errorBody(kind, message string) gin.H {
	return gin.H{"status": statusError, "error": kind, "message": message}
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{ClientIP: c.ClientIP()}
}
