package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zaedhealth/identity-service/internal/transport/http/middleware"
	"github.com/zaedhealth/identity-service/internal/usecase"
)

const (
	rateLimitProblemType  = "https://identity.zaed.org/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// AuthHandler exposes password login, 2FA challenge completion and session
// lifecycle endpoints.
type AuthHandler struct {
	auth     *usecase.AuthService
	sessions *usecase.SessionService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, sessions *usecase.SessionService) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions}
}

// RegisterRoutes binds authentication routes onto the provided group.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	r.POST("/login", h.login)
	r.POST("/2fa/verify", h.verifyTwoFactor)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", h.logout)
	r.POST("/logout-all", requireAuth, h.logoutAll)
}

// Login godoc
// @Summary Authenticate a user with email and password
// @Description Validates credentials. Returns a token pair, or a pending 2FA challenge when the account has two-factor enabled.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:      strings.TrimSpace(req.Email),
		Password:   req.Password,
		DeviceID:   strings.TrimSpace(req.DeviceID),
		DeviceInfo: strings.TrimSpace(req.DeviceInfo),
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		h.respondLoginError(c, err)
		return
	}

	if result.Requires2FA {
		c.JSON(http.StatusOK, LoginResponse{
			Requires2FA: true,
			TempToken:   result.PendingToken,
		})
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(result))
}

// VerifyTwoFactor godoc
// @Summary Complete a pending two-factor challenge
// @Description Exchanges the pending token plus a TOTP or recovery code for a full session.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TwoFactorVerifyRequest true "Challenge completion request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/verify [post]
func (h *AuthHandler) verifyTwoFactor(c *gin.Context) {
	var req TwoFactorVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid challenge payload"))
		return
	}

	result, err := h.auth.Verify2FA(c.Request.Context(), usecase.Verify2FAInput{
		PendingToken: req.TempToken,
		Code:         strings.TrimSpace(req.Code),
		RecoveryCode: strings.TrimSpace(req.RecoveryCode),
		DeviceID:     strings.TrimSpace(req.DeviceID),
		DeviceInfo:   strings.TrimSpace(req.DeviceInfo),
		IP:           c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrExpiredToken, Status: http.StatusUnauthorized, Message: "challenge expired, log in again"},
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid challenge token"},
			{Err: usecase.ErrInvalidCode, Status: http.StatusUnauthorized, Message: "invalid verification code"},
			{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Message: "account disabled"},
		}, http.StatusInternalServerError, "two-factor verification failed")
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(result))
}

// Refresh godoc
// @Summary Rotate a refresh token
// @Description Issues a new access and refresh token pair, invalidating the presented refresh token.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TokenRefreshRequest true "Refresh request"
// @Success 200 {object} TokenPairResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	tokens, err := h.sessions.Rotate(c.Request.Context(), req.RefreshToken, c.ClientIP())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrExpiredToken, Status: http.StatusUnauthorized, Message: "refresh token expired"},
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
			{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Message: "account disabled"},
		}, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, *newTokenPairResponse(tokens))
}

// Logout godoc
// @Summary Revoke the presented refresh token
// @Description Ends the session owning the refresh token. Succeeds even when the token is already dead.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LogoutRequest true "Logout request"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), req.RefreshToken, c.ClientIP(), c.Request.UserAgent()); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to logout"))
		return
	}

	c.Status(http.StatusNoContent)
}

// LogoutAll godoc
// @Summary Revoke every session of the authenticated user
// @Tags Authentication
// @Produce json
// @Success 200 {object} LogoutAllResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout-all [post]
func (h *AuthHandler) logoutAll(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	revoked, err := h.sessions.LogoutAll(c.Request.Context(), userID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
		return
	}

	c.JSON(http.StatusOK, LogoutAllResponse{RevokedSessions: revoked})
}

func (h *AuthHandler) respondLoginError(c *gin.Context, err error) {
	var rateErr *usecase.RateLimitExceededError
	if errors.As(err, &rateErr) {
		respondRateLimitExceeded(c, rateErr, "Too many login attempts.")
		return
	}

	RespondWithMappedError(c, err, []ErrorCase{
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Message: "account disabled"},
	}, http.StatusInternalServerError, "authentication failed")
}

func newSessionResponse(result *usecase.LoginResult) LoginResponse {
	response := LoginResponse{Tokens: newTokenPairResponse(result.Tokens)}
	if result.User != nil {
		summary := newUserSummary(*result.User)
		response.User = &summary
	}
	return response
}

func newTokenPairResponse(tokens *usecase.SessionTokens) *TokenPairResponse {
	if tokens == nil {
		return nil
	}
	return &TokenPairResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
		ExpiresIn:    tokens.ExpiresIn,
	}
}

func respondRateLimitExceeded(c *gin.Context, rateErr *usecase.RateLimitExceededError, detail string) {
	retryAfter := int(rateErr.RetryAfter / time.Second)
	if rateErr.RetryAfter%time.Second != 0 {
		retryAfter++
	}
	if retryAfter < 0 {
		retryAfter = 0
	}

	if retryAfter > 0 {
		detail = fmt.Sprintf("%s Retry in %d seconds.", detail, retryAfter)
		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
	}

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.JSON(http.StatusTooManyRequests, middleware.ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     detail,
		Instance:   instance,
		RetryAfter: retryAfter,
		TraceID:    middleware.GetTraceID(c),
	})
}
