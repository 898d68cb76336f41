package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zaedhealth/identity-service/internal/transport/http/middleware"
	"github.com/zaedhealth/identity-service/internal/usecase"
)

// TwoFactorHandler exposes authenticator enrollment and management endpoints.
// Every route requires an authenticated access token.
type TwoFactorHandler struct {
	twoFactor *usecase.TwoFactorService
}

// NewTwoFactorHandler constructs TwoFactorHandler.
func NewTwoFactorHandler(twoFactor *usecase.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: twoFactor}
}

// RegisterRoutes binds two-factor management routes onto the provided group.
func (h *TwoFactorHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/status", h.status)
	r.POST("/setup", h.setup)
	r.POST("/confirm", h.confirm)
	r.DELETE("", h.disable)
	r.POST("/recovery-codes/regenerate", h.regenerateRecoveryCodes)
}

// Status godoc
// @Summary Report the caller's two-factor state
// @Tags TwoFactor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} TwoFactorStatusResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/status [get]
func (h *TwoFactorHandler) status(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	status, err := h.twoFactor.Status(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load two-factor status"))
		return
	}

	c.JSON(http.StatusOK, TwoFactorStatusResponse{
		Enabled:           status.Enabled,
		SetupPending:      status.SetupPending,
		EnabledAt:         status.EnabledAt,
		RecoveryCodesLeft: status.RecoveryCodesLeft,
	})
}

// Setup godoc
// @Summary Begin authenticator enrollment
// @Description Generates a TOTP secret, provisioning URI and a fresh recovery code set. Codes are shown exactly once.
// @Tags TwoFactor
// @Produce json
// @Security BearerAuth
// @Success 200 {object} TwoFactorSetupResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/setup [post]
func (h *TwoFactorHandler) setup(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	setup, err := h.twoFactor.InitiateSetup(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTwoFactorEnabled, Status: http.StatusConflict, Message: "two-factor already enabled"},
		}, http.StatusInternalServerError, "failed to start two-factor setup")
		return
	}

	c.JSON(http.StatusOK, TwoFactorSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		RecoveryCodes:   setup.RecoveryCodes,
	})
}

// Confirm godoc
// @Summary Complete authenticator enrollment
// @Description Activates two-factor after the caller proves possession of the authenticator with a live code.
// @Tags TwoFactor
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/confirm [post]
func (h *TwoFactorHandler) confirm(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TwoFactorConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code is required"))
		return
	}

	if err := h.twoFactor.ConfirmSetup(c.Request.Context(), userID, strings.TrimSpace(req.Code)); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTwoFactorNotSetUp, Status: http.StatusConflict, Message: "no pending setup, call setup first"},
			{Err: usecase.ErrInvalidCode, Status: http.StatusBadRequest, Message: "invalid verification code"},
		}, http.StatusInternalServerError, "failed to confirm two-factor setup")
		return
	}

	c.Status(http.StatusNoContent)
}

// Disable godoc
// @Summary Disable two-factor authentication
// @Description Turns off two-factor after a live TOTP proof. Recovery codes are not accepted here.
// @Tags TwoFactor
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa [delete]
func (h *TwoFactorHandler) disable(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TwoFactorDisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code is required"))
		return
	}

	if err := h.twoFactor.Disable(c.Request.Context(), userID, strings.TrimSpace(req.Code)); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTwoFactorNotEnabled, Status: http.StatusConflict, Message: "two-factor is not enabled"},
			{Err: usecase.ErrInvalidCode, Status: http.StatusBadRequest, Message: "invalid verification code"},
		}, http.StatusInternalServerError, "failed to disable two-factor")
		return
	}

	c.Status(http.StatusNoContent)
}

// RegenerateRecoveryCodes godoc
// @Summary Replace the recovery code set
// @Description Invalidates all previous recovery codes and returns a fresh set after a live TOTP proof.
// @Tags TwoFactor
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} RecoveryCodesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/2fa/recovery-codes/regenerate [post]
func (h *TwoFactorHandler) regenerateRecoveryCodes(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req TwoFactorConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code is required"))
		return
	}

	codes, err := h.twoFactor.RegenerateRecoveryCodes(c.Request.Context(), userID, strings.TrimSpace(req.Code))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTwoFactorNotEnabled, Status: http.StatusConflict, Message: "two-factor is not enabled"},
			{Err: usecase.ErrInvalidCode, Status: http.StatusBadRequest, Message: "invalid verification code"},
		}, http.StatusInternalServerError, "failed to regenerate recovery codes")
		return
	}

	c.JSON(http.StatusOK, RecoveryCodesResponse{RecoveryCodes: codes})
}
