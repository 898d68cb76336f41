package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zaedhealth/identity-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error             string `json:"error"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	TraceID           string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email,omitempty"`
	Phone     *string         `json:"phone,omitempty"`
	Role      domain.UserRole `json:"role"`
	PartnerID *string         `json:"partner_id,omitempty"`
}

// newUserSummary converts a domain user to a summary suitable for API responses.
func newUserSummary(user domain.User) UserSummary {
	return UserSummary{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.Role,
		PartnerID: user.PartnerID,
	}
}

// LoginRequest defines the payload for the password login endpoint.
type LoginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	DeviceID   string `json:"device_id"`
	DeviceInfo string `json:"device_info"`
}

// TokenPairResponse carries a freshly issued access/refresh token pair.
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// LoginResponse is returned by the login endpoint. Either Tokens is populated
// or Requires2FA is true and TempToken carries the pending challenge token.
type LoginResponse struct {
	Requires2FA bool               `json:"requires_2fa"`
	TempToken   string             `json:"temp_token,omitempty"`
	Tokens      *TokenPairResponse `json:"tokens,omitempty"`
	User        *UserSummary       `json:"user,omitempty"`
}

// TwoFactorVerifyRequest completes a pending 2FA challenge with either a TOTP
// code or a recovery code.
type TwoFactorVerifyRequest struct {
	TempToken    string `json:"temp_token" binding:"required"`
	Code         string `json:"code"`
	RecoveryCode string `json:"recovery_code"`
	DeviceID     string `json:"device_id"`
	DeviceInfo   string `json:"device_info"`
}

// TokenRefreshRequest defines the payload for the refresh endpoint.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest defines the payload for the logout endpoint.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutAllResponse reports how many sessions were revoked.
type LogoutAllResponse struct {
	RevokedSessions int `json:"revoked_sessions"`
}

// OTPSendRequest defines the payload for requesting an OTP delivery.
type OTPSendRequest struct {
	Phone       string `json:"phone" binding:"required"`
	Channel     string `json:"channel"`
	Context     string `json:"context" binding:"required"`
	ReferenceID string `json:"reference_id"`
}

// OTPSendResponse describes a dispatched OTP.
type OTPSendResponse struct {
	ExpiresIn   int    `json:"expires_in"`
	MaskedPhone string `json:"masked_phone"`
	Channel     string `json:"channel"`
}

// OTPVerifyRequest defines the payload for confirming an OTP code.
type OTPVerifyRequest struct {
	Phone        string `json:"phone" binding:"required"`
	Code         string `json:"code" binding:"required"`
	Context      string `json:"context" binding:"required"`
	ReferenceID  string `json:"reference_id"`
	TrackingCode string `json:"tracking_code"`
}

// OTPVerifyResponse carries the scoped temp token minted for a verified phone.
type OTPVerifyResponse struct {
	TempToken string `json:"temp_token"`
	ExpiresIn int    `json:"expires_in"`
}

// TwoFactorSetupResponse returns the provisioning material for an authenticator
// enrollment. Recovery codes are shown exactly once.
type TwoFactorSetupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	RecoveryCodes   []string `json:"recovery_codes"`
}

// TwoFactorConfirmRequest carries the TOTP proof finishing an enrollment.
type TwoFactorConfirmRequest struct {
	Code string `json:"code" binding:"required"`
}

// TwoFactorDisableRequest carries the TOTP proof required to disable 2FA.
type TwoFactorDisableRequest struct {
	Code string `json:"code" binding:"required"`
}

// TwoFactorStatusResponse describes the caller's two-factor state.
type TwoFactorStatusResponse struct {
	Enabled           bool       `json:"enabled"`
	SetupPending      bool       `json:"setup_pending"`
	EnabledAt         *time.Time `json:"enabled_at,omitempty"`
	RecoveryCodesLeft int        `json:"recovery_codes_left"`
}

// RecoveryCodesResponse returns a freshly generated recovery code set.
type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
