package domain

import "time"

// AuthEventType enumerates auditable authentication events.
type AuthEventType string

const (
	EventLoginSuccess AuthEventType = "LOGIN_SUCCESS"
	EventLoginFailed  AuthEventType = "LOGIN_FAILED"
	EventLogout       AuthEventType = "LOGOUT"
	EventLogoutAll    AuthEventType = "LOGOUT_ALL"

	EventOtpSent        AuthEventType = "OTP_SENT"
	EventOtpVerified    AuthEventType = "OTP_VERIFIED"
	EventOtpFailed      AuthEventType = "OTP_FAILED"
	EventOtpRateLimited AuthEventType = "OTP_RATE_LIMITED"

	EventTwoFactorChallenge AuthEventType = "TWO_FACTOR_CHALLENGE"
	EventTwoFactorSuccess   AuthEventType = "TWO_FACTOR_SUCCESS"
	EventTwoFactorFailed    AuthEventType = "TWO_FACTOR_FAILED"
	EventTwoFactorEnabled   AuthEventType = "TWO_FA_ENABLED"
	EventTwoFactorDisabled  AuthEventType = "TWO_FA_DISABLED"
	EventBackupCodeUsed     AuthEventType = "BACKUP_CODE_USED"

	EventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	EventTokenRevoked   AuthEventType = "TOKEN_REVOKED"

	EventAccountLocked AuthEventType = "ACCOUNT_LOCKED"
)

// AuthEvent is an append-only audit record. It is read back only to evaluate
// lockout windows on the login path.
type AuthEvent struct {
	ID        string
	EventType AuthEventType
	UserID    *string
	Email     *string
	Phone     *string
	IP        string
	UserAgent *string
	Success   bool
	Details   *string
	CreatedAt time.Time
}
