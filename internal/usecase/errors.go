package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates the email or password is incorrect.
	// Unknown accounts and wrong passwords are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the account exists but has been deactivated.
	ErrAccountDisabled = errors.New("account is disabled")
	// ErrInvalidToken indicates a token failed verification or its backing
	// record does not exist.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token is past its expiry.
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidCode indicates a TOTP or recovery code did not verify.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrOtpExpired indicates no live OTP exists for the key.
	ErrOtpExpired = errors.New("otp expired or not found")
	// ErrOtpDelivery indicates the delivery collaborator failed to send
	// the code. The stored code remains valid for its TTL.
	ErrOtpDelivery = errors.New("otp delivery failed")
	// ErrTooManyAttempts indicates the per-code attempt limit is exhausted.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrInvalidOtpContext indicates an unknown OTP context value.
	ErrInvalidOtpContext = errors.New("invalid otp context")
	// ErrTwoFactorEnabled indicates setup was requested while the factor is
	// already active.
	ErrTwoFactorEnabled = errors.New("two-factor authentication already enabled")
	// ErrTwoFactorNotSetUp indicates confirmation was requested before setup.
	ErrTwoFactorNotSetUp = errors.New("two-factor authentication not set up")
	// ErrTwoFactorNotEnabled indicates a verification was requested while the
	// factor is not active.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
)

// RateLimitExceededError reports that a rate or lockout limit tripped.
// Scope identifies which limit ("email", "ip", "account", "otp").
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
}

// InvalidOtpError reports an OTP mismatch along with how many attempts the
// caller has left before the code is locked out.
type InvalidOtpError struct {
	RemainingAttempts int
}

func (e *InvalidOtpError) Error() string {
	return fmt.Sprintf("invalid otp, %d attempts remaining", e.RemainingAttempts)
}
