package domain

import "time"

// Revocation reasons recorded on refresh token records.
const (
	RevokeReasonRotation   = "ROTATION"
	RevokeReasonLogout     = "LOGOUT"
	RevokeReasonLogoutAll  = "LOGOUT_ALL"
	RevokeReasonSuspicious = "SUSPICIOUS"
)

// RefreshToken represents a persisted refresh token record. The record is
// keyed by the JWT jti and stores only a one-way hash of the token string.
type RefreshToken struct {
	ID           string
	UserID       string
	TokenHash    string
	DeviceID     *string
	DeviceInfo   *string
	IP           *string
	LastUsedAt   *time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokeReason *string
}

// IsExpired reports whether the token has elapsed its validity window.
func (t RefreshToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsRevoked reports whether the token has been explicitly revoked.
func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsValid reports whether the token can still be presented for rotation.
func (t RefreshToken) IsValid(at time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(at)
}

// Revoke marks the token as revoked with the supplied reason. Revocation is
// monotonic: the first call wins and later calls are no-ops. Returns true when
// the token transitioned to the revoked state.
func (t *RefreshToken) Revoke(at time.Time, reason string) bool {
	if t.RevokedAt != nil {
		return false
	}
	ts := at
	t.RevokedAt = &ts
	t.RevokeReason = &reason
	return true
}
