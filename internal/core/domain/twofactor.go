package domain

import "time"

// TwoFactorRecord stores the TOTP material for a principal. The secret is
// present only while setup is pending or the factor is enabled; recovery codes
// are stored hashed and strictly single-use.
type TwoFactorRecord struct {
	UserID        string
	Secret        string
	Enabled       bool
	EnabledAt     *time.Time
	RecoveryCodes []string
	UsedCount     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SetupPending reports whether setup was initiated but not yet confirmed.
func (r TwoFactorRecord) SetupPending() bool {
	return !r.Enabled && r.Secret != ""
}
