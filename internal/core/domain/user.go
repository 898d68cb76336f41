package domain

import "time"

// UserRole enumerates account roles. Donor and requester principals are
// OTP-verified and ephemeral; partners carry a password credential; admins
// additionally require two-factor authentication.
type UserRole string

const (
	RoleDonor            UserRole = "DONOR"
	RoleRequester        UserRole = "REQUESTER"
	RolePartnerPharmacy  UserRole = "PARTNER_PHARMACY"
	RolePartnerNGO       UserRole = "PARTNER_NGO"
	RolePartnerVolunteer UserRole = "PARTNER_VOLUNTEER"
	RoleAdmin            UserRole = "ADMIN"
)

// RequiresAccount reports whether the role carries a persistent credential.
func (r UserRole) RequiresAccount() bool {
	return r != RoleDonor && r != RoleRequester
}

// RequiresTwoFactor reports whether the role must complete a 2FA challenge.
func (r UserRole) RequiresTwoFactor() bool {
	return r == RoleAdmin
}

// IsPartner reports whether the role belongs to the partner family.
func (r UserRole) IsPartner() bool {
	return r == RolePartnerPharmacy || r == RolePartnerNGO || r == RolePartnerVolunteer
}

// User mirrors the persisted representation in the users table.
type User struct {
	ID          string
	Phone       *string
	Email       string
	Name        string
	Role        UserRole
	Verified    bool
	IsActive    bool
	PartnerID   *string
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Credential holds the password material and brute-force bookkeeping for a
// principal. Ephemeral OTP-only users never own one.
type Credential struct {
	UserID         string
	PasswordHash   string
	FailedAttempts int
	LockedUntil    *time.Time
	MustChange     bool
	UpdatedAt      time.Time
}

// IsLocked reports whether the credential is under an active lockout.
func (c Credential) IsLocked(at time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(at)
}
