package port

import (
	"context"
	"time"

	"github.com/zaedhealth/identity-service/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
}

// CredentialRepository manages the password credential attached to a user.
type CredentialRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Credential, error)
	Save(ctx context.Context, credential domain.Credential) error
	// RecordFailure atomically increments the failed-attempt counter and, once
	// the counter reaches threshold, stamps locked_until. Returns the updated
	// counter value.
	RecordFailure(ctx context.Context, userID string, threshold int, lockedUntil time.Time) (int, error)
	// ClearFailures resets the counter and lockout after a successful login.
	ClearFailures(ctx context.Context, userID string) error
}

// TwoFactorRepository owns TwoFactorRecord persistence. Recovery-code
// consumption replaces the full hashed set in a single conditional update.
type TwoFactorRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domain.TwoFactorRecord, error)
	Save(ctx context.Context, record domain.TwoFactorRecord) error
	// ConsumeRecoveryCode replaces the stored code set with the reduced set,
	// guarded on the previous set still being current so that concurrent
	// attempts cannot both consume the same code. Returns false when the guard
	// failed.
	ConsumeRecoveryCode(ctx context.Context, userID string, previous, remaining []string) (bool, error)
	Clear(ctx context.Context, userID string) error
}
