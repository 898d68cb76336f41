package port

import (
	"context"
	"time"

	"github.com/zaedhealth/identity-service/internal/core/domain"
)

// RefreshTokenRepository manages refresh token records keyed by jti.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	GetByID(ctx context.Context, id string) (*domain.RefreshToken, error)
	// Revoke stamps revoked_at and the reason on an unrevoked record. The
	// update is conditional on revoked_at still being NULL so that two
	// concurrent rotations of the same jti cannot both win; the boolean
	// reports whether this call performed the transition.
	Revoke(ctx context.Context, id string, at time.Time, reason string) (bool, error)
	// RevokeAllForUser revokes every live record for the principal and returns
	// how many records transitioned.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time, reason string) (int, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
