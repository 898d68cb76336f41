package port

import (
	"context"
	"time"

	"github.com/zaedhealth/identity-service/internal/core/domain"
)

// AuditRepository persists append-only authentication events and answers the
// windowed counts the lockout policy needs.
type AuditRepository interface {
	Record(ctx context.Context, event domain.AuthEvent) error
	CountFailedLoginsByEmail(ctx context.Context, email string, since time.Time) (int, error)
	CountFailedLoginsByIP(ctx context.Context, ip string, since time.Time) (int, error)
}
