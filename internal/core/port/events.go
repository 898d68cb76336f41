package port

import (
	"context"

	"github.com/zaedhealth/identity-service/internal/core/domain"
)

// EventPublisher forwards audit events to the message bus for downstream
// consumers. Publishing is fire-and-forget relative to the authentication
// flow: failures are surfaced to monitoring, never to the caller.
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, event domain.AuthEvent) error
}
