package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/core/port"
)

// auditTrail fans authentication events out to the audit table and the event
// bus. Both writes are best-effort: a failed audit write is logged but never
// fails the operation it describes.
type auditTrail struct {
	store  port.AuditRepository
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

func newAuditTrail(store port.AuditRepository, events port.EventPublisher, logger *zap.Logger) *auditTrail {
	return &auditTrail{store: store, events: events, logger: logger, now: time.Now}
}

func (a *auditTrail) record(ctx context.Context, event domain.AuthEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = a.now().UTC()
	}

	if a.store != nil {
		if err := a.store.Record(ctx, event); err != nil {
			a.logger.Error("Failed to write audit event",
				zap.String("event_type", string(event.EventType)),
				zap.Error(err),
			)
		}
	}

	if a.events != nil {
		if err := a.events.PublishAuthEvent(ctx, event); err != nil {
			a.logger.Error("Failed to publish audit event",
				zap.String("event_type", string(event.EventType)),
				zap.Error(err),
			)
		}
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
