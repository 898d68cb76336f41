package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/core/port"
	"github.com/zaedhealth/identity-service/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no
// brokers are configured, typically in development.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// PublishAuthEvent logs the event with PII masked.
func (p *StubPublisher) PublishAuthEvent(_ context.Context, event domain.AuthEvent) error {
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("event_type", string(event.EventType)),
		zap.Bool("success", event.Success),
		zap.Time("timestamp", ts.UTC()),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", *event.UserID))
	}
	if event.Email != nil {
		fields = append(fields, zap.String("email", logger.MaskEmail(*event.Email)))
	}
	if event.Phone != nil {
		fields = append(fields, zap.String("phone", logger.MaskPhone(*event.Phone)))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", logger.MaskIP(event.IP)))
	}
	if event.Details != nil {
		fields = append(fields, zap.String("details", *event.Details))
	}

	p.logger.Info("Stub event published", fields...)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
