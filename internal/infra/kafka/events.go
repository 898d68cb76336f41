package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/core/port"
	"github.com/zaedhealth/identity-service/internal/infra/config"
	"github.com/zaedhealth/identity-service/internal/infra/logger"
)

const (
	schemaVersion   = "1.0"
	authEventsTopic = "auth.events"
)

// EventPublisher implements port.EventPublisher using Kafka. All
// authentication events land on a single topic keyed by user id so consumers
// observe a per-user ordering.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed auth event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// PublishAuthEvent publishes a single authentication event. Email, phone,
// and IP are masked before leaving the service; the unmasked values live only
// in the audit table.
func (p *EventPublisher) PublishAuthEvent(ctx context.Context, event domain.AuthEvent) error {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}

	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	payload := struct {
		Email     string  `json:"email,omitempty"`
		Phone     string  `json:"phone,omitempty"`
		IPAddress string  `json:"ip_address,omitempty"`
		UserAgent *string `json:"user_agent,omitempty"`
		Success   bool    `json:"success"`
		Details   *string `json:"details,omitempty"`
	}{
		IPAddress: logger.MaskIP(event.IP),
		UserAgent: event.UserAgent,
		Success:   event.Success,
		Details:   event.Details,
	}
	if event.Email != nil {
		payload.Email = logger.MaskEmail(*event.Email)
	}
	if event.Phone != nil {
		payload.Phone = logger.MaskPhone(*event.Phone)
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	userID := ""
	if event.UserID != nil {
		userID = *event.UserID
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: string(event.EventType),
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(authEventsTopic),
		Value: sarama.ByteEncoder(bytes),
	}
	if userID != "" {
		message.Key = sarama.StringEncoder(userID)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.EventPublisher = (*EventPublisher)(nil)
