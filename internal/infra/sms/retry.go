package sms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/core/port"
	"github.com/zaedhealth/identity-service/internal/infra/logger"
)

// DeliveryError describes a failed send. Transient failures (timeouts,
// provider 5xx) are worth retrying; permanent ones (invalid number,
// rejected template) are not.
type DeliveryError struct {
	Transient bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("sms delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable delivery failure.
func IsTransient(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Transient
	}
	return false
}

// RetryingGateway decorates an SMSGateway with bounded retries and
// exponential backoff. Only transient failures are retried.
type RetryingGateway struct {
	inner      port.SMSGateway
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewRetryingGateway(inner port.SMSGateway, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *RetryingGateway {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	return &RetryingGateway{
		inner:      inner,
		logger:     logger,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendOTP attempts delivery, retrying transient failures with doubling
// delays. Permanent failures and context cancellation stop immediately.
func (g *RetryingGateway) SendOTP(ctx context.Context, phone, code, channel string) (bool, error) {
	delay := g.baseDelay

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying OTP delivery",
				zap.String("phone", logger.MaskPhone(phone)),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			if err := g.sleep(ctx, delay); err != nil {
				return false, err
			}
			delay *= 2
		}

		whatsapp, err := g.inner.SendOTP(ctx, phone, code, channel)
		if err == nil {
			return whatsapp, nil
		}

		lastErr = err
		if !IsTransient(err) {
			return false, err
		}
	}

	return false, lastErr
}

// SupportsWhatsApp defers to the wrapped gateway.
func (g *RetryingGateway) SupportsWhatsApp() bool {
	return g.inner.SupportsWhatsApp()
}

var _ port.SMSGateway = (*RetryingGateway)(nil)
