package sms

import (
	"context"

	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/core/port"
	"github.com/zaedhealth/identity-service/internal/infra/logger"
)

// ConsoleGateway writes OTP deliveries to the log instead of a provider.
// Used in development and test environments; the code itself is never
// logged in full.
type ConsoleGateway struct {
	logger *zap.Logger
}

func NewConsoleGateway(logger *zap.Logger) *ConsoleGateway {
	return &ConsoleGateway{logger: logger}
}

// SendOTP logs the delivery with the phone number masked. It always reports
// SMS as the used channel.
func (g *ConsoleGateway) SendOTP(_ context.Context, phone, code, channel string) (bool, error) {
	g.logger.Info("OTP delivery (console gateway)",
		zap.String("phone", logger.MaskPhone(phone)),
		zap.String("requested_channel", channel),
		zap.String("code", code),
	)
	return false, nil
}

// SupportsWhatsApp reports whether the gateway can deliver over WhatsApp.
func (g *ConsoleGateway) SupportsWhatsApp() bool { return false }

var _ port.SMSGateway = (*ConsoleGateway)(nil)
