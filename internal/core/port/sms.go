package port

import "context"

// SMSGateway delivers one-time codes to a phone over the requested channel
// ("SMS" or "WHATSAPP"). Implementations own provider-specific wiring; the
// core consumes a single synchronous delivered/not-delivered outcome.
type SMSGateway interface {
	SendOTP(ctx context.Context, phone, code, channel string) (bool, error)
	SupportsWhatsApp() bool
}
