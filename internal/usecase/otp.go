package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/core/port"
	"github.com/zaedhealth/identity-service/internal/infra/config"
	"github.com/zaedhealth/identity-service/internal/infra/logger"
	"github.com/zaedhealth/identity-service/internal/infra/security"
	"github.com/zaedhealth/identity-service/internal/repository"
)

// Delivery channels accepted by SendOTP.
const (
	ChannelSMS      = "SMS"
	ChannelWhatsApp = "WHATSAPP"
)

// SendOTPInput requests delivery of a one-time code.
type SendOTPInput struct {
	Phone       string
	Channel     string
	Context     domain.OtpContext
	ReferenceID string
	IP          string
}

// OTPDelivery reports a successful send.
type OTPDelivery struct {
	ExpiresIn   int
	MaskedPhone string
	Channel     string
}

// VerifyOTPInput presents a code for verification.
type VerifyOTPInput struct {
	Phone        string
	Code         string
	Context      domain.OtpContext
	ReferenceID  string
	TrackingCode string
	IP           string
}

// OTPVerification carries the scoped temp token minted on success.
type OTPVerification struct {
	TempToken string
	ExpiresIn int
}

// OTPService issues and verifies phone-bound one-time codes. Codes live only
// in the ephemeral store, hashed, under a (phone, context, reference) key;
// a fixed-window per-phone counter bounds sends and a per-key counter bounds
// verification attempts.
type OTPService struct {
	store   port.EphemeralStore
	hasher  port.PasswordHasher
	gateway port.SMSGateway
	tokens  *security.TokenService
	cfg     config.OTPSettings
	audit   *auditTrail
	logger  *zap.Logger
	now     func() time.Time
}

// NewOTPService constructs an OTPService instance.
func NewOTPService(
	store port.EphemeralStore,
	hasher port.PasswordHasher,
	gateway port.SMSGateway,
	tokens *security.TokenService,
	cfg config.OTPSettings,
	auditStore port.AuditRepository,
	events port.EventPublisher,
	log *zap.Logger,
) *OTPService {
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RateLimitPerHour <= 0 {
		cfg.RateLimitPerHour = 3
	}

	return &OTPService{
		store:   store,
		hasher:  hasher,
		gateway: gateway,
		tokens:  tokens,
		cfg:     cfg,
		audit:   newAuditTrail(auditStore, events, log),
		logger:  log,
		now:     time.Now,
	}
}

// WithClock replaces the time source, used in tests.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	s.audit.now = now
	return s
}

func codeKey(phone string, ctx domain.OtpContext, referenceID string) string {
	return fmt.Sprintf("otp:%s:%s:%s", phone, ctx, referenceID)
}

func attemptsKey(phone string, ctx domain.OtpContext, referenceID string) string {
	return fmt.Sprintf("otp_attempts:%s:%s:%s", phone, ctx, referenceID)
}

func rateKey(phone string) string {
	return fmt.Sprintf("otp_rate:%s", phone)
}

// Send generates, stores, and delivers a one-time code. Sends are bounded by
// a fixed-window hourly counter per phone; the window starts on the first
// send and resets entirely when its TTL lapses.
func (s *OTPService) Send(ctx context.Context, in SendOTPInput) (*OTPDelivery, error) {
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return nil, fmt.Errorf("phone is required")
	}
	if !in.Context.Valid() {
		return nil, ErrInvalidOtpContext
	}

	if err := s.checkRateLimit(ctx, phone, in); err != nil {
		return nil, err
	}

	code, err := security.GenerateNumericCode(s.cfg.Length)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}

	key := codeKey(phone, in.Context, in.ReferenceID)
	if err := s.store.SetWithTTL(ctx, key, hash, s.cfg.Expiry); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}
	if err := s.store.Delete(ctx, attemptsKey(phone, in.Context, in.ReferenceID)); err != nil {
		s.logger.Warn("Failed to clear stale attempt counter", zap.Error(err))
	}

	count, err := s.store.Increment(ctx, rateKey(phone))
	if err != nil {
		return nil, fmt.Errorf("increment rate counter: %w", err)
	}
	if count == 1 {
		if err := s.store.Expire(ctx, rateKey(phone), time.Hour); err != nil {
			return nil, fmt.Errorf("arm rate counter ttl: %w", err)
		}
	}

	channel := strings.ToUpper(in.Channel)
	if channel != ChannelWhatsApp || !s.gateway.SupportsWhatsApp() {
		channel = ChannelSMS
	}
	viaWhatsApp, err := s.gateway.SendOTP(ctx, phone, code, channel)
	if err != nil {
		// The stored code stays live for its TTL in case delivery partially
		// succeeded; only the caller-visible result fails.
		s.recordOtp(ctx, domain.EventOtpSent, phone, in.IP, false, "DELIVERY_FAILED")
		return nil, fmt.Errorf("%w: %v", ErrOtpDelivery, err)
	}
	if viaWhatsApp {
		channel = ChannelWhatsApp
	}

	s.recordOtp(ctx, domain.EventOtpSent, phone, in.IP, true, "")
	return &OTPDelivery{
		ExpiresIn:   int(s.cfg.Expiry.Seconds()),
		MaskedPhone: logger.MaskPhone(phone),
		Channel:     channel,
	}, nil
}

// Verify checks a presented code. Wrong guesses increment a per-key attempt
// counter whose TTL tracks the code's remaining life; exhausting the attempts
// locks the key until the code expires. A match consumes both the code and
// the counter and mints a scoped temp token.
func (s *OTPService) Verify(ctx context.Context, in VerifyOTPInput) (*OTPVerification, error) {
	phone := strings.TrimSpace(in.Phone)
	if phone == "" || in.Code == "" {
		return nil, ErrOtpExpired
	}
	if !in.Context.Valid() {
		return nil, ErrInvalidOtpContext
	}

	aKey := attemptsKey(phone, in.Context, in.ReferenceID)
	attempts, err := s.readCounter(ctx, aKey)
	if err != nil {
		return nil, err
	}
	if attempts >= s.cfg.MaxAttempts {
		s.recordOtp(ctx, domain.EventOtpFailed, phone, in.IP, false, "MAX_ATTEMPTS")
		return nil, ErrTooManyAttempts
	}

	cKey := codeKey(phone, in.Context, in.ReferenceID)
	hash, err := s.store.Get(ctx, cKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recordOtp(ctx, domain.EventOtpFailed, phone, in.IP, false, "EXPIRED")
			return nil, ErrOtpExpired
		}
		return nil, fmt.Errorf("load code: %w", err)
	}

	ok, err := s.hasher.Verify(in.Code, hash)
	if err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}
	if !ok {
		count, err := s.store.Increment(ctx, aKey)
		if err != nil {
			return nil, fmt.Errorf("increment attempt counter: %w", err)
		}
		if ttl, err := s.store.TTL(ctx, cKey); err == nil && ttl > 0 {
			if err := s.store.Expire(ctx, aKey, ttl); err != nil {
				s.logger.Warn("Failed to re-arm attempt counter ttl", zap.Error(err))
			}
		}
		s.recordOtp(ctx, domain.EventOtpFailed, phone, in.IP, false, "INVALID_CODE")
		remaining := s.cfg.MaxAttempts - int(count)
		if remaining < 0 {
			remaining = 0
		}
		return nil, &InvalidOtpError{RemainingAttempts: remaining}
	}

	if err := s.store.Delete(ctx, cKey); err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	if err := s.store.Delete(ctx, aKey); err != nil {
		s.logger.Warn("Failed to clear attempt counter", zap.Error(err))
	}

	tempToken, err := s.tokens.MintTemp(phone, string(in.Context), in.ReferenceID, in.TrackingCode,
		domain.PermissionStrings(in.Context.GrantedPermissions()))
	if err != nil {
		return nil, fmt.Errorf("mint temp token: %w", err)
	}

	s.recordOtp(ctx, domain.EventOtpVerified, phone, in.IP, true, "")
	return &OTPVerification{
		TempToken: tempToken,
		ExpiresIn: int(s.tokens.TempTokenTTL().Seconds()),
	}, nil
}

// RetryAfter reports the remaining life of the phone's rate-limit window,
// zero when no window is active.
func (s *OTPService) RetryAfter(ctx context.Context, phone string) (time.Duration, error) {
	ttl, err := s.store.TTL(ctx, rateKey(phone))
	if err != nil {
		return 0, fmt.Errorf("read rate counter ttl: %w", err)
	}
	return ttl, nil
}

func (s *OTPService) checkRateLimit(ctx context.Context, phone string, in SendOTPInput) error {
	count, err := s.readCounter(ctx, rateKey(phone))
	if err != nil {
		return err
	}
	if count < s.cfg.RateLimitPerHour {
		return nil
	}

	retryAfter, err := s.store.TTL(ctx, rateKey(phone))
	if err != nil {
		return fmt.Errorf("read rate counter ttl: %w", err)
	}
	s.recordOtp(ctx, domain.EventOtpRateLimited, phone, in.IP, false, "RATE_LIMITED")
	return &RateLimitExceededError{Scope: "otp", RetryAfter: retryAfter}
}

func (s *OTPService) readCounter(ctx context.Context, key string) (int, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}

	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse counter %s: %w", key, err)
	}
	return count, nil
}

func (s *OTPService) recordOtp(ctx context.Context, kind domain.AuthEventType, phone, ip string, success bool, reason string) {
	s.audit.record(ctx, domain.AuthEvent{
		EventType: kind,
		Phone:     &phone,
		IP:        ip,
		Success:   success,
		Details:   strPtr(reason),
	})
}
