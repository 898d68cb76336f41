package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/infra/config"
	"github.com/zaedhealth/identity-service/internal/infra/security"
)

type captureGateway struct {
	lastCode    string
	lastChannel string
	whatsapp    bool
	failNext    error
}

func (g *captureGateway) SendOTP(_ context.Context, _, code, channel string) (bool, error) {
	if g.failNext != nil {
		err := g.failNext
		g.failNext = nil
		return false, err
	}
	g.lastCode = code
	g.lastChannel = channel
	return g.whatsapp && channel == ChannelWhatsApp, nil
}

func (g *captureGateway) SupportsWhatsApp() bool { return g.whatsapp }

type otpFixture struct {
	svc     *OTPService
	store   *stubEphemeralStore
	gateway *captureGateway
	tokens  *security.TokenService
	audit   *stubAuditRepo
	now     time.Time
	setNow  func(time.Time)
}

func newOTPFixture(t *testing.T) *otpFixture {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := &now
	clock := func() time.Time { return *current }
	log := zaptest.NewLogger(t)

	tokens := security.NewTokenService(security.NewHMACSigner("test-secret"), "zaed.org",
		time.Hour, 168*time.Hour, 15*time.Minute, 5*time.Minute).WithClock(clock)

	store := newStubEphemeralStore(clock)
	gateway := &captureGateway{}
	audit := &stubAuditRepo{}

	svc := NewOTPService(store, plainHasher{}, gateway, tokens, config.OTPSettings{
		Length:           6,
		Expiry:           5 * time.Minute,
		MaxAttempts:      3,
		RateLimitPerHour: 3,
	}, audit, &stubPublisher{}, log).WithClock(clock)

	return &otpFixture{
		svc:     svc,
		store:   store,
		gateway: gateway,
		tokens:  tokens,
		audit:   audit,
		now:     now,
		setNow:  func(ts time.Time) { *current = ts },
	}
}

const testPhone = "+201234567890"

func sendInput() SendOTPInput {
	return SendOTPInput{
		Phone:       testPhone,
		Channel:     ChannelSMS,
		Context:     domain.OtpContextDonation,
		ReferenceID: "don-42",
		IP:          "203.0.113.7",
	}
}

func TestSendAndVerifyOnce(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	delivery, err := f.svc.Send(ctx, sendInput())
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if delivery.ExpiresIn != 300 {
		t.Errorf("ExpiresIn = %d, want 300", delivery.ExpiresIn)
	}
	if delivery.MaskedPhone == testPhone {
		t.Error("response must not carry the full phone number")
	}
	if len(f.gateway.lastCode) != 6 {
		t.Fatalf("delivered code %q, want 6 digits", f.gateway.lastCode)
	}

	result, err := f.svc.Verify(ctx, VerifyOTPInput{
		Phone: testPhone, Code: f.gateway.lastCode,
		Context: domain.OtpContextDonation, ReferenceID: "don-42",
		TrackingCode: "trk-7", IP: "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	claims, err := f.tokens.Verify(result.TempToken, security.TokenTypeTemp)
	if err != nil {
		t.Fatalf("temp token failed verification: %v", err)
	}
	if claims.Subject != "phone:"+testPhone {
		t.Errorf("temp subject = %q, want phone:%s", claims.Subject, testPhone)
	}
	if claims.Context != "DONATION" || claims.TrackingCode != "trk-7" {
		t.Errorf("temp claims = (%q, %q)", claims.Context, claims.TrackingCode)
	}
	if len(claims.Permissions) != 2 {
		t.Errorf("temp permissions = %v, want the donation pair", claims.Permissions)
	}

	// Replaying the consumed code fails as expired.
	_, err = f.svc.Verify(ctx, VerifyOTPInput{
		Phone: testPhone, Code: f.gateway.lastCode,
		Context: domain.OtpContextDonation, ReferenceID: "don-42",
	})
	if !errors.Is(err, ErrOtpExpired) {
		t.Fatalf("expected ErrOtpExpired on replay, got %v", err)
	}
}

func TestVerifyWrongCodeCountsDown(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Send(ctx, sendInput()); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	wrong := VerifyOTPInput{
		Phone: testPhone, Code: "000000",
		Context: domain.OtpContextDonation, ReferenceID: "don-42",
	}
	if wrong.Code == f.gateway.lastCode {
		wrong.Code = "000001"
	}

	for want := 2; want >= 0; want-- {
		_, err := f.svc.Verify(ctx, wrong)
		var invalidErr *InvalidOtpError
		if !errors.As(err, &invalidErr) {
			t.Fatalf("expected InvalidOtpError, got %v", err)
		}
		if invalidErr.RemainingAttempts != want {
			t.Errorf("RemainingAttempts = %d, want %d", invalidErr.RemainingAttempts, want)
		}
	}

	// Attempts exhausted: even the correct code is refused.
	_, err := f.svc.Verify(ctx, VerifyOTPInput{
		Phone: testPhone, Code: f.gateway.lastCode,
		Context: domain.OtpContextDonation, ReferenceID: "don-42",
	})
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestSendRateLimitIsFixedWindow(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		in := sendInput()
		in.ReferenceID = fmt.Sprintf("don-%d", i)
		if _, err := f.svc.Send(ctx, in); err != nil {
			t.Fatalf("send %d returned error: %v", i+1, err)
		}
	}

	_, err := f.svc.Send(ctx, sendInput())
	var rateErr *RateLimitExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
	if rateErr.Scope != "otp" {
		t.Errorf("scope = %q, want otp", rateErr.Scope)
	}
	if rateErr.RetryAfter <= 0 || rateErr.RetryAfter > time.Hour {
		t.Errorf("RetryAfter = %s, want within the hour window", rateErr.RetryAfter)
	}

	// The counter resets entirely once the window lapses.
	f.setNow(f.now.Add(61 * time.Minute))
	if _, err := f.svc.Send(ctx, sendInput()); err != nil {
		t.Fatalf("send after window reset returned error: %v", err)
	}
}

func TestSendDeliveryFailureKeepsCodeLive(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	f.gateway.failNext = errors.New("provider unavailable")

	_, err := f.svc.Send(ctx, sendInput())
	if !errors.Is(err, ErrOtpDelivery) {
		t.Fatalf("expected ErrOtpDelivery, got %v", err)
	}

	// The stored code stays valid: a resend within the window succeeds and
	// the stored hash exists for the key.
	if _, storeErr := f.store.Get(ctx, codeKey(testPhone, domain.OtpContextDonation, "don-42")); storeErr != nil {
		t.Fatalf("expected stored code to survive delivery failure: %v", storeErr)
	}
}

func TestRetryAfter(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	ttl, err := f.svc.RetryAfter(ctx, testPhone)
	if err != nil {
		t.Fatalf("RetryAfter returned error: %v", err)
	}
	if ttl != 0 {
		t.Errorf("RetryAfter before any send = %s, want 0", ttl)
	}

	if _, err := f.svc.Send(ctx, sendInput()); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	ttl, err = f.svc.RetryAfter(ctx, testPhone)
	if err != nil {
		t.Fatalf("RetryAfter returned error: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("RetryAfter = %s, want within (0, 1h]", ttl)
	}
}

func TestSendFallsBackToSMSWithoutWhatsApp(t *testing.T) {
	f := newOTPFixture(t)

	in := sendInput()
	in.Channel = ChannelWhatsApp
	delivery, err := f.svc.Send(context.Background(), in)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if delivery.Channel != ChannelSMS {
		t.Errorf("channel = %q, want fallback to SMS", delivery.Channel)
	}
	if f.gateway.lastChannel != ChannelSMS {
		t.Errorf("gateway received channel %q, want SMS", f.gateway.lastChannel)
	}
}

func TestSendRejectsUnknownContext(t *testing.T) {
	f := newOTPFixture(t)

	in := sendInput()
	in.Context = domain.OtpContext("PROMO")
	if _, err := f.svc.Send(context.Background(), in); !errors.Is(err, ErrInvalidOtpContext) {
		t.Fatalf("expected ErrInvalidOtpContext, got %v", err)
	}
}
