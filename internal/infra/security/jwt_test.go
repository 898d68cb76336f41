package security

import (
	"errors"
	"testing"
	"time"
)

func newTestTokenService(now time.Time) *TokenService {
	svc := NewTokenService(NewHMACSigner("test-secret"), "zaed.org",
		time.Hour, 168*time.Hour, 15*time.Minute, 5*time.Minute)
	return svc.WithClock(func() time.Time { return now })
}

func TestMintAndVerifyAccessToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(now)

	token, err := svc.MintAccess(AccessClaims{
		UserID:      "user-1",
		Email:       "donor@example.com",
		Role:        "DONOR",
		Permissions: []string{"donation:create", "donation:view_own"},
	})
	if err != nil {
		t.Fatalf("MintAccess returned error: %v", err)
	}

	claims, err := svc.Verify(token, TokenTypeAccess)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Email != "donor@example.com" {
		t.Errorf("email = %q, want donor@example.com", claims.Email)
	}
	if claims.Role != "DONOR" {
		t.Errorf("role = %q, want DONOR", claims.Role)
	}
	if len(claims.Permissions) != 2 {
		t.Errorf("permissions = %v, want 2 entries", claims.Permissions)
	}
	if claims.ID == "" {
		t.Error("expected a jti on the minted token")
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	svc := newTestTokenService(time.Now())

	token, err := svc.MintTwoFactorPending("user-1")
	if err != nil {
		t.Fatalf("MintTwoFactorPending returned error: %v", err)
	}

	if _, err := svc.Verify(token, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for type mismatch, got %v", err)
	}
	if _, err := svc.Verify(token, TokenTypeTwoFactorPending); err != nil {
		t.Fatalf("expected pending token to verify as its own type, got %v", err)
	}
}

func TestVerifyReportsExpiredToken(t *testing.T) {
	minted := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(minted)

	token, err := svc.MintAccess(AccessClaims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("MintAccess returned error: %v", err)
	}

	svc.WithClock(func() time.Time { return minted.Add(2 * time.Hour) })

	if _, err := svc.Verify(token, TokenTypeAccess); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRejectsForeignIssuerAndSecret(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(now)

	foreign := NewTokenService(NewHMACSigner("other-secret"), "zaed.org",
		time.Hour, 168*time.Hour, 15*time.Minute, 5*time.Minute).
		WithClock(func() time.Time { return now })
	token, err := foreign.MintAccess(AccessClaims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("MintAccess returned error: %v", err)
	}
	if _, err := svc.Verify(token, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}

	wrongIssuer := NewTokenService(NewHMACSigner("test-secret"), "elsewhere.org",
		time.Hour, 168*time.Hour, 15*time.Minute, 5*time.Minute).
		WithClock(func() time.Time { return now })
	token, err = wrongIssuer.MintAccess(AccessClaims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("MintAccess returned error: %v", err)
	}
	if _, err := svc.Verify(token, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign issuer, got %v", err)
	}
}

func TestMintRefreshCarriesJtiAndDevice(t *testing.T) {
	svc := newTestTokenService(time.Now())

	token, err := svc.MintRefresh("user-1", "session-jti", "device-9")
	if err != nil {
		t.Fatalf("MintRefresh returned error: %v", err)
	}

	claims, err := svc.Verify(token, TokenTypeRefresh)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.ID != "session-jti" {
		t.Errorf("jti = %q, want session-jti", claims.ID)
	}
	if claims.DeviceID != "device-9" {
		t.Errorf("deviceId = %q, want device-9", claims.DeviceID)
	}
}

func TestMintTempScopesPermissionsToContext(t *testing.T) {
	svc := newTestTokenService(time.Now())

	token, err := svc.MintTemp("+201234567890", "DONATION", "don-42", "trk-7",
		[]string{"donation:upload_image", "donation:view_own"})
	if err != nil {
		t.Fatalf("MintTemp returned error: %v", err)
	}

	claims, err := svc.Verify(token, TokenTypeTemp)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "phone:+201234567890" {
		t.Errorf("subject = %q, want phone:+201234567890", claims.Subject)
	}
	if claims.Context != "DONATION" || claims.ReferenceID != "don-42" || claims.TrackingCode != "trk-7" {
		t.Errorf("context claims = (%q, %q, %q)", claims.Context, claims.ReferenceID, claims.TrackingCode)
	}
}

func TestUnsafeExtractSubject(t *testing.T) {
	svc := newTestTokenService(time.Now())

	token, err := svc.MintAccess(AccessClaims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("MintAccess returned error: %v", err)
	}

	if got := UnsafeExtractSubject(token); got != "user-1" {
		t.Errorf("UnsafeExtractSubject = %q, want user-1", got)
	}
	if got := UnsafeExtractSubject("garbage"); got != "" {
		t.Errorf("UnsafeExtractSubject on garbage = %q, want empty", got)
	}
}
