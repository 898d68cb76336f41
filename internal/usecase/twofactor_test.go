package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap/zaptest"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/infra/security"
)

func newTwoFactorFixture(t *testing.T) (*TwoFactorService, *stubTwoFactorRepo) {
	t.Helper()

	admin := domain.User{
		ID:       "admin-1",
		Email:    "admin@example.com",
		Role:     domain.RoleAdmin,
		IsActive: true,
	}
	repo := newStubTwoFactorRepo()
	svc := NewTwoFactorService(repo, newStubUserRepo(admin), plainHasher{},
		security.NewTOTPProvider("Zaed"), 10, &stubAuditRepo{}, &stubPublisher{},
		zaptest.NewLogger(t))

	return svc, repo
}

func liveCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode returned error: %v", err)
	}
	return code
}

func TestSetupAndConfirmFlow(t *testing.T) {
	svc, _ := newTwoFactorFixture(t)
	ctx := context.Background()

	setup, err := svc.InitiateSetup(ctx, "admin-1")
	if err != nil {
		t.Fatalf("InitiateSetup returned error: %v", err)
	}
	if setup.Secret == "" {
		t.Fatal("expected a secret")
	}
	if !strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/") {
		t.Errorf("provisioning uri = %q", setup.ProvisioningURI)
	}
	if len(setup.RecoveryCodes) != 10 {
		t.Fatalf("recovery codes = %d, want 10", len(setup.RecoveryCodes))
	}

	status, err := svc.Status(ctx, "admin-1")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Enabled || !status.SetupPending {
		t.Errorf("status = %+v, want pending and not enabled", status)
	}

	// Wrong code leaves the state unchanged.
	wrong := "000000"
	if wrong == liveCode(t, setup.Secret) {
		wrong = "000001"
	}
	if err := svc.ConfirmSetup(ctx, "admin-1", wrong); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	if err := svc.ConfirmSetup(ctx, "admin-1", liveCode(t, setup.Secret)); err != nil {
		t.Fatalf("ConfirmSetup returned error: %v", err)
	}

	status, err = svc.Status(ctx, "admin-1")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if !status.Enabled || status.EnabledAt == nil {
		t.Errorf("status = %+v, want enabled with timestamp", status)
	}

	// Setup cannot be re-initiated while enabled.
	if _, err := svc.InitiateSetup(ctx, "admin-1"); !errors.Is(err, ErrTwoFactorEnabled) {
		t.Fatalf("expected ErrTwoFactorEnabled, got %v", err)
	}
}

func TestConfirmWithoutSetup(t *testing.T) {
	svc, _ := newTwoFactorFixture(t)

	if err := svc.ConfirmSetup(context.Background(), "admin-1", "123456"); !errors.Is(err, ErrTwoFactorNotSetUp) {
		t.Fatalf("expected ErrTwoFactorNotSetUp, got %v", err)
	}
}

func enableFixture(t *testing.T, svc *TwoFactorService) *TwoFactorSetup {
	t.Helper()
	ctx := context.Background()

	setup, err := svc.InitiateSetup(ctx, "admin-1")
	if err != nil {
		t.Fatalf("InitiateSetup returned error: %v", err)
	}
	if err := svc.ConfirmSetup(ctx, "admin-1", liveCode(t, setup.Secret)); err != nil {
		t.Fatalf("ConfirmSetup returned error: %v", err)
	}
	return setup
}

func TestVerifyCode(t *testing.T) {
	svc, _ := newTwoFactorFixture(t)
	setup := enableFixture(t, svc)
	ctx := context.Background()

	if err := svc.VerifyCode(ctx, "admin-1", liveCode(t, setup.Secret)); err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}

	wrong := "000000"
	if wrong == liveCode(t, setup.Secret) {
		wrong = "000001"
	}
	if err := svc.VerifyCode(ctx, "admin-1", wrong); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	if err := svc.VerifyCode(ctx, "nobody", "123456"); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
}

func TestRecoveryCodeSingleUse(t *testing.T) {
	svc, _ := newTwoFactorFixture(t)
	setup := enableFixture(t, svc)
	ctx := context.Background()

	code := setup.RecoveryCodes[3]
	if err := svc.VerifyRecoveryCode(ctx, "admin-1", code); err != nil {
		t.Fatalf("VerifyRecoveryCode returned error: %v", err)
	}

	// Consumed codes are removed from the set.
	if err := svc.VerifyRecoveryCode(ctx, "admin-1", code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode on reuse, got %v", err)
	}

	status, err := svc.Status(ctx, "admin-1")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.RecoveryCodesLeft != 9 {
		t.Errorf("RecoveryCodesLeft = %d, want 9", status.RecoveryCodesLeft)
	}

	// The remaining codes still work.
	if err := svc.VerifyRecoveryCode(ctx, "admin-1", setup.RecoveryCodes[0]); err != nil {
		t.Fatalf("VerifyRecoveryCode for a fresh code returned error: %v", err)
	}
}

func TestDisableRequiresTotpProof(t *testing.T) {
	svc, repo := newTwoFactorFixture(t)
	setup := enableFixture(t, svc)
	ctx := context.Background()

	// A recovery code is not proof of possession.
	if err := svc.Disable(ctx, "admin-1", setup.RecoveryCodes[0]); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for recovery code, got %v", err)
	}

	if err := svc.Disable(ctx, "admin-1", liveCode(t, setup.Secret)); err != nil {
		t.Fatalf("Disable returned error: %v", err)
	}

	if _, ok := repo.records["admin-1"]; ok {
		t.Error("expected secret and recovery codes to be cleared")
	}
	enabled, err := svc.Enabled(ctx, "admin-1")
	if err != nil {
		t.Fatalf("Enabled returned error: %v", err)
	}
	if enabled {
		t.Error("factor should be disabled")
	}
}

func TestRegenerateReplacesWholeSet(t *testing.T) {
	svc, _ := newTwoFactorFixture(t)
	setup := enableFixture(t, svc)
	ctx := context.Background()

	fresh, err := svc.RegenerateRecoveryCodes(ctx, "admin-1", liveCode(t, setup.Secret))
	if err != nil {
		t.Fatalf("RegenerateRecoveryCodes returned error: %v", err)
	}
	if len(fresh) != 10 {
		t.Fatalf("fresh codes = %d, want 10", len(fresh))
	}

	// Old codes are dead, new ones work.
	if err := svc.VerifyRecoveryCode(ctx, "admin-1", setup.RecoveryCodes[0]); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected old code to be invalid, got %v", err)
	}
	if err := svc.VerifyRecoveryCode(ctx, "admin-1", fresh[0]); err != nil {
		t.Fatalf("fresh code returned error: %v", err)
	}
}
