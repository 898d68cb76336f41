package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/core/port"
	"github.com/zaedhealth/identity-service/internal/infra/security"
	"github.com/zaedhealth/identity-service/internal/repository"
)

// TwoFactorSetup is returned once from InitiateSetup. The plaintext recovery
// codes are never retrievable again.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	RecoveryCodes   []string
}

// TwoFactorStatus summarizes the factor for the status endpoint.
type TwoFactorStatus struct {
	Enabled           bool
	EnabledAt         *time.Time
	RecoveryCodesLeft int
	SetupPending      bool
}

// TwoFactorService owns the TOTP second factor: setup, confirmation,
// verification, recovery codes, and teardown.
type TwoFactorService struct {
	repo              port.TwoFactorRepository
	users             port.UserRepository
	hasher            port.PasswordHasher
	totp              *security.TOTPProvider
	recoveryCodeCount int
	audit             *auditTrail
	logger            *zap.Logger
	now               func() time.Time
}

// NewTwoFactorService constructs a TwoFactorService instance.
func NewTwoFactorService(
	repo port.TwoFactorRepository,
	users port.UserRepository,
	hasher port.PasswordHasher,
	totp *security.TOTPProvider,
	recoveryCodeCount int,
	auditStore port.AuditRepository,
	events port.EventPublisher,
	log *zap.Logger,
) *TwoFactorService {
	if recoveryCodeCount <= 0 {
		recoveryCodeCount = 10
	}
	return &TwoFactorService{
		repo:              repo,
		users:             users,
		hasher:            hasher,
		totp:              totp,
		recoveryCodeCount: recoveryCodeCount,
		audit:             newAuditTrail(auditStore, events, log),
		logger:            log,
		now:               time.Now,
	}
}

// WithClock replaces the time source, used in tests.
func (s *TwoFactorService) WithClock(now func() time.Time) *TwoFactorService {
	s.now = now
	s.audit.now = now
	return s
}

// InitiateSetup generates a fresh TOTP secret and recovery codes for the
// user. Fails when the factor is already enabled. The secret and plaintext
// recovery codes are returned exactly once.
func (s *TwoFactorService) InitiateSetup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	existing, err := s.repo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup two-factor record: %w", err)
	}
	if existing != nil && existing.Enabled {
		return nil, ErrTwoFactorEnabled
	}

	secret, uri, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext, hashed, err := s.generateRecoveryCodes()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := domain.TwoFactorRecord{
		UserID:        userID,
		Secret:        secret,
		Enabled:       false,
		RecoveryCodes: hashed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if existing != nil {
		record.CreatedAt = existing.CreatedAt
		record.UsedCount = 0
	}
	if err := s.repo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("store two-factor record: %w", err)
	}

	return &TwoFactorSetup{
		Secret:          secret,
		ProvisioningURI: uri,
		RecoveryCodes:   plaintext,
	}, nil
}

// ConfirmSetup validates a live TOTP code against the pending secret and
// enables the factor. An invalid code leaves the record unchanged.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, userID, code string) error {
	record, err := s.pendingRecord(ctx, userID)
	if err != nil {
		return err
	}

	if !s.totp.Validate(code, record.Secret) {
		return ErrInvalidCode
	}

	now := s.now().UTC()
	record.Enabled = true
	record.EnabledAt = &now
	record.UpdatedAt = now
	if err := s.repo.Save(ctx, *record); err != nil {
		return fmt.Errorf("store two-factor record: %w", err)
	}

	s.audit.record(ctx, domain.AuthEvent{
		EventType: domain.EventTwoFactorEnabled,
		UserID:    &userID,
		Success:   true,
	})

	return nil
}

// VerifyCode checks a TOTP code for a user with the factor enabled.
func (s *TwoFactorService) VerifyCode(ctx context.Context, userID, code string) error {
	record, err := s.enabledRecord(ctx, userID)
	if err != nil {
		return err
	}

	if !s.totp.Validate(code, record.Secret) {
		return ErrInvalidCode
	}

	return nil
}

// VerifyRecoveryCode checks a recovery code against the hashed set and, on
// match, removes it. Single use is enforced by removal: the replacement of
// the stored set is guarded on the set not having changed underneath us, so
// two concurrent presentations of the same code cannot both succeed.
func (s *TwoFactorService) VerifyRecoveryCode(ctx context.Context, userID, code string) error {
	record, err := s.enabledRecord(ctx, userID)
	if err != nil {
		return err
	}

	matchIdx := -1
	for i, hashed := range record.RecoveryCodes {
		ok, err := s.hasher.Verify(code, hashed)
		if err != nil {
			return fmt.Errorf("verify recovery code: %w", err)
		}
		if ok {
			matchIdx = i
			break
		}
	}
	if matchIdx < 0 {
		return ErrInvalidCode
	}

	remaining := make([]string, 0, len(record.RecoveryCodes)-1)
	remaining = append(remaining, record.RecoveryCodes[:matchIdx]...)
	remaining = append(remaining, record.RecoveryCodes[matchIdx+1:]...)

	consumed, err := s.repo.ConsumeRecoveryCode(ctx, userID, record.RecoveryCodes, remaining)
	if err != nil {
		return fmt.Errorf("consume recovery code: %w", err)
	}
	if !consumed {
		return ErrInvalidCode
	}

	s.audit.record(ctx, domain.AuthEvent{
		EventType: domain.EventBackupCodeUsed,
		UserID:    &userID,
		Success:   true,
	})

	return nil
}

// Disable tears the factor down. A valid TOTP code (not a recovery code) is
// required as proof of possession; the secret and all recovery codes are
// cleared.
func (s *TwoFactorService) Disable(ctx context.Context, userID, code string) error {
	record, err := s.enabledRecord(ctx, userID)
	if err != nil {
		return err
	}

	if !s.totp.Validate(code, record.Secret) {
		return ErrInvalidCode
	}

	if err := s.repo.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear two-factor record: %w", err)
	}

	s.audit.record(ctx, domain.AuthEvent{
		EventType: domain.EventTwoFactorDisabled,
		UserID:    &userID,
		Success:   true,
	})

	return nil
}

// RegenerateRecoveryCodes replaces the whole recovery code set after a valid
// TOTP proof. Returns the new plaintext codes once.
func (s *TwoFactorService) RegenerateRecoveryCodes(ctx context.Context, userID, code string) ([]string, error) {
	record, err := s.enabledRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !s.totp.Validate(code, record.Secret) {
		return nil, ErrInvalidCode
	}

	plaintext, hashed, err := s.generateRecoveryCodes()
	if err != nil {
		return nil, err
	}

	record.RecoveryCodes = hashed
	record.UsedCount = 0
	record.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, *record); err != nil {
		return nil, fmt.Errorf("store two-factor record: %w", err)
	}

	return plaintext, nil
}

// Status reports the factor state for the caller.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	record, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &TwoFactorStatus{}, nil
		}
		return nil, fmt.Errorf("lookup two-factor record: %w", err)
	}

	return &TwoFactorStatus{
		Enabled:           record.Enabled,
		EnabledAt:         record.EnabledAt,
		RecoveryCodesLeft: len(record.RecoveryCodes),
		SetupPending:      record.SetupPending(),
	}, nil
}

// Enabled reports whether the factor is active for the user.
func (s *TwoFactorService) Enabled(ctx context.Context, userID string) (bool, error) {
	record, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup two-factor record: %w", err)
	}
	return record.Enabled, nil
}

func (s *TwoFactorService) pendingRecord(ctx context.Context, userID string) (*domain.TwoFactorRecord, error) {
	record, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTwoFactorNotSetUp
		}
		return nil, fmt.Errorf("lookup two-factor record: %w", err)
	}
	if record.Enabled {
		return nil, ErrTwoFactorEnabled
	}
	if !record.SetupPending() {
		return nil, ErrTwoFactorNotSetUp
	}
	return record, nil
}

func (s *TwoFactorService) enabledRecord(ctx context.Context, userID string) (*domain.TwoFactorRecord, error) {
	record, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTwoFactorNotEnabled
		}
		return nil, fmt.Errorf("lookup two-factor record: %w", err)
	}
	if !record.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}
	return record, nil
}

func (s *TwoFactorService) generateRecoveryCodes() (plaintext, hashed []string, err error) {
	plaintext, err = security.GenerateRecoveryCodes(s.recoveryCodeCount)
	if err != nil {
		return nil, nil, fmt.Errorf("generate recovery codes: %w", err)
	}

	hashed = make([]string, 0, len(plaintext))
	for _, code := range plaintext {
		h, err := s.hasher.Hash(code)
		if err != nil {
			return nil, nil, fmt.Errorf("hash recovery code: %w", err)
		}
		hashed = append(hashed, h)
	}

	return plaintext, hashed, nil
}
