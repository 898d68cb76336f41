package usecase

import (
	"context"
	"errors"
	"fmt"
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

// LoginInput carries a password login attempt.
type LoginInput struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceInfo string
	IP         string
	UserAgent  string
}

// LoginResult is either a completed session or a two-factor challenge.
type LoginResult struct {
	Requires2FA  bool
	PendingToken string
	Tokens       *SessionTokens
	User         *domain.User
}

// Verify2FAInput completes a challenged login. Exactly one of Code and
// RecoveryCode should be populated; Code wins when both are.
type Verify2FAInput struct {
	PendingToken string
	Code         string
	RecoveryCode string
	DeviceID     string
	DeviceInfo   string
	IP           string
	UserAgent    string
}

// AuthService coordinates password authentication: lockout evaluation,
// credential verification, and the two-factor challenge handoff.
type AuthService struct {
	lockout   config.LockoutSettings
	users     port.UserRepository
	creds     port.CredentialRepository
	hasher    port.PasswordHasher
	tokens    *security.TokenService
	sessions  *SessionService
	twoFactor *TwoFactorService
	auditRead port.AuditRepository
	audit     *auditTrail
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	lockout config.LockoutSettings,
	users port.UserRepository,
	creds port.CredentialRepository,
	hasher port.PasswordHasher,
	tokens *security.TokenService,
	sessions *SessionService,
	twoFactor *TwoFactorService,
	auditStore port.AuditRepository,
	events port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	if lockout.Window <= 0 {
		lockout.Window = 15 * time.Minute
	}
	if lockout.MaxEmailFailures <= 0 {
		lockout.MaxEmailFailures = 5
	}
	if lockout.MaxIPFailures <= 0 {
		lockout.MaxIPFailures = 2 * lockout.MaxEmailFailures
	}

	return &AuthService{
		lockout:   lockout,
		users:     users,
		creds:     creds,
		hasher:    hasher,
		tokens:    tokens,
		sessions:  sessions,
		twoFactor: twoFactor,
		auditRead: auditStore,
		audit:     newAuditTrail(auditStore, events, log),
		logger:    log,
		now:       time.Now,
	}
}

// WithClock replaces the time source, used in tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	s.audit.now = now
	return s
}

// Login validates a password credential and either issues a session or hands
// back a two-factor challenge. Unknown accounts and wrong passwords fail
// identically; the distinction lives only in the audit trail. Every branch
// writes exactly one login audit event.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	if err := s.checkLockout(ctx, email, in.IP); err != nil {
		s.recordLogin(ctx, domain.EventAccountLocked, nil, email, in, false, "RATE_LIMITED")
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recordLogin(ctx, domain.EventLoginFailed, nil, email, in, false, "USER_NOT_FOUND")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	cred, err := s.creds.GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// OTP-only principals carry no password credential.
			s.recordLogin(ctx, domain.EventLoginFailed, &user.ID, email, in, false, "NO_CREDENTIAL")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup credential: %w", err)
	}

	now := s.now().UTC()
	if cred.IsLocked(now) {
		s.recordLogin(ctx, domain.EventAccountLocked, &user.ID, email, in, false, "ACCOUNT_LOCKED")
		return nil, &RateLimitExceededError{Scope: "account", RetryAfter: cred.LockedUntil.Sub(now)}
	}

	ok, err := s.hasher.Verify(in.Password, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		if _, err := s.creds.RecordFailure(ctx, user.ID, s.lockout.MaxEmailFailures, now.Add(s.lockout.Window)); err != nil {
			s.logger.Error("Failed to record login failure",
				zap.String("user_id", user.ID), zap.Error(err))
		}
		s.recordLogin(ctx, domain.EventLoginFailed, &user.ID, email, in, false, "INVALID_PASSWORD")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.recordLogin(ctx, domain.EventLoginFailed, &user.ID, email, in, false, "ACCOUNT_DISABLED")
		return nil, ErrAccountDisabled
	}

	if err := s.creds.ClearFailures(ctx, user.ID); err != nil {
		s.logger.Warn("Failed to clear login failures",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	enabled, err := s.twoFactor.Enabled(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if enabled {
		pending, err := s.tokens.MintTwoFactorPending(user.ID)
		if err != nil {
			return nil, fmt.Errorf("mint pending token: %w", err)
		}
		s.recordLogin(ctx, domain.EventTwoFactorChallenge, &user.ID, email, in, true, "")
		return &LoginResult{Requires2FA: true, PendingToken: pending, User: user}, nil
	}

	pair, err := s.sessions.Issue(ctx, *user, DeviceContext{
		DeviceID:   in.DeviceID,
		DeviceInfo: in.DeviceInfo,
		IP:         in.IP,
		UserAgent:  in.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, domain.EventLoginSuccess, &user.ID, email, in, true, "")
	return &LoginResult{Tokens: pair, User: user}, nil
}

// Verify2FA completes a challenged login. The pending token is validated
// first; a TOTP code is tried before a recovery code, and exactly one of the
// two is consumed per attempt.
func (s *AuthService) Verify2FA(ctx context.Context, in Verify2FAInput) (*LoginResult, error) {
	claims, err := s.tokens.Verify(in.PendingToken, security.TokenTypeTwoFactorPending)
	if err != nil {
		if errors.Is(err, security.ErrExpiredToken) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	method := "totp"
	switch {
	case in.Code != "":
		err = s.twoFactor.VerifyCode(ctx, user.ID, in.Code)
	case in.RecoveryCode != "":
		method = "recovery_code"
		err = s.twoFactor.VerifyRecoveryCode(ctx, user.ID, in.RecoveryCode)
	default:
		return nil, ErrInvalidCode
	}
	if err != nil {
		s.record2FA(ctx, domain.EventTwoFactorFailed, user.ID, in, false, method)
		if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrTwoFactorNotEnabled) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}

	pair, err := s.sessions.Issue(ctx, *user, DeviceContext{
		DeviceID:   in.DeviceID,
		DeviceInfo: in.DeviceInfo,
		IP:         in.IP,
		UserAgent:  in.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	s.record2FA(ctx, domain.EventTwoFactorSuccess, user.ID, in, true, method)
	return &LoginResult{Tokens: pair, User: user}, nil
}

// checkLockout counts failed logins inside the trailing window. The IP
// threshold is double the email threshold so shared NAT addresses are not
// over-penalized while credential stuffing is still slowed.
func (s *AuthService) checkLockout(ctx context.Context, email, ip string) error {
	since := s.now().UTC().Add(-s.lockout.Window)

	byEmail, err := s.auditRead.CountFailedLoginsByEmail(ctx, email, since)
	if err != nil {
		return fmt.Errorf("count failed logins by email: %w", err)
	}
	if byEmail >= s.lockout.MaxEmailFailures {
		s.logger.Warn("Login lockout tripped",
			zap.String("scope", "email"),
			zap.String("email", logger.MaskEmail(email)),
			zap.Int("failures", byEmail),
		)
		return &RateLimitExceededError{Scope: "email", RetryAfter: s.lockout.Window}
	}

	if ip != "" {
		byIP, err := s.auditRead.CountFailedLoginsByIP(ctx, ip, since)
		if err != nil {
			return fmt.Errorf("count failed logins by ip: %w", err)
		}
		if byIP >= s.lockout.MaxIPFailures {
			s.logger.Warn("Login lockout tripped",
				zap.String("scope", "ip"),
				zap.String("ip", logger.MaskIP(ip)),
				zap.Int("failures", byIP),
			)
			return &RateLimitExceededError{Scope: "ip", RetryAfter: s.lockout.Window}
		}
	}

	return nil
}

func (s *AuthService) recordLogin(ctx context.Context, kind domain.AuthEventType, userID *string, email string, in LoginInput, success bool, reason string) {
	s.audit.record(ctx, domain.AuthEvent{
		EventType: kind,
		UserID:    userID,
		Email:     &email,
		IP:        in.IP,
		UserAgent: strPtr(in.UserAgent),
		Success:   success,
		Details:   strPtr(reason),
	})
}

func (s *AuthService) record2FA(ctx context.Context, kind domain.AuthEventType, userID string, in Verify2FAInput, success bool, method string) {
	details := fmt.Sprintf("method=%s", method)
	s.audit.record(ctx, domain.AuthEvent{
		EventType: kind,
		UserID:    &userID,
		IP:        in.IP,
		UserAgent: strPtr(in.UserAgent),
		Success:   success,
		Details:   &details,
	})
}
