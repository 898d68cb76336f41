package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/core/port"
	"github.com/zaedhealth/identity-service/internal/infra/logger"
	"github.com/zaedhealth/identity-service/internal/infra/security"
	"github.com/zaedhealth/identity-service/internal/repository"
)

// SessionTokens is the access/refresh pair handed to an authenticated caller.
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}

// DeviceContext carries the client fingerprint recorded on session records.
type DeviceContext struct {
	DeviceID   string
	DeviceInfo string
	IP         string
	UserAgent  string
}

// SessionService owns refresh token records: issuance, rotation with replay
// detection, and revocation.
type SessionService struct {
	tokens *security.TokenService
	repo   port.RefreshTokenRepository
	users  port.UserRepository
	audit  *auditTrail
	logger *zap.Logger
	now    func() time.Time
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(
	tokens *security.TokenService,
	repo port.RefreshTokenRepository,
	users port.UserRepository,
	auditStore port.AuditRepository,
	events port.EventPublisher,
	log *zap.Logger,
) *SessionService {
	return &SessionService{
		tokens: tokens,
		repo:   repo,
		users:  users,
		audit:  newAuditTrail(auditStore, events, log),
		logger: log,
		now:    time.Now,
	}
}

// WithClock replaces the time source, used in tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	s.audit.now = now
	return s
}

// Issue mints an access/refresh pair for the user and persists the refresh
// record keyed by the token's jti. Only a one-way hash of the refresh token
// is stored.
func (s *SessionService) Issue(ctx context.Context, user domain.User, device DeviceContext) (*SessionTokens, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	access, err := s.tokens.MintAccess(security.AccessClaims{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        string(user.Role),
		Permissions: domain.PermissionStrings(domain.PermissionsForRole(user.Role)),
		PartnerID:   derefStr(user.PartnerID),
	})
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	jti := uuid.NewString()
	refresh, err := s.tokens.MintRefresh(user.ID, jti, device.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	now := s.now().UTC()
	record := domain.RefreshToken{
		ID:         jti,
		UserID:     user.ID,
		TokenHash:  security.HashToken(refresh),
		DeviceID:   strPtr(device.DeviceID),
		DeviceInfo: strPtr(device.DeviceInfo),
		IP:         strPtr(device.IP),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.tokens.RefreshTokenTTL()),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to update last login",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	return &SessionTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}

// Rotate exchanges a live refresh token for a new access/refresh pair. The
// presented token is revoked with reason ROTATION; exactly one of two
// concurrent rotations of the same token can win. Presenting a token whose
// record is already revoked or expired is treated as replay of a stolen
// token: every live session for the principal is revoked before failing.
func (s *SessionService) Rotate(ctx context.Context, refreshToken, ip string) (*SessionTokens, error) {
	claims, err := s.tokens.Verify(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, security.ErrExpiredToken) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	record, err := s.repo.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if record.TokenHash != security.HashToken(refreshToken) {
		return nil, ErrInvalidToken
	}

	now := s.now().UTC()
	if !record.IsValid(now) {
		s.handleReplay(ctx, record, ip)
		return nil, ErrInvalidToken
	}

	revoked, err := s.repo.Revoke(ctx, record.ID, now, domain.RevokeReasonRotation)
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !revoked {
		// A concurrent rotation won the conditional update; this presentation
		// is now a replay of a revoked token.
		s.handleReplay(ctx, record, ip)
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	pair, err := s.Issue(ctx, *user, DeviceContext{
		DeviceID:   derefStr(record.DeviceID),
		DeviceInfo: derefStr(record.DeviceInfo),
		IP:         ip,
	})
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, domain.AuthEvent{
		EventType: domain.EventTokenRefreshed,
		UserID:    &record.UserID,
		IP:        ip,
		Success:   true,
	})

	return pair, nil
}

func (s *SessionService) handleReplay(ctx context.Context, record *domain.RefreshToken, ip string) {
	now := s.now().UTC()
	revoked, err := s.repo.RevokeAllForUser(ctx, record.UserID, now, domain.RevokeReasonSuspicious)
	if err != nil {
		s.logger.Error("Failed to revoke sessions after token replay",
			zap.String("user_id", record.UserID), zap.Error(err))
	} else {
		s.logger.Warn("Refresh token replay detected, sessions revoked",
			zap.String("user_id", record.UserID),
			zap.String("jti", record.ID),
			zap.String("ip", logger.MaskIP(ip)),
			zap.Int("sessions_revoked", revoked),
		)
	}

	details := "REPLAY_DETECTED"
	s.audit.record(ctx, domain.AuthEvent{
		EventType: domain.EventTokenRevoked,
		UserID:    &record.UserID,
		IP:        ip,
		Success:   false,
		Details:   &details,
	})
}

// Logout revokes the record behind a refresh token. It is best-effort and
// idempotent: unparsable or already-revoked tokens succeed silently.
func (s *SessionService) Logout(ctx context.Context, refreshToken, ip, userAgent string) error {
	claims, err := s.tokens.Verify(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		return nil
	}

	now := s.now().UTC()
	if _, err := s.repo.Revoke(ctx, claims.ID, now, domain.RevokeReasonLogout); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	s.audit.record(ctx, domain.AuthEvent{
		EventType: domain.EventLogout,
		UserID:    &claims.Subject,
		IP:        ip,
		UserAgent: strPtr(userAgent),
		Success:   true,
	})

	return nil
}

// LogoutAll revokes every live session for the principal.
func (s *SessionService) LogoutAll(ctx context.Context, userID, ip, userAgent string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}

	now := s.now().UTC()
	revoked, err := s.repo.RevokeAllForUser(ctx, userID, now, domain.RevokeReasonLogoutAll)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	details := fmt.Sprintf("sessions_revoked=%d", revoked)
	s.audit.record(ctx, domain.AuthEvent{
		EventType: domain.EventLogoutAll,
		UserID:    &userID,
		IP:        ip,
		UserAgent: strPtr(userAgent),
		Success:   true,
		Details:   &details,
	})

	return revoked, nil
}

// PurgeExpired removes refresh token records whose expiry has passed. Run
// from a background sweep.
func (s *SessionService) PurgeExpired(ctx context.Context) (int, error) {
	deleted, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return deleted, nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
