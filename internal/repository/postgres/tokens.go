package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/core/port"
	"github.com/zaedhealth/identity-service/internal/repository"
)

// RefreshTokenRepository implements port.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRefreshTokenRepository constructs a new refresh token repository.
func NewRefreshTokenRepository(pool *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *RefreshTokenRepository) WithTx(tx pgx.Tx) *RefreshTokenRepository {
	if tx == nil {
		return r
	}
	return &RefreshTokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

var refreshTokenColumns = []string{
	"id",
	"user_id",
	"token_hash",
	"device_id",
	"device_info",
	"ip_address",
	"last_used_at",
	"created_at",
	"expires_at",
	"revoked_at",
	"revoke_reason",
}

// Create inserts a new refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, token domain.RefreshToken) error {
	sql, args, err := r.builder.Insert("identity.refresh_tokens").
		Columns(refreshTokenColumns...).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.DeviceID,
			token.DeviceInfo,
			token.IP,
			token.LastUsedAt,
			token.CreatedAt,
			token.ExpiresAt,
			token.RevokedAt,
			token.RevokeReason,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByID retrieves a refresh token record by its jti.
func (r *RefreshTokenRepository) GetByID(ctx context.Context, id string) (*domain.RefreshToken, error) {
	sql, args, err := r.builder.Select(refreshTokenColumns...).
		From("identity.refresh_tokens").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	var token domain.RefreshToken
	err = r.exec.QueryRow(ctx, sql, args...).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.DeviceID,
		&token.DeviceInfo,
		&token.IP,
		&token.LastUsedAt,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.RevokeReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return &token, nil
}

// Revoke stamps revoked_at and the reason on an unrevoked record. The WHERE
// clause on revoked_at makes the transition single-winner under concurrent
// rotations of the same jti.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	sql, args, err := r.builder.Update("identity.refresh_tokens").
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"id": id}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// RevokeAllForUser revokes every live record for the principal.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time, reason string) (int, error) {
	sql, args, err := r.builder.Update("identity.refresh_tokens").
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke all sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens for user: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// TouchLastUsed stamps the last time the token was presented.
func (r *RefreshTokenRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	sql, args, err := r.builder.Update("identity.refresh_tokens").
		Set("last_used_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch last used sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("touch refresh token: %w", err)
	}

	return nil
}

// DeleteExpired prunes records past their expiry, returning how many rows went.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	sql, args, err := r.builder.Delete("identity.refresh_tokens").
		Where(squirrel.Lt{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

var _ port.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
