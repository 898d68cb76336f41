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

// TwoFactorRepository implements port.TwoFactorRepository using PostgreSQL.
// Recovery codes are persisted as a text array of hashes.
type TwoFactorRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTwoFactorRepository wires a PostgreSQL-backed 2FA repository.
func NewTwoFactorRepository(pool *pgxpool.Pool) *TwoFactorRepository {
	return &TwoFactorRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByUserID retrieves the 2FA record owned by the user.
func (r *TwoFactorRepository) GetByUserID(ctx context.Context, userID string) (*domain.TwoFactorRecord, error) {
	sql, args, err := r.builder.Select(
		"user_id",
		"secret",
		"enabled",
		"enabled_at",
		"recovery_codes",
		"used_count",
		"created_at",
		"updated_at",
	).
		From("identity.user_2fa").
		Where(squirrel.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select 2fa sql: %w", err)
	}

	var record domain.TwoFactorRecord
	err = r.exec.QueryRow(ctx, sql, args...).Scan(
		&record.UserID,
		&record.Secret,
		&record.Enabled,
		&record.EnabledAt,
		&record.RecoveryCodes,
		&record.UsedCount,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan 2fa record: %w", err)
	}

	return &record, nil
}

// Save upserts the full 2FA record.
func (r *TwoFactorRepository) Save(ctx context.Context, record domain.TwoFactorRecord) error {
	sql, args, err := r.builder.Insert("identity.user_2fa").
		Columns("user_id", "secret", "enabled", "enabled_at", "recovery_codes", "used_count", "created_at", "updated_at").
		Values(
			record.UserID,
			record.Secret,
			record.Enabled,
			record.EnabledAt,
			record.RecoveryCodes,
			record.UsedCount,
			record.CreatedAt,
			record.UpdatedAt,
		).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			secret = EXCLUDED.secret,
			enabled = EXCLUDED.enabled,
			enabled_at = EXCLUDED.enabled_at,
			recovery_codes = EXCLUDED.recovery_codes,
			used_count = EXCLUDED.used_count,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert 2fa sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert 2fa record: %w", err)
	}

	return nil
}

// ConsumeRecoveryCode swaps the stored code set for the reduced set, guarded
// on the previous set still being current. A false return means a concurrent
// consumer already mutated the set and the caller must re-read.
func (r *TwoFactorRepository) ConsumeRecoveryCode(ctx context.Context, userID string, previous, remaining []string) (bool, error) {
	const stmt = `
		UPDATE identity.user_2fa
		SET recovery_codes = $3,
		    used_count = used_count + 1,
		    updated_at = $4
		WHERE user_id = $1 AND recovery_codes = $2`

	ct, err := r.exec.Exec(ctx, stmt, userID, previous, remaining, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("consume recovery code: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// Clear removes the 2FA record entirely (disable flow).
func (r *TwoFactorRepository) Clear(ctx context.Context, userID string) error {
	sql, args, err := r.builder.Delete("identity.user_2fa").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete 2fa sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete 2fa record: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.TwoFactorRepository = (*TwoFactorRepository)(nil)
