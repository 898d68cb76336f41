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

// CredentialRepository implements port.CredentialRepository using PostgreSQL.
type CredentialRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCredentialRepository wires a PostgreSQL-backed credential repository.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByUserID retrieves the credential row owned by the user.
func (r *CredentialRepository) GetByUserID(ctx context.Context, userID string) (*domain.Credential, error) {
	sql, args, err := r.builder.Select(
		"user_id",
		"password_hash",
		"failed_attempts",
		"locked_until",
		"must_change",
		"updated_at",
	).
		From("identity.user_credentials").
		Where(squirrel.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select credential sql: %w", err)
	}

	var cred domain.Credential
	err = r.exec.QueryRow(ctx, sql, args...).Scan(
		&cred.UserID,
		&cred.PasswordHash,
		&cred.FailedAttempts,
		&cred.LockedUntil,
		&cred.MustChange,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}

	return &cred, nil
}

// Save upserts the credential row for the owning user.
func (r *CredentialRepository) Save(ctx context.Context, credential domain.Credential) error {
	sql, args, err := r.builder.Insert("identity.user_credentials").
		Columns("user_id", "password_hash", "failed_attempts", "locked_until", "must_change", "updated_at").
		Values(
			credential.UserID,
			credential.PasswordHash,
			credential.FailedAttempts,
			credential.LockedUntil,
			credential.MustChange,
			credential.UpdatedAt,
		).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			failed_attempts = EXCLUDED.failed_attempts,
			locked_until = EXCLUDED.locked_until,
			must_change = EXCLUDED.must_change,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert credential sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}

	return nil
}

// RecordFailure increments the failed-attempt counter in a single statement
// and stamps locked_until once the counter reaches threshold.
func (r *CredentialRepository) RecordFailure(ctx context.Context, userID string, threshold int, lockedUntil time.Time) (int, error) {
	const stmt = `
		UPDATE identity.user_credentials
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = $4
		WHERE user_id = $1
		RETURNING failed_attempts`

	var attempts int
	err := r.exec.QueryRow(ctx, stmt, userID, threshold, lockedUntil, time.Now().UTC()).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("record credential failure: %w", err)
	}

	return attempts, nil
}

// ClearFailures resets the counter and lockout after a successful login.
func (r *CredentialRepository) ClearFailures(ctx context.Context, userID string) error {
	sql, args, err := r.builder.Update("identity.user_credentials").
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear failures sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("clear credential failures: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.CredentialRepository = (*CredentialRepository)(nil)
