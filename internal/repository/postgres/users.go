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

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

var userColumns = []string{
	"id",
	"phone",
	"email",
	"name",
	"role",
	"is_verified",
	"is_active",
	"partner_id",
	"last_login_at",
	"created_at",
	"updated_at",
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	var emailValue any
	if user.Email != "" {
		emailValue = user.Email
	}

	sql, args, err := r.builder.Insert("identity.users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Phone,
			emailValue,
			user.Name,
			string(user.Role),
			user.Verified,
			user.IsActive,
			user.PartnerID,
			user.LastLoginAt,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by email. Emails are stored lowercased.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"email": email})
}

// GetByPhone retrieves a user by E.164 phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"phone": phone})
}

func (r *UserRepository) getBy(ctx context.Context, cond squirrel.Eq) (*domain.User, error) {
	sql, args, err := r.builder.Select(userColumns...).
		From("identity.users").
		Where(cond).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, sql, args...)

	var (
		user  domain.User
		email *string
		role  string
	)
	err = row.Scan(
		&user.ID,
		&user.Phone,
		&email,
		&user.Name,
		&role,
		&user.Verified,
		&user.IsActive,
		&user.PartnerID,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if email != nil {
		user.Email = *email
	}
	user.Role = domain.UserRole(role)

	return &user, nil
}

// UpdateLastLogin stamps the last successful login time.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	sql, args, err := r.builder.Update("identity.users").
		Set("last_login_at", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update last login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetActive toggles the account's active flag. Accounts are never hard-deleted.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	sql, args, err := r.builder.Update("identity.users").
		Set("is_active", active).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update active sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update active flag: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
