package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/core/port"
)

// AuditRepository implements port.AuditRepository using PostgreSQL. The table
// is append-only; reads serve the login lockout window only.
type AuditRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a new audit repository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Record appends an authentication event.
func (r *AuditRepository) Record(ctx context.Context, event domain.AuthEvent) error {
	sql, args, err := r.builder.Insert("identity.auth_audit_log").
		Columns(
			"id",
			"event_type",
			"user_id",
			"email",
			"phone",
			"ip_address",
			"user_agent",
			"success",
			"details",
			"created_at",
		).
		Values(
			event.ID,
			string(event.EventType),
			event.UserID,
			event.Email,
			event.Phone,
			event.IP,
			event.UserAgent,
			event.Success,
			event.Details,
			event.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}

// CountFailedLoginsByEmail counts failed LOGIN events for the email inside the
// trailing window.
func (r *AuditRepository) CountFailedLoginsByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	return r.countFailed(ctx, squirrel.Eq{"email": email}, since)
}

// CountFailedLoginsByIP counts failed LOGIN events from the IP inside the
// trailing window.
func (r *AuditRepository) CountFailedLoginsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	return r.countFailed(ctx, squirrel.Eq{"ip_address": ip}, since)
}

func (r *AuditRepository) countFailed(ctx context.Context, cond squirrel.Eq, since time.Time) (int, error) {
	sql, args, err := r.builder.Select("COUNT(*)").
		From("identity.auth_audit_log").
		Where(squirrel.Eq{"event_type": string(domain.EventLoginFailed)}).
		Where(cond).
		Where(squirrel.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count failed logins sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count failed logins: %w", err)
	}

	return count, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
