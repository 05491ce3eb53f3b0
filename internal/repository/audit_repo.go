package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"stepup-auth/internal/domain"
)

type PgAuditRepository struct {
	pool *pgxpool.Pool
}

func NewPgAuditRepository(pool *pgxpool.Pool) *PgAuditRepository {
	return &PgAuditRepository{pool: pool}
}

func (r *PgAuditRepository) Create(ctx context.Context, ev domain.AuditEvent) error {
	const query = `
		INSERT INTO login_audit_events (id, user_id, action, outcome, client_ip, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		ev.ID,
		ev.UserID,
		ev.Action,
		ev.Outcome,
		ev.ClientIP,
		ev.CreatedAt,
	)
	return err
}
