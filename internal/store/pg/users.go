package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authplane/authplane/internal/store/core"
)

type userRepo struct{ pool *pgxpool.Pool }

func (r *userRepo) GetByEmail(ctx context.Context, tenantID, email string) (*core.User, error) {
	const q = `
		SELECT id, tenant_id, email, password_hash, roles, status, last_login_at, created_at
		FROM users
		WHERE tenant_id=$1 AND lower(email)=lower($2)`
	var u core.User
	err := r.pool.QueryRow(ctx, q, tenantID, email).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Roles, &u.Status,
		&u.LastLoginAt, &u.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *core.User) error {
	const q = `
		INSERT INTO users (id, tenant_id, email, password_hash, roles, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.pool.Exec(ctx, q, u.ID, u.TenantID, u.Email, u.PasswordHash, u.Roles, u.Status, u.CreatedAt)
	return mapErr(err)
}

func (r *userRepo) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	const q = `UPDATE users SET last_login_at=$2 WHERE id=$1`
	_, err := r.pool.Exec(ctx, q, userID, at)
	return mapErr(err)
}
