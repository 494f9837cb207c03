package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authplane/authplane/internal/store/core"
)

type tenantRepo struct{ pool *pgxpool.Pool }

const tenantColumns = `id, name, domain, status, owner_id, created_at`

func scanTenant(row pgx.Row) (*core.Tenant, error) {
	var t core.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Domain, &t.Status, &t.OwnerID, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *tenantRepo) Create(ctx context.Context, t *core.Tenant) error {
	const q = `INSERT INTO tenants (` + tenantColumns + `) VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.pool.Exec(ctx, q, t.ID, t.Name, t.Domain, t.Status, t.OwnerID, t.CreatedAt)
	return mapErr(err)
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*core.Tenant, error) {
	const q = `SELECT ` + tenantColumns + ` FROM tenants WHERE id=$1`
	return scanTenant(r.pool.QueryRow(ctx, q, id))
}

func (r *tenantRepo) GetByDomain(ctx context.Context, domain string) (*core.Tenant, error) {
	const q = `SELECT ` + tenantColumns + ` FROM tenants WHERE lower(domain)=lower($1)`
	return scanTenant(r.pool.QueryRow(ctx, q, domain))
}

func (r *tenantRepo) ExistsByDomain(ctx context.Context, domain string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM tenants WHERE lower(domain)=lower($1))`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, domain).Scan(&ok); err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}

func (r *tenantRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM tenants WHERE lower(name)=lower($1))`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, name).Scan(&ok); err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}
