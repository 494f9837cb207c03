package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authplane/authplane/internal/store/core"
)

type keyRepo struct{ pool *pgxpool.Pool }

const keyColumns = `id, tenant_id, kid, private_key, public_key, active, created_at`

func scanKey(row pgx.Row) (*core.TenantKey, error) {
	var k core.TenantKey
	err := row.Scan(&k.ID, &k.TenantID, &k.KID, &k.PrivateKey, &k.PublicKey, &k.Active, &k.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &k, nil
}

func (r *keyRepo) Create(ctx context.Context, k *core.TenantKey) error {
	const q = `INSERT INTO tenant_keys (` + keyColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.pool.Exec(ctx, q, k.ID, k.TenantID, k.KID, k.PrivateKey, k.PublicKey, k.Active, k.CreatedAt)
	return mapErr(err)
}

func (r *keyRepo) ActiveForTenant(ctx context.Context, tenantID string) (*core.TenantKey, error) {
	const q = `SELECT ` + keyColumns + ` FROM tenant_keys WHERE tenant_id=$1 AND active`
	return scanKey(r.pool.QueryRow(ctx, q, tenantID))
}

func (r *keyRepo) ByKID(ctx context.Context, tenantID, kid string) (*core.TenantKey, error) {
	const q = `SELECT ` + keyColumns + ` FROM tenant_keys WHERE tenant_id=$1 AND kid=$2`
	return scanKey(r.pool.QueryRow(ctx, q, tenantID, kid))
}

// Activate deactivates every key for the tenant, then flips the target on,
// in one transaction so readers never observe two active keys.
func (r *keyRepo) Activate(ctx context.Context, tenantID, kid string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE tenant_keys SET active=false WHERE tenant_id=$1`, tenantID); err != nil {
		return mapErr(err)
	}
	ct, err := tx.Exec(ctx, `UPDATE tenant_keys SET active=true WHERE tenant_id=$1 AND kid=$2`, tenantID, kid)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return mapErr(tx.Commit(ctx))
}
