package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authplane/authplane/internal/store/core"
)

type clientRepo struct{ pool *pgxpool.Pool }

const clientColumns = `id, tenant_id, client_id, name, secret_hash, auth_methods,
	grant_types, redirect_uris, scopes, require_proof_key, require_consent,
	access_token_ttl, refresh_token_ttl, reuse_refresh_tokens, enabled,
	created_at, updated_at`

func scanClient(row pgx.Row) (*core.RegisteredClient, error) {
	var c core.RegisteredClient
	err := row.Scan(
		&c.ID, &c.TenantID, &c.ClientID, &c.Name, &c.SecretHash, &c.AuthMethods,
		&c.GrantTypes, &c.RedirectURIs, &c.Scopes, &c.RequireProofKey, &c.RequireConsent,
		&c.AccessTokenTTL, &c.RefreshTokenTTL, &c.ReuseRefreshTokens, &c.Enabled,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *clientRepo) GetByClientID(ctx context.Context, tenantID, clientID string) (*core.RegisteredClient, error) {
	const q = `SELECT ` + clientColumns + `
		FROM oauth_clients
		WHERE tenant_id=$1 AND client_id=$2 AND enabled`
	return scanClient(r.pool.QueryRow(ctx, q, tenantID, clientID))
}

func (r *clientRepo) GetAny(ctx context.Context, tenantID, clientID string) (*core.RegisteredClient, error) {
	const q = `SELECT ` + clientColumns + `
		FROM oauth_clients
		WHERE tenant_id=$1 AND client_id=$2`
	return scanClient(r.pool.QueryRow(ctx, q, tenantID, clientID))
}

func (r *clientRepo) Create(ctx context.Context, c *core.RegisteredClient) error {
	const q = `
		INSERT INTO oauth_clients (` + clientColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err := r.pool.Exec(ctx, q,
		c.ID, c.TenantID, c.ClientID, c.Name, c.SecretHash, c.AuthMethods,
		c.GrantTypes, c.RedirectURIs, c.Scopes, c.RequireProofKey, c.RequireConsent,
		c.AccessTokenTTL, c.RefreshTokenTTL, c.ReuseRefreshTokens, c.Enabled,
		c.CreatedAt, c.UpdatedAt,
	)
	return mapErr(err)
}

func (r *clientRepo) Update(ctx context.Context, c *core.RegisteredClient) error {
	const q = `
		UPDATE oauth_clients SET
			name=$3, secret_hash=$4, auth_methods=$5, grant_types=$6,
			redirect_uris=$7, scopes=$8, require_proof_key=$9, require_consent=$10,
			access_token_ttl=$11, refresh_token_ttl=$12, reuse_refresh_tokens=$13,
			updated_at=NOW()
		WHERE tenant_id=$1 AND client_id=$2`
	ct, err := r.pool.Exec(ctx, q,
		c.TenantID, c.ClientID, c.Name, c.SecretHash, c.AuthMethods, c.GrantTypes,
		c.RedirectURIs, c.Scopes, c.RequireProofKey, c.RequireConsent,
		c.AccessTokenTTL, c.RefreshTokenTTL, c.ReuseRefreshTokens,
	)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *clientRepo) SetEnabled(ctx context.Context, tenantID, clientID string, enabled bool) error {
	const q = `UPDATE oauth_clients SET enabled=$3, updated_at=NOW() WHERE tenant_id=$1 AND client_id=$2`
	ct, err := r.pool.Exec(ctx, q, tenantID, clientID, enabled)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *clientRepo) Delete(ctx context.Context, tenantID, clientID string) error {
	const q = `DELETE FROM oauth_clients WHERE tenant_id=$1 AND client_id=$2`
	ct, err := r.pool.Exec(ctx, q, tenantID, clientID)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *clientRepo) List(ctx context.Context, tenantID string, page, size int) ([]core.RegisteredClient, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	var total int
	const qc = `SELECT COUNT(*) FROM oauth_clients WHERE tenant_id=$1`
	if err := r.pool.QueryRow(ctx, qc, tenantID).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	const q = `SELECT ` + clientColumns + `
		FROM oauth_clients
		WHERE tenant_id=$1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, tenantID, size, (page-1)*size)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	out := make([]core.RegisteredClient, 0, size)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr(err)
	}
	return out, total, nil
}
