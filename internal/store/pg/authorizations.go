package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authplane/authplane/internal/store/core"
)

// authzStore persists AuthorizationRecords as one row per record: scalar
// identity columns, one denormalized (indexed) column per lookup value, and
// the token sub-records plus attributes as JSONB. A Save rewrites the whole
// row, so every lookup key stays consistent with the document.
type authzStore struct{ pool *pgxpool.Pool }

type authzDoc struct {
	Scopes              []string                `json:"scopes,omitempty"`
	Attributes          map[string]any          `json:"attributes,omitempty"`
	CodeChallenge       string                  `json:"code_challenge,omitempty"`
	CodeChallengeMethod string                  `json:"code_challenge_method,omitempty"`
	Code                *core.AuthorizationCode `json:"code,omitempty"`
	AccessToken         *core.AccessToken       `json:"access_token,omitempty"`
	RefreshToken        *core.RefreshToken      `json:"refresh_token,omitempty"`
	IDToken             *core.OidcIdToken       `json:"id_token,omitempty"`
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func tokenValue(rec *core.AuthorizationRecord, kind core.TokenKind) string {
	switch kind {
	case core.TokenKindCode:
		if rec.Code != nil {
			return rec.Code.Value
		}
	case core.TokenKindAccessToken:
		if rec.AccessToken != nil {
			return rec.AccessToken.Value
		}
	case core.TokenKindRefreshToken:
		if rec.RefreshToken != nil {
			return rec.RefreshToken.Value
		}
	case core.TokenKindIDToken:
		if rec.IDToken != nil {
			return rec.IDToken.Value
		}
	}
	return ""
}

func (s *authzStore) Save(ctx context.Context, rec *core.AuthorizationRecord) error {
	if rec.ID == "" {
		return core.ErrInvalid
	}
	rec.NormalizePKCE()
	rec.UpdatedAt = time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	doc, err := json.Marshal(authzDoc{
		Scopes:              rec.Scopes,
		Attributes:          rec.Attributes,
		CodeChallenge:       rec.CodeChallenge,
		CodeChallengeMethod: rec.CodeChallengeMethod,
		Code:                rec.Code,
		AccessToken:         rec.AccessToken,
		RefreshToken:        rec.RefreshToken,
		IDToken:             rec.IDToken,
	})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO oauth_authorizations (
			id, tenant_id, registered_client_id, principal_name, grant_type,
			state, code_value, access_token_value, refresh_token_value, id_token_value,
			code_consumed_at, doc, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			state=EXCLUDED.state,
			code_value=EXCLUDED.code_value,
			access_token_value=EXCLUDED.access_token_value,
			refresh_token_value=EXCLUDED.refresh_token_value,
			id_token_value=EXCLUDED.id_token_value,
			code_consumed_at=EXCLUDED.code_consumed_at,
			doc=EXCLUDED.doc,
			updated_at=EXCLUDED.updated_at`
	_, err = s.pool.Exec(ctx, q,
		rec.ID, rec.TenantID, rec.RegisteredClientID, rec.PrincipalName, rec.GrantType,
		nullable(rec.State()),
		nullable(tokenValue(rec, core.TokenKindCode)),
		nullable(tokenValue(rec, core.TokenKindAccessToken)),
		nullable(tokenValue(rec, core.TokenKindRefreshToken)),
		nullable(tokenValue(rec, core.TokenKindIDToken)),
		rec.CodeConsumedAt, doc, rec.CreatedAt, rec.UpdatedAt,
	)
	return mapErr(err)
}

const authzColumns = `id, tenant_id, registered_client_id, principal_name, grant_type,
	code_consumed_at, doc, created_at, updated_at`

func scanAuthz(row pgx.Row) (*core.AuthorizationRecord, error) {
	var (
		rec core.AuthorizationRecord
		raw []byte
	)
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.RegisteredClientID, &rec.PrincipalName, &rec.GrantType,
		&rec.CodeConsumedAt, &raw, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	var doc authzDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	rec.Scopes = doc.Scopes
	rec.Attributes = doc.Attributes
	rec.CodeChallenge = doc.CodeChallenge
	rec.CodeChallengeMethod = doc.CodeChallengeMethod
	rec.Code = doc.Code
	rec.AccessToken = doc.AccessToken
	rec.RefreshToken = doc.RefreshToken
	rec.IDToken = doc.IDToken
	rec.NormalizePKCE()
	return &rec, nil
}

func (s *authzStore) FindByID(ctx context.Context, id string) (*core.AuthorizationRecord, error) {
	const q = `SELECT ` + authzColumns + ` FROM oauth_authorizations WHERE id=$1`
	return scanAuthz(s.pool.QueryRow(ctx, q, id))
}

func (s *authzStore) FindByToken(ctx context.Context, value string, kind core.TokenKind) (*core.AuthorizationRecord, error) {
	if value == "" {
		return nil, core.ErrNotFound
	}
	var where string
	switch kind {
	case core.TokenKindState:
		where = `state=$1`
	case core.TokenKindCode:
		where = `code_value=$1`
	case core.TokenKindAccessToken:
		where = `access_token_value=$1`
	case core.TokenKindRefreshToken:
		where = `refresh_token_value=$1`
	case core.TokenKindIDToken:
		where = `id_token_value=$1`
	default:
		where = `(state=$1 OR code_value=$1 OR access_token_value=$1 OR refresh_token_value=$1 OR id_token_value=$1)`
	}
	q := `SELECT ` + authzColumns + ` FROM oauth_authorizations WHERE ` + where
	return scanAuthz(s.pool.QueryRow(ctx, q, value))
}

func (s *authzStore) Remove(ctx context.Context, id string) error {
	const q = `DELETE FROM oauth_authorizations WHERE id=$1`
	ct, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ConsumeCode is a single-statement compare-and-swap: the row qualifies
// only while code_consumed_at is NULL, so exactly one concurrent caller
// observes RowsAffected()==1.
func (s *authzStore) ConsumeCode(ctx context.Context, codeValue string) (bool, error) {
	if codeValue == "" {
		return false, nil
	}
	const q = `
		UPDATE oauth_authorizations
		SET code_consumed_at=NOW(), updated_at=NOW()
		WHERE code_value=$1 AND code_consumed_at IS NULL`
	ct, err := s.pool.Exec(ctx, q, codeValue)
	if err != nil {
		return false, mapErr(err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *authzStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	// a record dies when every token it ever had is past its expiry
	const q = `
		DELETE FROM oauth_authorizations
		WHERE NOT (
			(doc ? 'code'          AND (doc->'code'->>'expires_at')::timestamptz          > $1) OR
			(doc ? 'access_token'  AND (doc->'access_token'->>'expires_at')::timestamptz  > $1) OR
			(doc ? 'refresh_token' AND (doc->'refresh_token'->>'expires_at')::timestamptz > $1) OR
			(doc ? 'id_token'      AND (doc->'id_token'->>'expires_at')::timestamptz      > $1)
		)
		AND (doc ? 'code' OR doc ? 'access_token' OR doc ? 'refresh_token' OR doc ? 'id_token')`
	ct, err := s.pool.Exec(ctx, q, now)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(ct.RowsAffected()), nil
}
