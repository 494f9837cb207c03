package jwt

import (
	"context"
	"crypto/ed25519"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/authplane/authplane/internal/store/core"
)

// Issuer signs tenant-scoped tokens with the tenant's active Ed25519 key.
type Issuer struct {
	Iss       string        // "iss" claim
	Keys      core.KeyRepository
	AccessTTL time.Duration // default access/ID token TTL
}

func NewIssuer(iss string, keys core.KeyRepository) *Issuer {
	return &Issuer{
		Iss:       iss,
		Keys:      keys,
		AccessTTL: 15 * time.Minute,
	}
}

// AccessClaims carries the domain claims embedded in every access token.
type AccessClaims struct {
	Subject      string
	TenantID     string
	TenantDomain string
	Roles        []string
	ClientID     string
	Scope        string
}

// IssueAccess signs an access token for the tenant using its active key.
// A zero ttl falls back to the issuer default. The active key is created
// on first use for tenants that have never signed a token.
func (i *Issuer) IssueAccess(ctx context.Context, c AccessClaims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = i.AccessTTL
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)

	key, err := EnsureActiveKey(ctx, i.Keys, c.TenantID)
	if err != nil {
		return "", time.Time{}, err
	}

	claims := jwtv5.MapClaims{
		"iss":           i.Iss,
		"sub":           c.Subject,
		"aud":           c.ClientID,
		"iat":           now.Unix(),
		"nbf":           now.Unix(),
		"exp":           exp.Unix(),
		"tenant_id":     c.TenantID,
		"tenant_domain": c.TenantDomain,
		"client_id":     c.ClientID,
		"scope":         c.Scope,
	}
	if len(c.Roles) > 0 {
		claims["roles"] = c.Roles
	}

	signed, err := i.sign(key, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueIDToken signs an OIDC ID token with the standard claims plus extras
// (email, nonce, auth_time and friends).
func (i *Issuer) IssueIDToken(ctx context.Context, c AccessClaims, extra map[string]any, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = i.AccessTTL
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)

	key, err := EnsureActiveKey(ctx, i.Keys, c.TenantID)
	if err != nil {
		return "", time.Time{}, err
	}

	claims := jwtv5.MapClaims{
		"iss":       i.Iss,
		"sub":       c.Subject,
		"aud":       c.ClientID,
		"iat":       now.Unix(),
		"nbf":       now.Unix(),
		"exp":       exp.Unix(),
		"tenant_id": c.TenantID,
	}
	for k, v := range extra {
		claims[k] = v
	}

	signed, err := i.sign(key, claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (i *Issuer) sign(key *core.TenantKey, claims jwtv5.MapClaims) (string, error) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = key.KID
	tk.Header["typ"] = "JWT"
	return tk.SignedString(ed25519.PrivateKey(key.PrivateKey))
}

// KeyfuncForTenant resolves the verification key by the token's kid header
// within the tenant's keyset. Unknown kids fail verification.
func (i *Issuer) KeyfuncForTenant(ctx context.Context, tenantID string) jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("kid_missing")
		}
		key, err := i.Keys.ByKID(ctx, tenantID, kid)
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(key.PublicKey), nil
	}
}
