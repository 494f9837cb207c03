package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/authplane/authplane/internal/store/core"
)

// GenerateTenantKey creates a fresh Ed25519 signing key for a tenant.
// The key is returned inactive; call Rotate (or KeyRepository.Activate)
// to make it the signing key.
func GenerateTenantKey(tenantID string) (*core.TenantKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &core.TenantKey{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		KID:        uuid.NewString()[:8],
		PrivateKey: priv,
		PublicKey:  pub,
		Active:     false,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Rotate generates, persists and activates a new signing key for the
// tenant. Previously active keys stay in the store so tokens signed with
// them keep verifying until they expire.
func Rotate(ctx context.Context, keys core.KeyRepository, tenantID string) (*core.TenantKey, error) {
	k, err := GenerateTenantKey(tenantID)
	if err != nil {
		return nil, err
	}
	if err := keys.Create(ctx, k); err != nil {
		return nil, err
	}
	if err := keys.Activate(ctx, tenantID, k.KID); err != nil {
		return nil, err
	}
	k.Active = true
	return k, nil
}

// EnsureActiveKey returns the tenant's active key, rotating one into
// place when none exists yet (first token issued for a tenant).
func EnsureActiveKey(ctx context.Context, keys core.KeyRepository, tenantID string) (*core.TenantKey, error) {
	k, err := keys.ActiveForTenant(ctx, tenantID)
	if err == nil {
		return k, nil
	}
	if err != core.ErrNotFound {
		return nil, err
	}
	return Rotate(ctx, keys, tenantID)
}

// ----- JWKS (public side only) -----

type jwk struct {
	Kty string `json:"kty"` // "OKP"
	Crv string `json:"crv"` // "Ed25519"
	Kid string `json:"kid"`
	Alg string `json:"alg"` // "EdDSA"
	Use string `json:"use"` // "sig"
	X   string `json:"x"`   // base64url(pub)
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWKSJSON renders the public halves of the given keys as a JWKS document.
func JWKSJSON(keys ...*core.TenantKey) []byte {
	doc := jwks{Keys: make([]jwk, 0, len(keys))}
	for _, k := range keys {
		doc.Keys = append(doc.Keys, jwk{
			Kty: "OKP",
			Crv: "Ed25519",
			Kid: k.KID,
			Alg: "EdDSA",
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(k.PublicKey),
		})
	}
	b, _ := json.Marshal(doc)
	return b
}
