package core

import (
	"context"
	"time"
)

// ClientPatch is a partial update for a registered client. Nil fields keep
// their previous value; Secret, when set, is re-hashed before storage.
type ClientPatch struct {
	Name               *string  `json:"name,omitempty"`
	Secret             *string  `json:"client_secret,omitempty"`
	AuthMethods        []string `json:"auth_methods,omitempty"`
	GrantTypes         []string `json:"grant_types,omitempty"`
	RedirectURIs       []string `json:"redirect_uris,omitempty"`
	Scopes             []string `json:"scopes,omitempty"`
	RequireProofKey    *bool    `json:"require_proof_key,omitempty"`
	RequireConsent     *bool    `json:"require_consent,omitempty"`
	AccessTokenTTL     *int     `json:"access_token_ttl,omitempty"`
	RefreshTokenTTL    *int     `json:"refresh_token_ttl,omitempty"`
	ReuseRefreshTokens *bool    `json:"reuse_refresh_tokens,omitempty"`
}

// ClientRepository stores RegisteredClients, always scoped by tenant.
type ClientRepository interface {
	// GetByClientID resolves an enabled client within the tenant.
	// Disabled clients behave as ErrNotFound (token issuance path).
	GetByClientID(ctx context.Context, tenantID, clientID string) (*RegisteredClient, error)

	// GetAny resolves a client regardless of enabled state (admin path).
	GetAny(ctx context.Context, tenantID, clientID string) (*RegisteredClient, error)

	// Create persists a new client. Returns ErrConflict when clientID
	// already exists within the tenant.
	Create(ctx context.Context, c *RegisteredClient) error

	// Update overwrites the mutable fields of an existing client.
	Update(ctx context.Context, c *RegisteredClient) error

	// SetEnabled toggles the soft-delete flag.
	SetEnabled(ctx context.Context, tenantID, clientID string, enabled bool) error

	// Delete removes the client permanently.
	Delete(ctx context.Context, tenantID, clientID string) error

	// List returns a page of the tenant's clients (including disabled)
	// plus the total count.
	List(ctx context.Context, tenantID string, page, size int) ([]RegisteredClient, int, error)
}

// AuthorizationStore persists AuthorizationRecords and resolves them by any
// of their five lookup keys. Save keeps every key consistent in one logical
// write; individual calls are atomic at document granularity.
type AuthorizationStore interface {
	Save(ctx context.Context, rec *AuthorizationRecord) error
	FindByID(ctx context.Context, id string) (*AuthorizationRecord, error)
	FindByToken(ctx context.Context, value string, kind TokenKind) (*AuthorizationRecord, error)
	Remove(ctx context.Context, id string) error

	// ConsumeCode atomically marks the authorization code consumed.
	// Exactly one of any number of concurrent callers gets true; callers
	// that lose the race or present an unknown code get false.
	ConsumeCode(ctx context.Context, codeValue string) (bool, error)

	// PurgeExpired removes records whose every token has expired. Best
	// effort; reads never depend on it.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// TenantRepository stores tenants.
type TenantRepository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByDomain(ctx context.Context, domain string) (*Tenant, error)
	ExistsByDomain(ctx context.Context, domain string) (bool, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
}

// UserRepository resolves principals for the password grant.
type UserRepository interface {
	GetByEmail(ctx context.Context, tenantID, email string) (*User, error)
	Create(ctx context.Context, u *User) error

	// TouchLastLogin is best effort; failures are logged, never fatal.
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// KeyRepository stores per-tenant signing keys. Activation is
// deactivate-before-activate so at most one key is active per tenant.
type KeyRepository interface {
	Create(ctx context.Context, k *TenantKey) error
	ActiveForTenant(ctx context.Context, tenantID string) (*TenantKey, error)
	ByKID(ctx context.Context, tenantID, kid string) (*TenantKey, error)
	Activate(ctx context.Context, tenantID, kid string) error
}

// Repository bundles every store the service layer needs.
type Repository interface {
	Ping(ctx context.Context) error
	Close()

	Clients() ClientRepository
	Authorizations() AuthorizationStore
	Tenants() TenantRepository
	Users() UserRepository
	Keys() KeyRepository
}
