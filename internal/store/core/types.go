package core

import "time"

// Tenant is an isolated customer boundary. Domain is immutable after
// creation; every other entity references exactly one tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Status    string    `json:"status"` // "active" | "inactive"
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	TenantStatusActive   = "active"
	TenantStatusInactive = "inactive"
)

// RegisteredClient is an OAuth2 client application scoped to a tenant.
// ClientID is unique within the tenant, not globally.
type RegisteredClient struct {
	ID                 string    `json:"id"`
	TenantID           string    `json:"tenant_id"`
	ClientID           string    `json:"client_id"`
	Name               string    `json:"name"`
	SecretHash         string    `json:"-"` // argon2id PHC; empty for public clients
	AuthMethods        []string  `json:"auth_methods"`
	GrantTypes         []string  `json:"grant_types"`
	RedirectURIs       []string  `json:"redirect_uris"`
	Scopes             []string  `json:"scopes"`
	RequireProofKey    bool      `json:"require_proof_key"`
	RequireConsent     bool      `json:"require_consent"`
	AccessTokenTTL     int       `json:"access_token_ttl"`  // seconds; 0 = server default
	RefreshTokenTTL    int       `json:"refresh_token_ttl"` // seconds; 0 = server default
	ReuseRefreshTokens bool      `json:"reuse_refresh_tokens"`
	Enabled            bool      `json:"enabled"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsConfidential reports whether the client holds a secret.
func (c *RegisteredClient) IsConfidential() bool { return c.SecretHash != "" }

// AllowsGrant reports whether grantType is configured for the client.
func (c *RegisteredClient) AllowsGrant(grantType string) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// User is the minimal principal needed by the password grant.
type User struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Roles        []string   `json:"roles"`
	Status       string     `json:"status"` // "active" | "disabled"
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// TenantKey holds per-tenant ed25519 signing material. At most one key is
// active per tenant; rotation deactivates before activating.
type TenantKey struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	KID        string    `json:"kid"`
	PrivateKey []byte    `json:"-"` // ed25519.PrivateKey
	PublicKey  []byte    `json:"public_key"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
