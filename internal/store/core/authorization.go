package core

import "time"

// Grant type values accepted by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
	GrantRefreshToken      = "refresh_token"
)

// TokenKind selects which lookup key FindByToken matches against.
type TokenKind string

const (
	TokenKindAny          TokenKind = ""
	TokenKindState        TokenKind = "state"
	TokenKindCode         TokenKind = "authorization_code"
	TokenKindAccessToken  TokenKind = "access_token"
	TokenKindRefreshToken TokenKind = "refresh_token"
	TokenKindIDToken      TokenKind = "id_token"
)

// Attribute keys used on AuthorizationRecord.Attributes.
const (
	AttrState               = "state"
	AttrClientID            = "client_id"
	AttrRedirectURI         = "redirect_uri"
	AttrScope               = "scope"
	AttrCodeChallenge       = "code_challenge"
	AttrCodeChallengeMethod = "code_challenge_method"
)

// AuthorizationCode is the one-shot code handed back from the authorize
// endpoint.
type AuthorizationCode struct {
	Value     string         `json:"value"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AccessToken is the bearer token attached to a record.
type AccessToken struct {
	Value     string         `json:"value"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	TokenType string         `json:"token_type"` // "Bearer"
	Scopes    []string       `json:"scopes,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// RefreshToken is the opaque rotation token attached to a record.
type RefreshToken struct {
	Value     string         `json:"value"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// OidcIdToken is the OIDC identity token attached to a record.
type OidcIdToken struct {
	Value     string         `json:"value"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Claims    map[string]any `json:"claims,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuthorizationRecord is the aggregate root for one grant lifecycle: the
// original authorization request, the code, and the tokens minted from it.
// Token values double as store lookup keys and are globally unique.
//
// CodeChallenge/CodeChallengeMethod are the canonical storage for PKCE.
// Historically these parameters traveled both as request attributes and as
// code metadata; Save normalizes whichever path supplied them into the
// record-level fields, and loads mirror them back into both views so PKCE
// verification on the exchange request always sees the original bytes.
type AuthorizationRecord struct {
	ID                  string         `json:"id"`
	TenantID            string         `json:"tenant_id"`
	RegisteredClientID  string         `json:"registered_client_id"`
	PrincipalName       string         `json:"principal_name"`
	GrantType           string         `json:"grant_type"`
	Scopes              []string       `json:"scopes,omitempty"`
	Attributes          map[string]any `json:"attributes,omitempty"`
	CodeChallenge       string         `json:"code_challenge,omitempty"`
	CodeChallengeMethod string         `json:"code_challenge_method,omitempty"`

	Code         *AuthorizationCode `json:"code,omitempty"`
	AccessToken  *AccessToken       `json:"access_token,omitempty"`
	RefreshToken *RefreshToken      `json:"refresh_token,omitempty"`
	IDToken      *OidcIdToken       `json:"id_token,omitempty"`

	CodeConsumedAt *time.Time `json:"code_consumed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// State returns the state attribute, if any.
func (r *AuthorizationRecord) State() string {
	if r.Attributes == nil {
		return ""
	}
	s, _ := r.Attributes[AttrState].(string)
	return s
}

// NormalizePKCE lifts code_challenge/code_challenge_method into the
// canonical record fields from whichever path supplied them (request
// attributes first, then code metadata), then mirrors the canonical values
// back into both views. Idempotent.
func (r *AuthorizationRecord) NormalizePKCE() {
	if r.CodeChallenge == "" {
		if r.Attributes != nil {
			if v, ok := r.Attributes[AttrCodeChallenge].(string); ok && v != "" {
				r.CodeChallenge = v
			}
		}
	}
	if r.CodeChallenge == "" && r.Code != nil && r.Code.Metadata != nil {
		if v, ok := r.Code.Metadata[AttrCodeChallenge].(string); ok && v != "" {
			r.CodeChallenge = v
		}
	}
	if r.CodeChallengeMethod == "" {
		if r.Attributes != nil {
			if v, ok := r.Attributes[AttrCodeChallengeMethod].(string); ok && v != "" {
				r.CodeChallengeMethod = v
			}
		}
	}
	if r.CodeChallengeMethod == "" && r.Code != nil && r.Code.Metadata != nil {
		if v, ok := r.Code.Metadata[AttrCodeChallengeMethod].(string); ok && v != "" {
			r.CodeChallengeMethod = v
		}
	}

	if r.CodeChallenge == "" {
		return
	}
	if r.Attributes == nil {
		r.Attributes = map[string]any{}
	}
	r.Attributes[AttrCodeChallenge] = r.CodeChallenge
	if r.CodeChallengeMethod != "" {
		r.Attributes[AttrCodeChallengeMethod] = r.CodeChallengeMethod
	}
	if r.Code != nil {
		if r.Code.Metadata == nil {
			r.Code.Metadata = map[string]any{}
		}
		r.Code.Metadata[AttrCodeChallenge] = r.CodeChallenge
		if r.CodeChallengeMethod != "" {
			r.Code.Metadata[AttrCodeChallengeMethod] = r.CodeChallengeMethod
		}
	}
}
