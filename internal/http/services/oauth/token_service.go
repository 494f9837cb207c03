// Package oauth holds the token endpoint services.
package oauth

import (
	"context"
	"errors"
)

// TokenService implements the four token endpoint grants. Every method
// takes the resolved tenant explicitly; nothing here reads ambient state.
type TokenService interface {
	// ExchangePassword handles grant_type=password.
	ExchangePassword(ctx context.Context, req PasswordRequest) (*TokenResponse, error)

	// ExchangeAuthorizationCode handles grant_type=authorization_code (PKCE).
	ExchangeAuthorizationCode(ctx context.Context, req AuthCodeRequest) (*TokenResponse, error)

	// ExchangeClientCredentials handles grant_type=client_credentials (M2M).
	ExchangeClientCredentials(ctx context.Context, req ClientCredentialsRequest) (*TokenResponse, error)

	// ExchangeRefreshToken handles grant_type=refresh_token (rotation).
	ExchangeRefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
}

// PasswordRequest carries grant_type=password parameters.
type PasswordRequest struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Scope        string
}

// AuthCodeRequest carries grant_type=authorization_code parameters.
type AuthCodeRequest struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// ClientCredentialsRequest carries grant_type=client_credentials parameters.
type ClientCredentialsRequest struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// RefreshTokenRequest carries grant_type=refresh_token parameters.
type RefreshTokenRequest struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Scope        string
}

// TokenResponse is the token endpoint success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`
	TenantDomain string `json:"tenant_domain,omitempty"`
}

// Token endpoint errors. The values are the OAuth2 error codes sent on the
// wire; client-facing descriptions stay deliberately vague.
var (
	ErrTokenInvalidRequest       = errors.New("invalid_request")
	ErrTokenInvalidClient        = errors.New("invalid_client")
	ErrTokenInvalidGrant         = errors.New("invalid_grant")
	ErrTokenUnauthorizedClient   = errors.New("unauthorized_client")
	ErrTokenUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrTokenTenantMissing        = errors.New("tenant_missing")
	ErrTokenServerError          = errors.New("server_error")
)
