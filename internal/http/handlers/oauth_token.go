package handlers

import (
	"net/http"
	"strings"
	"time"

	httpx "github.com/authplane/authplane/internal/http/httpx"
	"github.com/authplane/authplane/internal/http/services/oauth"
	"github.com/authplane/authplane/internal/observability/logger"
	"github.com/authplane/authplane/internal/tenant"
)

// TokenHandlerDeps wires the token endpoint.
type TokenHandlerDeps struct {
	Service       oauth.TokenService
	AccessTTL     time.Duration // cookie lifetime hint
	RefreshTTL    time.Duration
	SecureCookies bool
}

// NewOAuthTokenHandler serves POST /oauth/token for all four grants. The
// tenant comes from the resolution middleware; the refresh token may
// arrive as a form field, the X-Refresh-Token header, or the refresh
// cookie, in that order.
func NewOAuthTokenHandler(d TokenHandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "invalid_request", "POST only", httpx.CodeInvalidRequest)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		if err := r.ParseForm(); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed form body", httpx.CodeInvalidRequest)
			return
		}

		tenantID := tenant.FromContext(r.Context())
		if tenantID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "tenant_missing", "no tenant resolved for request", httpx.CodeTenantMissing)
			return
		}

		clientID := strings.TrimSpace(r.PostForm.Get("client_id"))
		clientSecret := strings.TrimSpace(r.PostForm.Get("client_secret"))
		if u, p, ok := r.BasicAuth(); ok {
			clientID, clientSecret = u, p
		}

		grantType := strings.TrimSpace(r.PostForm.Get("grant_type"))
		var (
			resp *oauth.TokenResponse
			err  error
		)
		switch grantType {
		case "password":
			resp, err = d.Service.ExchangePassword(r.Context(), oauth.PasswordRequest{
				TenantID:     tenantID,
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Username:     strings.TrimSpace(r.PostForm.Get("username")),
				Password:     r.PostForm.Get("password"),
				Scope:        r.PostForm.Get("scope"),
			})

		case "authorization_code":
			resp, err = d.Service.ExchangeAuthorizationCode(r.Context(), oauth.AuthCodeRequest{
				TenantID:     tenantID,
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Code:         strings.TrimSpace(r.PostForm.Get("code")),
				RedirectURI:  strings.TrimSpace(r.PostForm.Get("redirect_uri")),
				CodeVerifier: strings.TrimSpace(r.PostForm.Get("code_verifier")),
			})

		case "client_credentials":
			resp, err = d.Service.ExchangeClientCredentials(r.Context(), oauth.ClientCredentialsRequest{
				TenantID:     tenantID,
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Scope:        r.PostForm.Get("scope"),
			})

		case "refresh_token":
			refresh := strings.TrimSpace(r.PostForm.Get("refresh_token"))
			if refresh == "" {
				refresh = strings.TrimSpace(r.Header.Get("X-Refresh-Token"))
			}
			if refresh == "" {
				if c, cerr := r.Cookie(refreshTokenCookie); cerr == nil {
					refresh = c.Value
				}
			}
			resp, err = d.Service.ExchangeRefreshToken(r.Context(), oauth.RefreshTokenRequest{
				TenantID:     tenantID,
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RefreshToken: refresh,
				Scope:        r.PostForm.Get("scope"),
			})

		case "":
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "grant_type is required", httpx.CodeInvalidRequest)
			return
		default:
			httpx.WriteError(w, http.StatusBadRequest, "unsupported_grant_type", "", httpx.CodeUnsupportedGrant)
			return
		}
		if err != nil {
			httpx.ObserveTokenReject(tenantID, err.Error())
			writeTokenError(w, err)
			return
		}
		httpx.ObserveTokenIssued(tenantID, grantType)

		// token responses must never be cached
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		setTokenCookies(w, resp.AccessToken, resp.RefreshToken, d.AccessTTL, d.RefreshTTL, d.SecureCookies)
		httpx.WriteJSON(w, http.StatusOK, resp)
	}
}

// writeTokenError maps service sentinels to wire errors. Descriptions stay
// under-specific so failures reveal nothing about which credential broke.
func writeTokenError(w http.ResponseWriter, err error) {
	switch err {
	case oauth.ErrTokenInvalidRequest:
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "", httpx.CodeInvalidRequest)
	case oauth.ErrTokenInvalidClient:
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_client", "", httpx.CodeInvalidClient)
	case oauth.ErrTokenInvalidGrant:
		httpx.WriteError(w, http.StatusBadRequest, "invalid_grant", "", httpx.CodeInvalidGrant)
	case oauth.ErrTokenUnauthorizedClient:
		httpx.WriteError(w, http.StatusBadRequest, "unauthorized_client", "", httpx.CodeUnauthorizedClient)
	case oauth.ErrTokenUnsupportedGrantType:
		httpx.WriteError(w, http.StatusBadRequest, "unsupported_grant_type", "", httpx.CodeUnsupportedGrant)
	case oauth.ErrTokenTenantMissing:
		httpx.WriteError(w, http.StatusBadRequest, "tenant_missing", "", httpx.CodeTenantMissing)
	default:
		logger.L().Error("token endpoint internal error", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "", httpx.CodeInternal)
	}
}
