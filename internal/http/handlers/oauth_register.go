package handlers

import (
	"net/http"
	"strings"

	httpx "github.com/authplane/authplane/internal/http/httpx"
	"github.com/authplane/authplane/internal/http/services/admin"
	"github.com/authplane/authplane/internal/store/core"
	"github.com/authplane/authplane/internal/tenant"
)

// clientResponse is the wire shape for client resources. The plaintext
// secret appears only in the registration response.
type clientResponse struct {
	ClientID           string   `json:"client_id"`
	ClientSecret       string   `json:"client_secret,omitempty"`
	Name               string   `json:"name"`
	AuthMethods        []string `json:"auth_methods,omitempty"`
	GrantTypes         []string `json:"grant_types"`
	RedirectURIs       []string `json:"redirect_uris,omitempty"`
	Scopes             []string `json:"scopes"`
	RequireProofKey    bool     `json:"require_proof_key"`
	RequireConsent     bool     `json:"require_consent"`
	AccessTokenTTL     int      `json:"access_token_ttl,omitempty"`
	RefreshTokenTTL    int      `json:"refresh_token_ttl,omitempty"`
	ReuseRefreshTokens bool     `json:"reuse_refresh_tokens"`
	Enabled            bool     `json:"enabled"`
	TenantID           string   `json:"tenant_id"`
}

func toClientResponse(c *core.RegisteredClient, secret string) clientResponse {
	return clientResponse{
		ClientID:           c.ClientID,
		ClientSecret:       secret,
		Name:               c.Name,
		AuthMethods:        c.AuthMethods,
		GrantTypes:         c.GrantTypes,
		RedirectURIs:       c.RedirectURIs,
		Scopes:             c.Scopes,
		RequireProofKey:    c.RequireProofKey,
		RequireConsent:     c.RequireConsent,
		AccessTokenTTL:     c.AccessTokenTTL,
		RefreshTokenTTL:    c.RefreshTokenTTL,
		ReuseRefreshTokens: c.ReuseRefreshTokens,
		Enabled:            c.Enabled,
		TenantID:           c.TenantID,
	}
}

// registrationRequest is the RFC 7591 metadata subset accepted by
// POST /connect/register. Public clients declare
// token_endpoint_auth_method "none"; scope is the usual space-separated
// string.
type registrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

type registrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	TenantID                string   `json:"tenant_id"`
}

func (req registrationRequest) toCreateRequest() admin.CreateClientRequest {
	grants := req.GrantTypes
	if len(grants) == 0 {
		// RFC 7591 default
		grants = []string{core.GrantAuthorizationCode}
	}
	method := req.TokenEndpointAuthMethod
	if method == "" {
		method = "client_secret_basic"
	}
	return admin.CreateClientRequest{
		Name:         req.ClientName,
		Public:       method == "none",
		AuthMethods:  []string{method},
		GrantTypes:   grants,
		RedirectURIs: req.RedirectURIs,
		Scopes:       strings.Fields(req.Scope),
	}
}

// NewClientRegistrationHandler serves POST /connect/register: dynamic
// client registration within the resolved tenant.
func NewClientRegistrationHandler(svc admin.ClientsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := tenant.FromContext(r.Context())
		if tenantID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "tenant_missing", "no tenant resolved for request", httpx.CodeTenantMissing)
			return
		}

		var req registrationRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}

		out, err := svc.Create(r.Context(), tenantID, req.toCreateRequest())
		if err != nil {
			writeAdminError(w, err)
			return
		}

		c := out.Client
		method := "client_secret_basic"
		if len(c.AuthMethods) > 0 {
			method = c.AuthMethods[0]
		}
		httpx.WriteJSON(w, http.StatusCreated, registrationResponse{
			ClientID:                c.ClientID,
			ClientSecret:            out.ClientSecret,
			ClientName:              c.Name,
			RedirectURIs:            c.RedirectURIs,
			GrantTypes:              c.GrantTypes,
			ResponseTypes:           req.ResponseTypes,
			Scope:                   strings.Join(c.Scopes, " "),
			TokenEndpointAuthMethod: method,
			TenantID:                c.TenantID,
		})
	}
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch err {
	case admin.ErrValidation:
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "", httpx.CodeValidation)
	case admin.ErrNotFound:
		httpx.WriteError(w, http.StatusNotFound, "not_found", "", httpx.CodeNotFound)
	case admin.ErrConflict:
		httpx.WriteError(w, http.StatusConflict, "conflict", "", httpx.CodeConflict)
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "", httpx.CodeInternal)
	}
}
