package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	httpx "github.com/authplane/authplane/internal/http"
	"github.com/authplane/authplane/internal/http/services/admin"
	"github.com/authplane/authplane/internal/http/services/oauth"
	jwtx "github.com/authplane/authplane/internal/jwt"
	"github.com/authplane/authplane/internal/observability/logger"
	"github.com/authplane/authplane/internal/security/password"
	"github.com/authplane/authplane/internal/store/core"
	"github.com/authplane/authplane/internal/store/memory"
	"github.com/authplane/authplane/internal/tenant"
)

const adminKey = "test-admin-key"

type env struct {
	srv    *httptest.Server
	repo   core.Repository
	tenant *core.Tenant
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger.Init(logger.Config{Env: "dev", Level: "error"})

	repo := memory.New()
	tenantsSvc := admin.NewTenantsService(repo)
	ten, err := tenantsSvc.Create(context.Background(), admin.CreateTenantRequest{
		Name: "acme", Domain: "acme.example.com",
	})
	require.NoError(t, err)

	issuer := jwtx.NewIssuer("https://auth.acme.example.com", repo.Keys())
	tokens := oauth.NewTokenService(oauth.TokenDeps{
		Repo:       repo,
		Issuer:     issuer,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})

	handler := httpx.NewRouter(httpx.RouterDeps{
		Repo:       repo,
		Tokens:     tokens,
		Clients:    admin.NewClientsService(repo),
		Tenants:    tenantsSvc,
		Resolver:   &tenant.Resolver{},
		AdminKey:   adminKey,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &env{srv: srv, repo: repo, tenant: ten}
}

func (e *env) seedUser(t *testing.T, email, plain string) {
	t.Helper()
	hash, err := password.Hash(password.Default, plain)
	require.NoError(t, err)
	require.NoError(t, e.repo.Users().Create(context.Background(), &core.User{
		ID: "u-" + email, TenantID: e.tenant.ID, Email: email,
		PasswordHash: hash, Roles: []string{"member"},
		Status: core.UserStatusActive, CreatedAt: time.Now().UTC(),
	}))
}

// registerClient drives POST /connect/register like a real caller.
func (e *env) registerClient(t *testing.T) (clientID, clientSecret string) {
	t.Helper()
	body := `{
		"client_name": "Test App",
		"grant_types": ["password", "refresh_token", "client_credentials"],
		"scope": "openid profile",
		"token_endpoint_auth_method": "client_secret_basic"
	}`
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/connect/register", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tenant.HeaderTenantID, e.tenant.ID)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var out struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.NotEmpty(t, out.ClientID)
	require.NotEmpty(t, out.ClientSecret)
	return out.ClientID, out.ClientSecret
}

func (e *env) token(t *testing.T, form url.Values, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/oauth/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(tenant.HeaderTenantID, e.tenant.ID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return res, body
}

func TestRegistrationMetadataShape(t *testing.T) {
	e := newEnv(t)

	// public client: auth method "none", no secret issued
	body := `{
		"client_name": "SPA",
		"redirect_uris": ["https://spa.acme.example.com/cb"],
		"grant_types": ["authorization_code", "refresh_token"],
		"response_types": ["code"],
		"scope": "openid profile",
		"token_endpoint_auth_method": "none"
	}`
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/connect/register", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tenant.HeaderTenantID, e.tenant.ID)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var out struct {
		ClientID                string   `json:"client_id"`
		ClientSecret            string   `json:"client_secret"`
		ClientName              string   `json:"client_name"`
		RedirectURIs            []string `json:"redirect_uris"`
		GrantTypes              []string `json:"grant_types"`
		ResponseTypes           []string `json:"response_types"`
		Scope                   string   `json:"scope"`
		TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.NotEmpty(t, out.ClientID)
	require.Empty(t, out.ClientSecret, "public clients get no secret")
	require.Equal(t, "SPA", out.ClientName)
	require.Equal(t, []string{"https://spa.acme.example.com/cb"}, out.RedirectURIs)
	require.Equal(t, []string{"authorization_code", "refresh_token"}, out.GrantTypes)
	require.Equal(t, []string{"code"}, out.ResponseTypes)
	require.Equal(t, "openid profile", out.Scope)
	require.Equal(t, "none", out.TokenEndpointAuthMethod)
}

func TestTokenEndpointPasswordAndRefreshFlow(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "jo@acme.example.com", "correct horse battery")
	clientID, clientSecret := e.registerClient(t)

	// password grant
	res, body := e.token(t, url.Values{
		"grant_type":    {"password"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"username":      {"jo@acme.example.com"},
		"password":      {"correct horse battery"},
		"scope":         {"openid profile"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "no-store", res.Header.Get("Cache-Control"))
	require.Equal(t, "Bearer", body["token_type"])
	require.NotEmpty(t, body["access_token"])
	require.NotEmpty(t, body["refresh_token"])
	require.NotEmpty(t, body["id_token"])
	require.Equal(t, e.tenant.ID, body["tenant_id"])
	require.Equal(t, "acme.example.com", body["tenant_domain"])

	// cookies were set
	var names []string
	for _, c := range res.Cookies() {
		names = append(names, c.Name)
		if c.Name == "ap_refresh_token" {
			require.Equal(t, "/oauth/token", c.Path)
			require.True(t, c.HttpOnly)
		}
	}
	require.Contains(t, names, "ap_access_token")
	require.Contains(t, names, "ap_refresh_token")

	firstRefresh := body["refresh_token"].(string)

	// refresh via X-Refresh-Token header
	res, body = e.token(t, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}, map[string]string{"X-Refresh-Token": firstRefresh})
	require.Equal(t, http.StatusOK, res.StatusCode)
	rotated := body["refresh_token"].(string)
	require.NotEmpty(t, rotated)
	require.NotEqual(t, firstRefresh, rotated)

	// replaying the rotated-out value fails with invalid_grant
	res, body = e.token(t, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"refresh_token": {firstRefresh},
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, "invalid_grant", body["error"])
}

func TestTokenEndpointClientCredentials(t *testing.T) {
	e := newEnv(t)
	clientID, clientSecret := e.registerClient(t)

	// client auth via HTTP Basic
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/oauth/token",
		strings.NewReader("grant_type=client_credentials&scope=profile"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(tenant.HeaderTenantID, e.tenant.ID)
	req.SetBasicAuth(clientID, clientSecret)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.NotEmpty(t, body["access_token"])
	_, hasRefresh := body["refresh_token"]
	require.False(t, hasRefresh, "machine grant must not return a refresh token")
}

func TestTokenEndpointErrors(t *testing.T) {
	e := newEnv(t)
	clientID, clientSecret := e.registerClient(t)

	// unsupported grant
	res, body := e.token(t, url.Values{
		"grant_type": {"implicit"},
		"client_id":  {clientID},
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, "unsupported_grant_type", body["error"])

	// missing grant_type
	res, body = e.token(t, url.Values{"client_id": {clientID}}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, "invalid_request", body["error"])

	// bad client secret
	res, body = e.token(t, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {"wrong"},
	}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "invalid_client", body["error"])
	require.Empty(t, body["error_description"], "client errors must stay vague")

	// no tenant anywhere
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/oauth/token",
		strings.NewReader(url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
		}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var b map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "tenant_missing", b["error"])
}

func TestAdminClientsRequireKey(t *testing.T) {
	e := newEnv(t)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/admin/oauth/clients", nil)
	require.NoError(t, err)
	req.Header.Set(tenant.HeaderTenantID, e.tenant.ID)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	req.Header.Set("Authorization", "Bearer "+adminKey)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Items []any `json:"items"`
		Total int   `json:"total"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Zero(t, body.Total)
}

func TestLogoutClearsCookies(t *testing.T) {
	e := newEnv(t)

	res, err := http.Post(e.srv.URL+"/logout", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	cleared := map[string]bool{}
	for _, c := range res.Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	require.True(t, cleared["ap_access_token"])
	require.True(t, cleared["ap_refresh_token"])
}

func TestJWKSPerTenant(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "jo@acme.example.com", "correct horse battery")
	clientID, clientSecret := e.registerClient(t)

	// issuing a token materializes the tenant's signing key
	res, _ := e.token(t, url.Values{
		"grant_type":    {"password"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"username":      {"jo@acme.example.com"},
		"password":      {"correct horse battery"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/.well-known/jwks.json", nil)
	require.NoError(t, err)
	req.Header.Set(tenant.HeaderTenantID, e.tenant.ID)
	jres, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer jres.Body.Close()
	require.Equal(t, http.StatusOK, jres.StatusCode)

	var jwks struct {
		Keys []struct {
			Kty string `json:"kty"`
			Crv string `json:"crv"`
			Kid string `json:"kid"`
		} `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(jres.Body).Decode(&jwks))
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "OKP", jwks.Keys[0].Kty)
	require.Equal(t, "Ed25519", jwks.Keys[0].Crv)
	require.NotEmpty(t, jwks.Keys[0].Kid)
}
