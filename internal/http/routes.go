package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/authplane/authplane/internal/http/handlers"
	"github.com/authplane/authplane/internal/http/httpx"
	"github.com/authplane/authplane/internal/http/middlewares"
	"github.com/authplane/authplane/internal/http/services/admin"
	"github.com/authplane/authplane/internal/http/services/oauth"
	"github.com/authplane/authplane/internal/rate"
	"github.com/authplane/authplane/internal/store/core"
	"github.com/authplane/authplane/internal/tenant"
)

// RouterDeps contains everything the route aggregator wires together.
type RouterDeps struct {
	Repo     core.Repository
	Tokens   oauth.TokenService
	Clients  admin.ClientsService
	Tenants  admin.TenantsService
	Resolver *tenant.Resolver
	Limiter  rate.Limiter // optional; nil disables throttling

	AdminKey      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SecureCookies bool
	Metrics       http.Handler // optional; nil hides /metrics
}

// NewRouter builds the complete route tree with the standard middleware
// stack (request id, tenant resolution, logging, recovery, metrics).
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	base := []middlewares.Middleware{
		middlewares.WithRequestID(),
		middlewares.WithTenant(d.Resolver),
		middlewares.WithLogging(),
		middlewares.WithRecover(),
	}

	tokenHandler := handlers.NewOAuthTokenHandler(handlers.TokenHandlerDeps{
		Service:       d.Tokens,
		AccessTTL:     d.AccessTTL,
		RefreshTTL:    d.RefreshTTL,
		SecureCookies: d.SecureCookies,
	})
	tokenMws := base
	if d.Limiter != nil {
		tokenMws = append(append([]middlewares.Middleware{}, base...), middlewares.WithRateLimit(d.Limiter))
	}
	r.Method(http.MethodPost, "/oauth/token", middlewares.ChainFunc(tokenHandler, tokenMws...))

	r.Method(http.MethodPost, "/connect/register",
		middlewares.ChainFunc(handlers.NewClientRegistrationHandler(d.Clients), base...))

	r.Method(http.MethodPost, "/logout",
		middlewares.ChainFunc(handlers.NewLogoutHandler(d.SecureCookies), base...))

	r.Method(http.MethodGet, "/.well-known/jwks.json",
		middlewares.ChainFunc(handlers.NewJWKSHandler(d.Repo.Keys()), base...))

	// management API, guarded by the static admin key
	adminMws := append(append([]middlewares.Middleware{}, base...), middlewares.WithAdminKey(d.AdminKey))
	clientsH := &handlers.AdminClientsHandler{Service: d.Clients}
	tenantsH := &handlers.AdminTenantsHandler{Service: d.Tenants}

	r.Route("/api/admin", func(ar chi.Router) {
		ar.Method(http.MethodPost, "/tenants", middlewares.ChainFunc(tenantsH.Create, adminMws...))
		ar.Method(http.MethodGet, "/tenants/{tenantID}", middlewares.ChainFunc(tenantsH.Get, adminMws...))

		ar.Method(http.MethodPost, "/oauth/clients", middlewares.ChainFunc(clientsH.Create, adminMws...))
		ar.Method(http.MethodGet, "/oauth/clients", middlewares.ChainFunc(clientsH.List, adminMws...))
		ar.Method(http.MethodGet, "/oauth/clients/{clientID}", middlewares.ChainFunc(clientsH.Get, adminMws...))
		ar.Method(http.MethodPut, "/oauth/clients/{clientID}", middlewares.ChainFunc(clientsH.Update, adminMws...))
		ar.Method(http.MethodDelete, "/oauth/clients/{clientID}", middlewares.ChainFunc(clientsH.Delete, adminMws...))
		ar.Method(http.MethodPost, "/oauth/clients/{clientID}/enable", middlewares.ChainFunc(clientsH.Enable, adminMws...))
		ar.Method(http.MethodPost, "/oauth/clients/{clientID}/disable", middlewares.ChainFunc(clientsH.Disable, adminMws...))
	})

	r.Get("/healthz", handlers.NewHealthzHandler())
	r.Get("/readyz", handlers.NewReadyzHandler(d.Repo))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	return httpx.WithMetrics(r)
}
