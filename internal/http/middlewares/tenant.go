package middlewares

import (
	"net/http"

	"github.com/authplane/authplane/internal/tenant"
)

// WithTenant resolves the tenant for the request and stores it in the
// context. Resolution failures pass through: endpoints that require a
// tenant enforce it themselves so public routes keep working.
func WithTenant(res *tenant.Resolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tid, err := res.Resolve(r); err == nil {
				r = r.WithContext(tenant.NewContext(r.Context(), tid))
			}
			next.ServeHTTP(w, r)
		})
	}
}
