package handlers

import (
	"net/http"

	httpx "github.com/authplane/authplane/internal/http/httpx"
	jwtx "github.com/authplane/authplane/internal/jwt"
	"github.com/authplane/authplane/internal/store/core"
	"github.com/authplane/authplane/internal/tenant"
)

// NewJWKSHandler serves GET /.well-known/jwks.json with the resolved
// tenant's active verification key.
func NewJWKSHandler(keys core.KeyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid := tenant.FromContext(r.Context())
		if tid == "" {
			httpx.WriteError(w, http.StatusBadRequest, "tenant_missing", "no tenant resolved for request", httpx.CodeTenantMissing)
			return
		}
		k, err := keys.ActiveForTenant(r.Context(), tid)
		if err == core.ErrNotFound {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "", httpx.CodeNotFound)
			return
		}
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "", httpx.CodeInternal)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(jwtx.JWKSJSON(k))
	}
}
