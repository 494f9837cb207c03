package handlers

import (
	"context"
	"net/http"
	"time"

	httpx "github.com/authplane/authplane/internal/http/httpx"
	"github.com/authplane/authplane/internal/store/core"
)

// NewHealthzHandler is the liveness probe.
func NewHealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// NewReadyzHandler is the readiness probe: it pings the repository with a
// short budget.
func NewReadyzHandler(repo core.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repo.Ping(ctx); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
