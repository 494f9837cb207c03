package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/authplane/authplane/internal/http/httpx"
	"github.com/authplane/authplane/internal/http/services/admin"
)

// AdminTenantsHandler exposes tenant registration under /api/admin/tenants.
type AdminTenantsHandler struct {
	Service admin.TenantsService
}

func (h *AdminTenantsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req admin.CreateTenantRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	t, err := h.Service.Create(r.Context(), req)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (h *AdminTenantsHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.Service.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}
