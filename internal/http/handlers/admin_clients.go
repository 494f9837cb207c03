package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	httpx "github.com/authplane/authplane/internal/http/httpx"
	"github.com/authplane/authplane/internal/http/services/admin"
	"github.com/authplane/authplane/internal/store/core"
	"github.com/authplane/authplane/internal/tenant"
)

// AdminClientsHandler exposes the client registry CRUD under
// /api/admin/oauth/clients. The tenant is resolved per request, same as
// the token endpoint.
type AdminClientsHandler struct {
	Service admin.ClientsService
}

func (h *AdminClientsHandler) requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tid := tenant.FromContext(r.Context())
	if tid == "" {
		httpx.WriteError(w, http.StatusBadRequest, "tenant_missing", "no tenant resolved for request", httpx.CodeTenantMissing)
		return "", false
	}
	return tid, true
}

func (h *AdminClientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	var req admin.CreateClientRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	out, err := h.Service.Create(r.Context(), tid, req)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toClientResponse(out.Client, out.ClientSecret))
}

func (h *AdminClientsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	c, err := h.Service.Get(r.Context(), tid, chi.URLParam(r, "clientID"))
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toClientResponse(c, ""))
}

func (h *AdminClientsHandler) Update(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	var patch core.ClientPatch
	if !httpx.ReadJSON(w, r, &patch) {
		return
	}
	c, err := h.Service.Update(r.Context(), tid, chi.URLParam(r, "clientID"), patch)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toClientResponse(c, ""))
}

func (h *AdminClientsHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *AdminClientsHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *AdminClientsHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	tid, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	if err := h.Service.SetEnabled(r.Context(), tid, chi.URLParam(r, "clientID"), enabled); err != nil {
		writeAdminError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (h *AdminClientsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), tid, chi.URLParam(r, "clientID")); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type clientListResponse struct {
	Items []clientResponse `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

func (h *AdminClientsHandler) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	items, total, err := h.Service.List(r.Context(), tid, page, size)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	resp := clientListResponse{Items: make([]clientResponse, 0, len(items)), Total: total, Page: page, Size: size}
	for i := range items {
		resp.Items = append(resp.Items, toClientResponse(&items[i], ""))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
