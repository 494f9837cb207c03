// Package tenant resolves the active tenant for a request and carries it
// through the call chain as an explicit value. Nothing here is a mutable
// global: resolution is a pure function of the request plus static config.
package tenant

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// HeaderTenantID is the explicit tenant header, checked first.
const HeaderTenantID = "X-Tenant-Id"

// ParamTenantID is the query/form fallback parameter.
const ParamTenantID = "tenant_id"

// ErrTenantMissing means no strategy produced a tenant and no default is
// configured. Callers requiring a tenant must reject the request.
var ErrTenantMissing = errors.New("tenant_missing")

// reserved subdomains never resolve to a tenant.
var reservedSubdomains = map[string]bool{
	"www":  true,
	"api":  true,
	"auth": true,
}

// Resolver resolves tenant identifiers from requests.
type Resolver struct {
	// DefaultTenant is the single-tenant fallback. Empty means none.
	DefaultTenant string

	// BaseDomain, when set, restricts subdomain parsing to hosts under
	// it (e.g. "authplane.dev" resolves "acme.authplane.dev" -> "acme").
	// When empty the first host label is used.
	BaseDomain string
}

// Resolve returns the tenant identifier for the request. Resolution order,
// first match wins: explicit header, subdomain, tenant_id parameter,
// configured default. Returns ErrTenantMissing when nothing matches.
func (r *Resolver) Resolve(req *http.Request) (string, error) {
	if v := strings.TrimSpace(req.Header.Get(HeaderTenantID)); v != "" {
		return v, nil
	}

	if sub := r.subdomain(req.Host); sub != "" {
		return sub, nil
	}

	// ParseForm is idempotent and covers both query and form encodings.
	_ = req.ParseForm()
	if v := strings.TrimSpace(req.Form.Get(ParamTenantID)); v != "" {
		return v, nil
	}

	if r.DefaultTenant != "" {
		return r.DefaultTenant, nil
	}
	return "", ErrTenantMissing
}

func (r *Resolver) subdomain(host string) string {
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	if net.ParseIP(host) != nil {
		return ""
	}

	var label string
	if r.BaseDomain != "" {
		suffix := "." + strings.ToLower(r.BaseDomain)
		if !strings.HasSuffix(host, suffix) {
			return ""
		}
		prefix := strings.TrimSuffix(host, suffix)
		// only a single label counts as a tenant subdomain
		if prefix == "" || strings.Contains(prefix, ".") {
			return ""
		}
		label = prefix
	} else {
		parts := strings.Split(host, ".")
		// need at least sub.domain.tld
		if len(parts) < 3 {
			return ""
		}
		label = parts[0]
	}

	if reservedSubdomains[label] {
		return ""
	}
	return label
}

type ctxKey struct{}

// NewContext returns ctx carrying the resolved tenant identifier.
func NewContext(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenantID)
}

// FromContext returns the tenant identifier resolved for this request, or
// "" when none was resolved.
func FromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}
