package tenant

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResolveHeaderWins(t *testing.T) {
	r := &Resolver{DefaultTenant: "fallback"}
	req := httptest.NewRequest("POST", "http://acme.example.com/oauth/token?tenant_id=other", nil)
	req.Header.Set(HeaderTenantID, "from-header")

	got, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-header" {
		t.Fatalf("got %q, want from-header", got)
	}
}

func TestResolveSubdomain(t *testing.T) {
	r := &Resolver{}
	req := httptest.NewRequest("GET", "http://acme.example.com/", nil)
	got, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme" {
		t.Fatalf("got %q, want acme", got)
	}
}

func TestResolveSubdomainWithPort(t *testing.T) {
	r := &Resolver{}
	req := httptest.NewRequest("GET", "http://acme.example.com:8443/", nil)
	got, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme" {
		t.Fatalf("got %q, want acme", got)
	}
}

func TestResolveReservedSubdomains(t *testing.T) {
	r := &Resolver{}
	for _, sub := range []string{"www", "api", "auth"} {
		req := httptest.NewRequest("GET", "http://"+sub+".example.com/", nil)
		if _, err := r.Resolve(req); err != ErrTenantMissing {
			t.Fatalf("%s: got err %v, want ErrTenantMissing", sub, err)
		}
	}
}

func TestResolveBaseDomainScoped(t *testing.T) {
	r := &Resolver{BaseDomain: "authplane.dev"}

	req := httptest.NewRequest("GET", "http://acme.authplane.dev/", nil)
	got, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme" {
		t.Fatalf("got %q, want acme", got)
	}

	// hosts outside the base domain do not resolve by subdomain
	req = httptest.NewRequest("GET", "http://acme.elsewhere.com/", nil)
	if _, err := r.Resolve(req); err != ErrTenantMissing {
		t.Fatalf("got err %v, want ErrTenantMissing", err)
	}

	// nested labels do not count
	req = httptest.NewRequest("GET", "http://a.b.authplane.dev/", nil)
	if _, err := r.Resolve(req); err != ErrTenantMissing {
		t.Fatalf("got err %v, want ErrTenantMissing", err)
	}
}

func TestResolveQueryParam(t *testing.T) {
	r := &Resolver{}
	req := httptest.NewRequest("GET", "http://localhost/oauth/token?tenant_id=t42", nil)
	got, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "t42" {
		t.Fatalf("got %q, want t42", got)
	}
}

func TestResolveFormParam(t *testing.T) {
	r := &Resolver{}
	body := strings.NewReader("grant_type=password&tenant_id=t7")
	req := httptest.NewRequest("POST", "http://localhost/oauth/token", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	got, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "t7" {
		t.Fatalf("got %q, want t7", got)
	}
}

func TestResolveDefault(t *testing.T) {
	r := &Resolver{DefaultTenant: "main"}
	req := httptest.NewRequest("GET", "http://localhost/", nil)
	got, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "main" {
		t.Fatalf("got %q, want main", got)
	}
}

func TestResolveMissing(t *testing.T) {
	r := &Resolver{}
	req := httptest.NewRequest("GET", "http://127.0.0.1:9000/", nil)
	if _, err := r.Resolve(req); err != ErrTenantMissing {
		t.Fatalf("got err %v, want ErrTenantMissing", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := NewContext(httptest.NewRequest("GET", "/", nil).Context(), "tenant-1")
	if got := FromContext(ctx); got != "tenant-1" {
		t.Fatalf("got %q", got)
	}
}
