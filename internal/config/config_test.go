package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Addr != ":8080" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Storage.Driver != "memory" {
		t.Errorf("driver = %q", c.Storage.Driver)
	}
	if c.Cache.Kind != "memory" {
		t.Errorf("cache kind = %q", c.Cache.Kind)
	}

	d := c.ResolveDurations()
	if d.AccessTTL != 15*time.Minute {
		t.Errorf("access ttl = %v", d.AccessTTL)
	}
	if d.RefreshTTL != 720*time.Hour {
		t.Errorf("refresh ttl = %v", d.RefreshTTL)
	}
	if d.OpTimeout != 5*time.Second {
		t.Errorf("op timeout = %v", d.OpTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  addr: ":9090"
  admin_key: file-key
storage:
  driver: postgres
  dsn: postgres://localhost/authplane
jwt:
  issuer: https://auth.example.com
  access_ttl: 5m
tenant:
  default: acme
  base_domain: example.com
rate:
  enabled: true
  window: 30s
  max_requests: 10
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Addr != ":9090" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Storage.Driver != "postgres" {
		t.Errorf("driver = %q", c.Storage.Driver)
	}
	if c.Tenant.Default != "acme" || c.Tenant.BaseDomain != "example.com" {
		t.Errorf("tenant = %+v", c.Tenant)
	}
	if !c.Rate.Enabled || c.Rate.MaxRequests != 10 {
		t.Errorf("rate = %+v", c.Rate)
	}
	if got := c.ResolveDurations().AccessTTL; got != 5*time.Minute {
		t.Errorf("access ttl = %v", got)
	}
	if got := c.ResolveDurations().RateWindow; got != 30*time.Second {
		t.Errorf("rate window = %v", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("ADMIN_API_KEY", "env-key")
	t.Setenv("RATE_ENABLED", "true")

	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Addr != ":7070" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Storage.Driver != "postgres" {
		t.Errorf("driver = %q", c.Storage.Driver)
	}
	if c.Server.AdminKey != "env-key" {
		t.Errorf("admin key = %q", c.Server.AdminKey)
	}
	if !c.Rate.Enabled {
		t.Error("rate not enabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestBadDurationsFallBack(t *testing.T) {
	c, _ := Load("")
	c.JWT.AccessTTL = "not-a-duration"
	c.OpTimeout = "-3s"
	d := c.ResolveDurations()
	if d.AccessTTL != 15*time.Minute {
		t.Errorf("access ttl = %v", d.AccessTTL)
	}
	if d.OpTimeout != 5*time.Second {
		t.Errorf("op timeout = %v", d.OpTimeout)
	}
}
