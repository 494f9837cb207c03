// Package config loads the YAML configuration with environment overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr          string `yaml:"addr"`
		AdminKey      string `yaml:"admin_key"`
		SecureCookies bool   `yaml:"secure_cookies"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // postgres | memory
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Issuer     string `yaml:"issuer"`
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	Tenant struct {
		Default    string `yaml:"default"`     // fallback tenant for single-tenant installs
		BaseDomain string `yaml:"base_domain"` // scope subdomain resolution
	} `yaml:"tenant"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`
	} `yaml:"rate"`

	OpTimeout string `yaml:"op_timeout"` // per-exchange service budget
}

// Durations resolved from the string fields; populated by Load.
type Durations struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	RateWindow time.Duration
	OpTimeout  time.Duration
	PGConnLife time.Duration
}

func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "http://localhost:8080"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "720h" // 30d
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 60
	}
	if c.OpTimeout == "" {
		c.OpTimeout = "5s"
	}

	// env overrides for deployment without a config file
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		c.Server.AdminKey = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("CACHE_KIND"); v != "" {
		c.Cache.Kind = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		c.JWT.Issuer = v
	}
	if v := os.Getenv("DEFAULT_TENANT"); v != "" {
		c.Tenant.Default = v
	}
	if v := os.Getenv("TENANT_BASE_DOMAIN"); v != "" {
		c.Tenant.BaseDomain = v
	}
	if v := os.Getenv("RATE_ENABLED"); v != "" {
		c.Rate.Enabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("SECURE_COOKIES"); v != "" {
		c.Server.SecureCookies, _ = strconv.ParseBool(v)
	}

	return &c, nil
}

// ResolveDurations parses the duration strings, falling back to defaults
// when a value does not parse.
func (c *Config) ResolveDurations() Durations {
	parse := func(s string, def time.Duration) time.Duration {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
		return def
	}
	return Durations{
		AccessTTL:  parse(c.JWT.AccessTTL, 15*time.Minute),
		RefreshTTL: parse(c.JWT.RefreshTTL, 30*24*time.Hour),
		RateWindow: parse(c.Rate.Window, time.Minute),
		OpTimeout:  parse(c.OpTimeout, 5*time.Second),
		PGConnLife: parse(c.Storage.Postgres.ConnMaxLifetime, 0),
	}
}
