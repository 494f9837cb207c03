// Package cache provides a small byte cache with memory and Redis
// backends. Used for tenant lookups and other short-lived hot reads; it is
// never the system of record.
package cache

import "time"

// Cache is the minimal contract both backends satisfy.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// Config selects and tunes a backend.
type Config struct {
	Kind       string // "memory" | "redis"
	Addr       string // redis only
	DB         int    // redis only
	Prefix     string
	DefaultTTL time.Duration
}

// New builds a cache from config, defaulting to memory.
func New(cfg Config) Cache {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg.Addr, cfg.DB, cfg.Prefix)
	default:
		return NewMemory(cfg.DefaultTTL)
	}
}
