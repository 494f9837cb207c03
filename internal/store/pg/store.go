// Package pg is the PostgreSQL Repository implementation on pgxpool.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/authplane/authplane/internal/store/core"
)

// Config tunes the connection pool.
type Config struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

type Store struct {
	pool *pgxpool.Pool

	clients *clientRepo
	authz   *authzStore
	tenants *tenantRepo
	users   *userRepo
	keys    *keyRepo
}

func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	s := &Store{pool: pool}
	s.clients = &clientRepo{pool: pool}
	s.authz = &authzStore{pool: pool}
	s.tenants = &tenantRepo{pool: pool}
	s.users = &userRepo{pool: pool}
	s.keys = &keyRepo{pool: pool}
	return s, nil
}

// Pool exposes the underlying pool for migrations and metrics.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Clients() core.ClientRepository          { return s.clients }
func (s *Store) Authorizations() core.AuthorizationStore { return s.authz }
func (s *Store) Tenants() core.TenantRepository          { return s.tenants }
func (s *Store) Users() core.UserRepository              { return s.users }
func (s *Store) Keys() core.KeyRepository                { return s.keys }

// mapErr folds driver errors into the domain sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	var pge *pgconn.PgError
	if errors.As(err, &pge) && pge.Code == "23505" {
		return core.ErrConflict
	}
	return err
}
