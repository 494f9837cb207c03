package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/authplane/authplane/internal/cache"
	"github.com/authplane/authplane/internal/config"
	httpx "github.com/authplane/authplane/internal/http"
	httpwire "github.com/authplane/authplane/internal/http/httpx"
	"github.com/authplane/authplane/internal/http/services/admin"
	"github.com/authplane/authplane/internal/http/services/oauth"
	jwtx "github.com/authplane/authplane/internal/jwt"
	"github.com/authplane/authplane/internal/observability/logger"
	"github.com/authplane/authplane/internal/rate"
	"github.com/authplane/authplane/internal/store/core"
	"github.com/authplane/authplane/internal/store/memory"
	"github.com/authplane/authplane/internal/store/pg"
	"github.com/authplane/authplane/internal/tenant"
	migrations "github.com/authplane/authplane/migrations/postgres"
)

var version = "dev"

func main() {
	var (
		cfgPath string
		envFile string
	)

	root := &cobra.Command{
		Use:          "authplane",
		Short:        "Multi-tenant OAuth2 authorization server",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; real deployments use the environment
			if envFile != "" {
				_ = godotenv.Load(envFile)
			} else {
				_ = godotenv.Load()
			}
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to .env file")

	root.AddCommand(newServeCmd(&cfgPath), newMigrateCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			durs := cfg.ResolveDurations()

			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				ServiceName: "authplane",
				Version:     version,
			})
			defer func() { _ = logger.Sync() }()
			log := logger.L()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			repo, err := buildRepository(ctx, cfg, durs)
			if err != nil {
				return fmt.Errorf("storage: %w", err)
			}
			defer repo.Close()

			issuer := jwtx.NewIssuer(cfg.JWT.Issuer, repo.Keys())
			issuer.AccessTTL = durs.AccessTTL

			tenantCache := cache.New(cache.Config{
				Kind:       cfg.Cache.Kind,
				Addr:       cfg.Cache.Redis.Addr,
				DB:         cfg.Cache.Redis.DB,
				Prefix:     cfg.Cache.Redis.Prefix,
				DefaultTTL: 2 * time.Minute,
			})

			tokens := oauth.NewTokenService(oauth.TokenDeps{
				Repo:       repo,
				Issuer:     issuer,
				Cache:      tenantCache,
				AccessTTL:  durs.AccessTTL,
				RefreshTTL: durs.RefreshTTL,
				OpTimeout:  durs.OpTimeout,
			})

			var limiter rate.Limiter
			if cfg.Rate.Enabled {
				if cfg.Cache.Kind == "redis" && cfg.Cache.Redis.Addr != "" {
					client := rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
					limiter = rate.NewRedisLimiter(client, "rl:token:", cfg.Rate.MaxRequests, durs.RateWindow)
				} else {
					limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, durs.RateWindow)
				}
			}

			metrics, err := httpwire.RegisterMetrics(nil)
			if err != nil {
				return fmt.Errorf("metrics: %w", err)
			}

			handler := httpx.NewRouter(httpx.RouterDeps{
				Repo:    repo,
				Tokens:  tokens,
				Clients: admin.NewClientsService(repo),
				Tenants: admin.NewTenantsService(repo),
				Resolver: &tenant.Resolver{
					DefaultTenant: cfg.Tenant.Default,
					BaseDomain:    cfg.Tenant.BaseDomain,
				},
				Limiter:       limiter,
				AdminKey:      cfg.Server.AdminKey,
				AccessTTL:     durs.AccessTTL,
				RefreshTTL:    durs.RefreshTTL,
				SecureCookies: cfg.Server.SecureCookies,
				Metrics:       metrics,
			})

			log.Info("starting",
				logger.String("addr", cfg.Server.Addr),
				logger.String("storage", cfg.Storage.Driver),
				logger.String("issuer", cfg.JWT.Issuer),
			)
			return httpx.Serve(ctx, cfg.Server.Addr, handler)
		},
	}
}

func newMigrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requires storage.driver=postgres, got %q", cfg.Storage.Driver)
			}
			durs := cfg.ResolveDurations()

			logger.Init(logger.Config{Env: cfg.App.Env, ServiceName: "authplane", Version: version})
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{
				MaxConns:        int32(cfg.Storage.Postgres.MaxConns),
				MinConns:        int32(cfg.Storage.Postgres.MinConns),
				ConnMaxLifetime: durs.PGConnLife,
			})
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer store.Close()

			if err := migrations.Apply(ctx, store.Pool()); err != nil {
				return err
			}
			logger.L().Info("migrations applied")
			return nil
		},
	}
}

func buildRepository(ctx context.Context, cfg *config.Config, durs config.Durations) (core.Repository, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return pg.New(ctx, cfg.Storage.DSN, pg.Config{
			MaxConns:        int32(cfg.Storage.Postgres.MaxConns),
			MinConns:        int32(cfg.Storage.Postgres.MinConns),
			ConnMaxLifetime: durs.PGConnLife,
		})
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
