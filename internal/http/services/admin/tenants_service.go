package admin

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/authplane/authplane/internal/observability/logger"
	"github.com/authplane/authplane/internal/store/core"
)

var tenantNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)

// domain labels only; no scheme, no path
var domainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// CreateTenantRequest registers a new tenant boundary.
type CreateTenantRequest struct {
	Name    string `json:"name"`
	Domain  string `json:"domain"`
	OwnerID string `json:"owner_id,omitempty"`
}

// TenantsService manages tenant registration and lookup.
type TenantsService interface {
	Create(ctx context.Context, req CreateTenantRequest) (*core.Tenant, error)
	Get(ctx context.Context, id string) (*core.Tenant, error)
}

type tenantsService struct {
	repo core.Repository
}

func NewTenantsService(repo core.Repository) TenantsService {
	return &tenantsService{repo: repo}
}

func (s *tenantsService) Create(ctx context.Context, req CreateTenantRequest) (*core.Tenant, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("admin.tenants"))

	name := strings.TrimSpace(req.Name)
	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if !tenantNameRegex.MatchString(name) || !domainRegex.MatchString(domain) {
		return nil, ErrValidation
	}

	if exists, err := s.repo.Tenants().ExistsByName(ctx, name); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrConflict
	}
	if exists, err := s.repo.Tenants().ExistsByDomain(ctx, domain); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrConflict
	}

	t := &core.Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		Domain:    domain,
		Status:    core.TenantStatusActive,
		OwnerID:   req.OwnerID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Tenants().Create(ctx, t); err != nil {
		if err == core.ErrConflict {
			return nil, ErrConflict
		}
		log.Error("tenant create failed", logger.Err(err))
		return nil, err
	}
	log.Info("tenant created", logger.TenantID(t.ID), logger.String("domain", t.Domain))
	return t, nil
}

func (s *tenantsService) Get(ctx context.Context, id string) (*core.Tenant, error) {
	t, err := s.repo.Tenants().GetByID(ctx, id)
	if err == core.ErrNotFound {
		t, err = s.repo.Tenants().GetByDomain(ctx, id)
	}
	if err == core.ErrNotFound {
		return nil, ErrNotFound
	}
	return t, err
}
