// Package admin holds the administrative services behind the management API.
package admin

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/authplane/authplane/internal/observability/logger"
	"github.com/authplane/authplane/internal/security/password"
	tokens "github.com/authplane/authplane/internal/security/token"
	"github.com/authplane/authplane/internal/store/core"
)

var (
	ErrValidation = errors.New("validation_failed")
	ErrNotFound   = errors.New("not_found")
	ErrConflict   = errors.New("conflict")
)

// ClientWithSecret is returned only from Create: the plaintext secret is
// shown exactly once and never stored.
type ClientWithSecret struct {
	Client       *core.RegisteredClient
	ClientSecret string
}

// CreateClientRequest carries the admin-facing client registration fields.
// ClientID and Secret are optional; when absent both are generated.
type CreateClientRequest struct {
	ClientID           string   `json:"client_id,omitempty"`
	Secret             string   `json:"client_secret,omitempty"`
	Name               string   `json:"name"`
	Public             bool     `json:"public"`
	AuthMethods        []string `json:"auth_methods"`
	GrantTypes         []string `json:"grant_types"`
	RedirectURIs       []string `json:"redirect_uris"`
	Scopes             []string `json:"scopes"`
	RequireProofKey    bool     `json:"require_proof_key"`
	RequireConsent     bool     `json:"require_consent"`
	AccessTokenTTL     int      `json:"access_token_ttl"`
	RefreshTokenTTL    int      `json:"refresh_token_ttl"`
	ReuseRefreshTokens bool     `json:"reuse_refresh_tokens"`
}

// ClientsService manages the tenant-scoped client registry.
type ClientsService interface {
	Create(ctx context.Context, tenantID string, req CreateClientRequest) (*ClientWithSecret, error)
	Get(ctx context.Context, tenantID, clientID string) (*core.RegisteredClient, error)
	Update(ctx context.Context, tenantID, clientID string, patch core.ClientPatch) (*core.RegisteredClient, error)
	SetEnabled(ctx context.Context, tenantID, clientID string, enabled bool) error
	Delete(ctx context.Context, tenantID, clientID string) error
	List(ctx context.Context, tenantID string, page, size int) ([]core.RegisteredClient, int, error)
}

type clientsService struct {
	repo core.Repository
}

func NewClientsService(repo core.Repository) ClientsService {
	return &clientsService{repo: repo}
}

var knownGrants = map[string]bool{
	core.GrantAuthorizationCode: true,
	core.GrantClientCredentials: true,
	core.GrantPassword:          true,
	core.GrantRefreshToken:      true,
}

func validateGrants(grants []string) error {
	if len(grants) == 0 {
		return ErrValidation
	}
	for _, g := range grants {
		if !knownGrants[g] {
			return ErrValidation
		}
	}
	return nil
}

func validateRedirectURIs(uris []string, required bool) error {
	if required && len(uris) == 0 {
		return ErrValidation
	}
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" || u.Fragment != "" {
			return ErrValidation
		}
	}
	return nil
}

func (s *clientsService) Create(ctx context.Context, tenantID string, req CreateClientRequest) (*ClientWithSecret, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("admin.clients"),
		logger.TenantID(tenantID))

	if tenantID == "" || strings.TrimSpace(req.Name) == "" {
		return nil, ErrValidation
	}
	if _, err := s.repo.Tenants().GetByID(ctx, tenantID); err != nil {
		if err == core.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := validateGrants(req.GrantTypes); err != nil {
		return nil, err
	}
	needsRedirect := false
	for _, g := range req.GrantTypes {
		if g == core.GrantAuthorizationCode {
			needsRedirect = true
		}
	}
	if err := validateRedirectURIs(req.RedirectURIs, needsRedirect); err != nil {
		return nil, err
	}
	if len(req.Scopes) == 0 {
		return nil, ErrValidation
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = "client_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	} else if strings.ContainsAny(clientID, " \t\n") {
		return nil, ErrValidation
	}

	now := time.Now().UTC()
	c := &core.RegisteredClient{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		ClientID:           clientID,
		Name:               strings.TrimSpace(req.Name),
		AuthMethods:        req.AuthMethods,
		GrantTypes:         req.GrantTypes,
		RedirectURIs:       req.RedirectURIs,
		Scopes:             req.Scopes,
		RequireProofKey:    req.RequireProofKey,
		RequireConsent:     req.RequireConsent,
		AccessTokenTTL:     req.AccessTokenTTL,
		RefreshTokenTTL:    req.RefreshTokenTTL,
		ReuseRefreshTokens: req.ReuseRefreshTokens,
		Enabled:            true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var plaintext string
	if !req.Public {
		secret := req.Secret
		if secret == "" {
			var err error
			secret, err = tokens.GenerateOpaqueToken(32)
			if err != nil {
				return nil, err
			}
		}
		hash, err := password.Hash(password.Default, secret)
		if err != nil {
			return nil, err
		}
		plaintext = secret
		c.SecretHash = hash
	}

	if err := s.repo.Clients().Create(ctx, c); err != nil {
		if err == core.ErrConflict {
			return nil, ErrConflict
		}
		log.Error("client create failed", logger.Err(err))
		return nil, err
	}
	log.Info("client registered", logger.ClientID(c.ClientID))
	return &ClientWithSecret{Client: c, ClientSecret: plaintext}, nil
}

func (s *clientsService) Get(ctx context.Context, tenantID, clientID string) (*core.RegisteredClient, error) {
	c, err := s.repo.Clients().GetAny(ctx, tenantID, clientID)
	if err == core.ErrNotFound {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *clientsService) Update(ctx context.Context, tenantID, clientID string, patch core.ClientPatch) (*core.RegisteredClient, error) {
	c, err := s.repo.Clients().GetAny(ctx, tenantID, clientID)
	if err == core.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, ErrValidation
		}
		c.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Secret != nil {
		hash, err := password.Hash(password.Default, *patch.Secret)
		if err != nil {
			return nil, err
		}
		c.SecretHash = hash
	}
	if patch.AuthMethods != nil {
		c.AuthMethods = patch.AuthMethods
	}
	if patch.GrantTypes != nil {
		if err := validateGrants(patch.GrantTypes); err != nil {
			return nil, err
		}
		c.GrantTypes = patch.GrantTypes
	}
	if patch.RedirectURIs != nil {
		if err := validateRedirectURIs(patch.RedirectURIs, c.AllowsGrant(core.GrantAuthorizationCode)); err != nil {
			return nil, err
		}
		c.RedirectURIs = patch.RedirectURIs
	}
	if patch.Scopes != nil {
		if len(patch.Scopes) == 0 {
			return nil, ErrValidation
		}
		c.Scopes = patch.Scopes
	}
	if patch.RequireProofKey != nil {
		c.RequireProofKey = *patch.RequireProofKey
	}
	if patch.RequireConsent != nil {
		c.RequireConsent = *patch.RequireConsent
	}
	if patch.AccessTokenTTL != nil {
		c.AccessTokenTTL = *patch.AccessTokenTTL
	}
	if patch.RefreshTokenTTL != nil {
		c.RefreshTokenTTL = *patch.RefreshTokenTTL
	}
	if patch.ReuseRefreshTokens != nil {
		c.ReuseRefreshTokens = *patch.ReuseRefreshTokens
	}
	c.UpdatedAt = time.Now().UTC()

	if err := s.repo.Clients().Update(ctx, c); err != nil {
		if err == core.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *clientsService) SetEnabled(ctx context.Context, tenantID, clientID string, enabled bool) error {
	err := s.repo.Clients().SetEnabled(ctx, tenantID, clientID, enabled)
	if err == core.ErrNotFound {
		return ErrNotFound
	}
	return err
}

func (s *clientsService) Delete(ctx context.Context, tenantID, clientID string) error {
	err := s.repo.Clients().Delete(ctx, tenantID, clientID)
	if err == core.ErrNotFound {
		return ErrNotFound
	}
	return err
}

func (s *clientsService) List(ctx context.Context, tenantID string, page, size int) ([]core.RegisteredClient, int, error) {
	return s.repo.Clients().List(ctx, tenantID, page, size)
}
