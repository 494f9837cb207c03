package oauth

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/authplane/authplane/internal/cache"
	jwtx "github.com/authplane/authplane/internal/jwt"
	"github.com/authplane/authplane/internal/observability/logger"
	"github.com/authplane/authplane/internal/security/password"
	"github.com/authplane/authplane/internal/security/pkce"
	tokens "github.com/authplane/authplane/internal/security/token"
	"github.com/authplane/authplane/internal/store/core"
)

// TokenDeps contains dependencies for the token service.
type TokenDeps struct {
	Repo       core.Repository
	Issuer     *jwtx.Issuer
	Cache      cache.Cache   // optional; caches tenant lookups
	AccessTTL  time.Duration // default when the client has no override
	RefreshTTL time.Duration
	OpTimeout  time.Duration // per-exchange budget; 0 disables
}

type tokenService struct {
	repo       core.Repository
	issuer     *jwtx.Issuer
	cache      cache.Cache
	accessTTL  time.Duration
	refreshTTL time.Duration
	opTimeout  time.Duration
}

func NewTokenService(d TokenDeps) TokenService {
	if d.AccessTTL <= 0 {
		d.AccessTTL = 15 * time.Minute
	}
	if d.RefreshTTL <= 0 {
		d.RefreshTTL = 30 * 24 * time.Hour
	}
	return &tokenService{
		repo:       d.Repo,
		issuer:     d.Issuer,
		cache:      d.Cache,
		accessTTL:  d.AccessTTL,
		refreshTTL: d.RefreshTTL,
		opTimeout:  d.OpTimeout,
	}
}

func (s *tokenService) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// lookupTenant resolves the tenant by id first, then by domain, so both
// header-style identifiers and subdomain labels work. Hits the cache
// before the store; tenants change rarely and every exchange needs one.
func (s *tokenService) lookupTenant(ctx context.Context, tenantID string) (*core.Tenant, error) {
	if tenantID == "" {
		return nil, ErrTokenTenantMissing
	}

	cacheKey := "tenant:" + tenantID
	if s.cache != nil {
		if b, ok := s.cache.Get(cacheKey); ok {
			var t core.Tenant
			if json.Unmarshal(b, &t) == nil && t.Status == core.TenantStatusActive {
				return &t, nil
			}
		}
	}

	t, err := s.repo.Tenants().GetByID(ctx, tenantID)
	if err == core.ErrNotFound {
		t, err = s.repo.Tenants().GetByDomain(ctx, tenantID)
	}
	if err == core.ErrNotFound {
		return nil, ErrTokenTenantMissing
	}
	if err != nil {
		return nil, ErrTokenServerError
	}
	if t.Status != core.TenantStatusActive {
		return nil, ErrTokenTenantMissing
	}

	if s.cache != nil {
		if b, err := json.Marshal(t); err == nil {
			s.cache.Set(cacheKey, b, time.Minute)
		}
	}
	return t, nil
}

// authenticateClient resolves the client within the tenant and checks its
// secret. Confidential clients must present the right secret; public
// clients must not be asked for one.
func (s *tokenService) authenticateClient(ctx context.Context, tenant *core.Tenant, clientID, clientSecret string) (*core.RegisteredClient, error) {
	if clientID == "" {
		return nil, ErrTokenInvalidRequest
	}
	client, err := s.repo.Clients().GetByClientID(ctx, tenant.ID, clientID)
	if err == core.ErrNotFound {
		return nil, ErrTokenInvalidClient
	}
	if err != nil {
		return nil, ErrTokenServerError
	}
	if client.IsConfidential() {
		if clientSecret == "" || !password.Verify(clientSecret, client.SecretHash) {
			return nil, ErrTokenInvalidClient
		}
	} else if clientSecret != "" {
		return nil, ErrTokenInvalidClient
	}
	return client, nil
}

// resolveScopes narrows the requested scope to what the client is allowed.
// Empty request means the client's full scope set.
func resolveScopes(client *core.RegisteredClient, requested string) ([]string, error) {
	if strings.TrimSpace(requested) == "" {
		return append([]string(nil), client.Scopes...), nil
	}
	allowed := make(map[string]bool, len(client.Scopes))
	for _, sc := range client.Scopes {
		allowed[sc] = true
	}
	var out []string
	for _, sc := range strings.Fields(requested) {
		if !allowed[sc] {
			return nil, ErrTokenInvalidRequest
		}
		out = append(out, sc)
	}
	return out, nil
}

func hasScope(scopes []string, want string) bool {
	for _, sc := range scopes {
		if sc == want {
			return true
		}
	}
	return false
}

func (s *tokenService) accessTTLFor(client *core.RegisteredClient) time.Duration {
	if client.AccessTokenTTL > 0 {
		return time.Duration(client.AccessTokenTTL) * time.Second
	}
	return s.accessTTL
}

func (s *tokenService) refreshTTLFor(client *core.RegisteredClient) time.Duration {
	if client.RefreshTokenTTL > 0 {
		return time.Duration(client.RefreshTokenTTL) * time.Second
	}
	return s.refreshTTL
}

// mintTokens issues the access token (and optionally refresh/ID tokens),
// attaches them to rec and persists it. The caller owns rec's identity
// fields; mintTokens owns the token sub-records.
func (s *tokenService) mintTokens(ctx context.Context, tenant *core.Tenant, client *core.RegisteredClient, rec *core.AuthorizationRecord, sub string, roles []string, scopes []string, withRefresh bool, idClaims map[string]any) (*TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.mint"))
	now := time.Now().UTC()
	scope := strings.Join(scopes, " ")

	accessTTL := s.accessTTLFor(client)
	signed, exp, err := s.issuer.IssueAccess(ctx, jwtx.AccessClaims{
		Subject:      sub,
		TenantID:     tenant.ID,
		TenantDomain: tenant.Domain,
		Roles:        roles,
		ClientID:     client.ClientID,
		Scope:        scope,
	}, accessTTL)
	if err != nil {
		log.Error("access token signing failed", logger.Err(err))
		return nil, ErrTokenServerError
	}

	rec.AccessToken = &core.AccessToken{
		Value:     signed,
		IssuedAt:  now,
		ExpiresAt: exp,
		TokenType: "Bearer",
		Scopes:    scopes,
	}

	resp := &TokenResponse{
		AccessToken:  signed,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(exp).Seconds()),
		Scope:        scope,
		TenantID:     tenant.ID,
		TenantDomain: tenant.Domain,
	}

	if withRefresh && client.AllowsGrant(core.GrantRefreshToken) {
		rt, err := tokens.GenerateOpaqueToken(32)
		if err != nil {
			log.Error("refresh token generation failed", logger.Err(err))
			return nil, ErrTokenServerError
		}
		rec.RefreshToken = &core.RefreshToken{
			Value:     rt,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.refreshTTLFor(client)),
		}
		resp.RefreshToken = rt
	}

	if hasScope(scopes, "openid") && idClaims != nil {
		idTok, idExp, err := s.issuer.IssueIDToken(ctx, jwtx.AccessClaims{
			Subject:  sub,
			TenantID: tenant.ID,
			ClientID: client.ClientID,
		}, idClaims, accessTTL)
		if err != nil {
			log.Error("id token signing failed", logger.Err(err))
			return nil, ErrTokenServerError
		}
		rec.IDToken = &core.OidcIdToken{
			Value:     idTok,
			IssuedAt:  now,
			ExpiresAt: idExp,
			Claims:    idClaims,
		}
		resp.IDToken = idTok
	}

	if err := s.repo.Authorizations().Save(ctx, rec); err != nil {
		log.Error("authorization save failed", logger.Err(err))
		return nil, ErrTokenServerError
	}
	return resp, nil
}

func (s *tokenService) ExchangePassword(ctx context.Context, req PasswordRequest) (*TokenResponse, error) {
	ctx, cancel := s.withBudget(ctx)
	defer cancel()
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.password"),
		logger.TenantID(req.TenantID), logger.ClientID(req.ClientID))

	if req.Username == "" || req.Password == "" {
		return nil, ErrTokenInvalidRequest
	}

	tenant, err := s.lookupTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	client, err := s.authenticateClient(ctx, tenant, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(core.GrantPassword) {
		log.Warn("grant not allowed for client", logger.GrantType(core.GrantPassword))
		return nil, ErrTokenUnauthorizedClient
	}
	scopes, err := resolveScopes(client, req.Scope)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.Users().GetByEmail(ctx, tenant.ID, req.Username)
	if err == core.ErrNotFound {
		// same failure shape as a bad password
		return nil, ErrTokenInvalidGrant
	}
	if err != nil {
		log.Error("user lookup failed", logger.Err(err))
		return nil, ErrTokenServerError
	}
	if user.Status != core.UserStatusActive || !password.Verify(req.Password, user.PasswordHash) {
		log.Warn("credential verification failed", logger.UserID(user.ID))
		return nil, ErrTokenInvalidGrant
	}

	now := time.Now().UTC()
	rec := &core.AuthorizationRecord{
		ID:                 uuid.NewString(),
		TenantID:           tenant.ID,
		RegisteredClientID: client.ID,
		PrincipalName:      user.Email,
		GrantType:          core.GrantPassword,
		Scopes:             scopes,
		CreatedAt:          now,
	}

	resp, err := s.mintTokens(ctx, tenant, client, rec, user.ID, user.Roles, scopes, true, map[string]any{"email": user.Email})
	if err != nil {
		return nil, err
	}

	// best effort; a failed timestamp never blocks issuance
	if err := s.repo.Users().TouchLastLogin(ctx, user.ID, now); err != nil {
		log.Warn("last login update failed", logger.UserID(user.ID), logger.Err(err))
	}
	return resp, nil
}

func (s *tokenService) ExchangeAuthorizationCode(ctx context.Context, req AuthCodeRequest) (*TokenResponse, error) {
	ctx, cancel := s.withBudget(ctx)
	defer cancel()
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.authcode"),
		logger.TenantID(req.TenantID), logger.ClientID(req.ClientID))

	if req.Code == "" {
		return nil, ErrTokenInvalidRequest
	}

	tenant, err := s.lookupTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	client, err := s.authenticateClient(ctx, tenant, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(core.GrantAuthorizationCode) {
		return nil, ErrTokenUnauthorizedClient
	}

	rec, err := s.repo.Authorizations().FindByToken(ctx, req.Code, core.TokenKindCode)
	if err == core.ErrNotFound {
		return nil, ErrTokenInvalidGrant
	}
	if err != nil {
		log.Error("code lookup failed", logger.Err(err))
		return nil, ErrTokenServerError
	}
	if rec.TenantID != tenant.ID || rec.RegisteredClientID != client.ID {
		return nil, ErrTokenInvalidGrant
	}
	if rec.Code == nil || time.Now().After(rec.Code.ExpiresAt) {
		return nil, ErrTokenInvalidGrant
	}
	if uri, _ := rec.Attributes[core.AttrRedirectURI].(string); uri != "" && uri != req.RedirectURI {
		return nil, ErrTokenInvalidGrant
	}

	// PKCE: the stored challenge is authoritative regardless of which view
	// originally carried it
	if rec.CodeChallenge != "" {
		if req.CodeVerifier == "" || !pkce.Verify(req.CodeVerifier, rec.CodeChallenge, rec.CodeChallengeMethod) {
			log.Warn("pkce verification failed")
			return nil, ErrTokenInvalidGrant
		}
	} else if client.RequireProofKey {
		return nil, ErrTokenInvalidGrant
	}

	// single-use: exactly one concurrent exchange wins the swap
	won, err := s.repo.Authorizations().ConsumeCode(ctx, req.Code)
	if err != nil {
		log.Error("code consume failed", logger.Err(err))
		return nil, ErrTokenServerError
	}
	if !won {
		log.Warn("authorization code replay")
		return nil, ErrTokenInvalidGrant
	}
	now := time.Now().UTC()
	rec.CodeConsumedAt = &now

	scopes := rec.Scopes
	if len(scopes) == 0 {
		scopes = client.Scopes
	}

	sub := rec.PrincipalName
	var roles []string
	var idClaims map[string]any
	if user, err := s.repo.Users().GetByEmail(ctx, tenant.ID, rec.PrincipalName); err == nil {
		sub = user.ID
		roles = user.Roles
		idClaims = map[string]any{"email": user.Email}
	}

	return s.mintTokens(ctx, tenant, client, rec, sub, roles, scopes, true, idClaims)
}

func (s *tokenService) ExchangeClientCredentials(ctx context.Context, req ClientCredentialsRequest) (*TokenResponse, error) {
	ctx, cancel := s.withBudget(ctx)
	defer cancel()
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.clientcreds"),
		logger.TenantID(req.TenantID), logger.ClientID(req.ClientID))

	tenant, err := s.lookupTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	client, err := s.authenticateClient(ctx, tenant, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	// machine grant requires a confidential client
	if !client.IsConfidential() {
		return nil, ErrTokenInvalidClient
	}
	if !client.AllowsGrant(core.GrantClientCredentials) {
		log.Warn("grant not allowed for client", logger.GrantType(core.GrantClientCredentials))
		return nil, ErrTokenUnauthorizedClient
	}
	scopes, err := resolveScopes(client, req.Scope)
	if err != nil {
		return nil, err
	}

	rec := &core.AuthorizationRecord{
		ID:                 uuid.NewString(),
		TenantID:           tenant.ID,
		RegisteredClientID: client.ID,
		PrincipalName:      client.ClientID,
		GrantType:          core.GrantClientCredentials,
		Scopes:             scopes,
		CreatedAt:          time.Now().UTC(),
	}

	// no refresh token for machine clients
	return s.mintTokens(ctx, tenant, client, rec, client.ClientID, nil, scopes, false, nil)
}

func (s *tokenService) ExchangeRefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	ctx, cancel := s.withBudget(ctx)
	defer cancel()
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.refresh"),
		logger.TenantID(req.TenantID), logger.ClientID(req.ClientID))

	if req.RefreshToken == "" {
		return nil, ErrTokenInvalidRequest
	}

	tenant, err := s.lookupTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	client, err := s.authenticateClient(ctx, tenant, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(core.GrantRefreshToken) {
		return nil, ErrTokenUnauthorizedClient
	}

	rec, err := s.repo.Authorizations().FindByToken(ctx, req.RefreshToken, core.TokenKindRefreshToken)
	if err == core.ErrNotFound {
		return nil, ErrTokenInvalidGrant
	}
	if err != nil {
		log.Error("refresh lookup failed", logger.Err(err))
		return nil, ErrTokenServerError
	}
	if rec.TenantID != tenant.ID || rec.RegisteredClientID != client.ID {
		return nil, ErrTokenInvalidGrant
	}
	if rec.RefreshToken == nil || time.Now().After(rec.RefreshToken.ExpiresAt) {
		return nil, ErrTokenInvalidGrant
	}

	// scope may only narrow on refresh
	scopes := rec.Scopes
	if strings.TrimSpace(req.Scope) != "" {
		granted := make(map[string]bool, len(rec.Scopes))
		for _, sc := range rec.Scopes {
			granted[sc] = true
		}
		narrowed := make([]string, 0, len(rec.Scopes))
		for _, sc := range strings.Fields(req.Scope) {
			if !granted[sc] {
				return nil, ErrTokenInvalidRequest
			}
			narrowed = append(narrowed, sc)
		}
		scopes = narrowed
	}

	sub := rec.PrincipalName
	var roles []string
	var idClaims map[string]any
	if user, err := s.repo.Users().GetByEmail(ctx, tenant.ID, rec.PrincipalName); err == nil {
		sub = user.ID
		roles = user.Roles
		idClaims = map[string]any{"email": user.Email}
	}

	if client.ReuseRefreshTokens {
		// keep the refresh value, reissue the access token only
		resp, err := s.mintTokens(ctx, tenant, client, rec, sub, roles, scopes, false, idClaims)
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = rec.RefreshToken.Value
		return resp, nil
	}

	// rotation: the old value dies with this exchange
	return s.mintTokens(ctx, tenant, client, rec, sub, roles, scopes, true, idClaims)
}
