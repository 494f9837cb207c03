package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	jwtx "github.com/authplane/authplane/internal/jwt"
	"github.com/authplane/authplane/internal/security/password"
	tokens "github.com/authplane/authplane/internal/security/token"
	"github.com/authplane/authplane/internal/store/core"
	"github.com/authplane/authplane/internal/store/memory"
)

type fixture struct {
	repo   core.Repository
	svc    TokenService
	tenant *core.Tenant
	client *core.RegisteredClient
	user   *core.User
}

const (
	testSecret   = "s3cret-value"
	testPassword = "hunter2hunter2"
)

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()

	tenant := &core.Tenant{
		ID:        "t1",
		Name:      "acme",
		Domain:    "acme.example.com",
		Status:    core.TenantStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Tenants().Create(ctx, tenant); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	secretHash, err := password.Hash(password.Default, testSecret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	client := &core.RegisteredClient{
		ID:         uuid.NewString(),
		TenantID:   "t1",
		ClientID:   "client_web",
		Name:       "Web App",
		SecretHash: secretHash,
		GrantTypes: []string{
			core.GrantPassword, core.GrantAuthorizationCode,
			core.GrantClientCredentials, core.GrantRefreshToken,
		},
		RedirectURIs: []string{"https://app.acme.example.com/cb"},
		Scopes:       []string{"openid", "profile", "api.read"},
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := repo.Clients().Create(ctx, client); err != nil {
		t.Fatalf("seed client: %v", err)
	}

	pwHash, err := password.Hash(password.Default, testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &core.User{
		ID:           uuid.NewString(),
		TenantID:     "t1",
		Email:        "jo@acme.example.com",
		PasswordHash: pwHash,
		Roles:        []string{"member"},
		Status:       core.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Users().Create(ctx, user); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	svc := NewTokenService(TokenDeps{
		Repo:       repo,
		Issuer:     jwtx.NewIssuer("https://auth.acme.example.com", repo.Keys()),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	return &fixture{repo: repo, svc: svc, tenant: tenant, client: client, user: user}
}

func TestPasswordGrant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	resp, err := f.svc.ExchangePassword(ctx, PasswordRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Username: "jo@acme.example.com", Password: testPassword,
		Scope: "openid api.read",
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if resp.AccessToken == "" || resp.TokenType != "Bearer" {
		t.Fatalf("bad response: %+v", resp)
	}
	if resp.RefreshToken == "" {
		t.Fatal("missing refresh token")
	}
	if resp.IDToken == "" {
		t.Fatal("missing id token for openid scope")
	}
	if resp.TenantID != "t1" || resp.TenantDomain != "acme.example.com" {
		t.Fatalf("tenant fields: %s / %s", resp.TenantID, resp.TenantDomain)
	}
	if resp.ExpiresIn <= 0 || resp.ExpiresIn > 60 {
		t.Fatalf("expires_in = %d", resp.ExpiresIn)
	}

	// record is findable by both minted values
	rec, err := f.repo.Authorizations().FindByToken(ctx, resp.AccessToken, core.TokenKindAccessToken)
	if err != nil {
		t.Fatalf("record by access token: %v", err)
	}
	if rec.GrantType != core.GrantPassword || rec.PrincipalName != "jo@acme.example.com" {
		t.Fatalf("record: %+v", rec)
	}
	if _, err := f.repo.Authorizations().FindByToken(ctx, resp.RefreshToken, core.TokenKindRefreshToken); err != nil {
		t.Fatalf("record by refresh token: %v", err)
	}

	// last login was touched
	u, _ := f.repo.Users().GetByEmail(ctx, "t1", "jo@acme.example.com")
	if u.LastLoginAt == nil {
		t.Fatal("last login not recorded")
	}
}

func TestPasswordGrantBadCredentials(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// wrong password and unknown user fail identically
	_, err1 := f.svc.ExchangePassword(ctx, PasswordRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Username: "jo@acme.example.com", Password: "wrong",
	})
	_, err2 := f.svc.ExchangePassword(ctx, PasswordRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Username: "ghost@acme.example.com", Password: testPassword,
	})
	if err1 != ErrTokenInvalidGrant || err2 != ErrTokenInvalidGrant {
		t.Fatalf("err1=%v err2=%v, want invalid_grant for both", err1, err2)
	}
}

func TestPasswordGrantClientAuth(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.ExchangePassword(ctx, PasswordRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: "nope",
		Username: "jo@acme.example.com", Password: testPassword,
	})
	if err != ErrTokenInvalidClient {
		t.Fatalf("bad secret: %v", err)
	}

	_, err = f.svc.ExchangePassword(ctx, PasswordRequest{
		TenantID: "t1", ClientID: "ghost", ClientSecret: testSecret,
		Username: "jo@acme.example.com", Password: testPassword,
	})
	if err != ErrTokenInvalidClient {
		t.Fatalf("unknown client: %v", err)
	}

	// disabled clients vanish from the token path
	if err := f.repo.Clients().SetEnabled(ctx, "t1", "client_web", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	_, err = f.svc.ExchangePassword(ctx, PasswordRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Username: "jo@acme.example.com", Password: testPassword,
	})
	if err != ErrTokenInvalidClient {
		t.Fatalf("disabled client: %v", err)
	}
}

func TestPasswordGrantUnknownTenant(t *testing.T) {
	f := setup(t)
	_, err := f.svc.ExchangePassword(context.Background(), PasswordRequest{
		TenantID: "nope", ClientID: "client_web", ClientSecret: testSecret,
		Username: "jo@acme.example.com", Password: testPassword,
	})
	if err != ErrTokenTenantMissing {
		t.Fatalf("got %v, want tenant_missing", err)
	}
}

func TestPasswordGrantScopeNotAllowed(t *testing.T) {
	f := setup(t)
	_, err := f.svc.ExchangePassword(context.Background(), PasswordRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Username: "jo@acme.example.com", Password: testPassword,
		Scope: "admin.everything",
	})
	if err != ErrTokenInvalidRequest {
		t.Fatalf("got %v, want invalid_request", err)
	}
}

func TestClientCredentialsGrant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	resp, err := f.svc.ExchangeClientCredentials(ctx, ClientCredentialsRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Scope: "api.read",
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if resp.RefreshToken != "" {
		t.Fatal("machine grant must not issue a refresh token")
	}
	if resp.Scope != "api.read" {
		t.Fatalf("scope = %q", resp.Scope)
	}

	rec, err := f.repo.Authorizations().FindByToken(ctx, resp.AccessToken, core.TokenKindAccessToken)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.PrincipalName != "client_web" || rec.GrantType != core.GrantClientCredentials {
		t.Fatalf("record: %+v", rec)
	}
}

func TestClientCredentialsRequiresConfidential(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	pub := &core.RegisteredClient{
		ID: uuid.NewString(), TenantID: "t1", ClientID: "client_pub", Name: "SPA",
		GrantTypes: []string{core.GrantClientCredentials},
		Scopes:     []string{"api.read"},
		Enabled:    true,
		CreatedAt:  time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := f.repo.Clients().Create(ctx, pub); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := f.svc.ExchangeClientCredentials(ctx, ClientCredentialsRequest{
		TenantID: "t1", ClientID: "client_pub",
	})
	if err != ErrTokenInvalidClient {
		t.Fatalf("got %v, want invalid_client", err)
	}
}

// seedCode plants a consumed-or-not authorization record carrying a code.
func seedCode(t *testing.T, f *fixture, challenge, method string, exp time.Time) (string, *core.AuthorizationRecord) {
	t.Helper()
	code, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	now := time.Now().UTC()
	rec := &core.AuthorizationRecord{
		ID:                 uuid.NewString(),
		TenantID:           "t1",
		RegisteredClientID: f.client.ID,
		PrincipalName:      f.user.Email,
		GrantType:          core.GrantAuthorizationCode,
		Scopes:             []string{"openid", "profile"},
		Attributes: map[string]any{
			core.AttrState:       uuid.NewString(),
			core.AttrRedirectURI: "https://app.acme.example.com/cb",
		},
		Code: &core.AuthorizationCode{Value: code, IssuedAt: now, ExpiresAt: exp},
		CreatedAt: now,
	}
	if challenge != "" {
		rec.Attributes[core.AttrCodeChallenge] = challenge
		rec.Attributes[core.AttrCodeChallengeMethod] = method
	}
	if err := f.repo.Authorizations().Save(context.Background(), rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return code, rec
}

func TestAuthorizationCodeGrantWithPKCE(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := tokens.SHA256Base64URL(verifier)
	code, seeded := seedCode(t, f, challenge, "S256", time.Now().Add(5*time.Minute))

	resp, err := f.svc.ExchangeAuthorizationCode(ctx, AuthCodeRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Code: code, RedirectURI: "https://app.acme.example.com/cb",
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.IDToken == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}

	// tokens landed on the same record the code lived on
	rec, err := f.repo.Authorizations().FindByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.CodeConsumedAt == nil {
		t.Fatal("code not marked consumed")
	}
	if rec.AccessToken == nil || rec.AccessToken.Value != resp.AccessToken {
		t.Fatal("access token not attached to record")
	}

	// replay fails
	_, err = f.svc.ExchangeAuthorizationCode(ctx, AuthCodeRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Code: code, RedirectURI: "https://app.acme.example.com/cb",
		CodeVerifier: verifier,
	})
	if err != ErrTokenInvalidGrant {
		t.Fatalf("replay: got %v, want invalid_grant", err)
	}
}

func TestAuthorizationCodeGrantBadVerifier(t *testing.T) {
	f := setup(t)
	challenge := tokens.SHA256Base64URL("the-right-verifier-the-right-verifier")
	code, _ := seedCode(t, f, challenge, "S256", time.Now().Add(5*time.Minute))

	_, err := f.svc.ExchangeAuthorizationCode(context.Background(), AuthCodeRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Code: code, RedirectURI: "https://app.acme.example.com/cb",
		CodeVerifier: "the-wrong-verifier-the-wrong-verifier",
	})
	if err != ErrTokenInvalidGrant {
		t.Fatalf("got %v, want invalid_grant", err)
	}

	// a failed verification must not consume the code
	rec, ferr := f.repo.Authorizations().FindByToken(context.Background(), code, core.TokenKindCode)
	if ferr != nil {
		t.Fatalf("record: %v", ferr)
	}
	if rec.CodeConsumedAt != nil {
		t.Fatal("failed pkce consumed the code")
	}
}

func TestAuthorizationCodeGrantExpired(t *testing.T) {
	f := setup(t)
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code, _ := seedCode(t, f, tokens.SHA256Base64URL(verifier), "S256", time.Now().Add(-time.Minute))

	_, err := f.svc.ExchangeAuthorizationCode(context.Background(), AuthCodeRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Code: code, RedirectURI: "https://app.acme.example.com/cb",
		CodeVerifier: verifier,
	})
	if err != ErrTokenInvalidGrant {
		t.Fatalf("got %v, want invalid_grant", err)
	}
}

func TestAuthorizationCodeGrantRedirectMismatch(t *testing.T) {
	f := setup(t)
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	code, _ := seedCode(t, f, tokens.SHA256Base64URL(verifier), "S256", time.Now().Add(5*time.Minute))

	_, err := f.svc.ExchangeAuthorizationCode(context.Background(), AuthCodeRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Code: code, RedirectURI: "https://evil.example.com/cb",
		CodeVerifier: verifier,
	})
	if err != ErrTokenInvalidGrant {
		t.Fatalf("got %v, want invalid_grant", err)
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.ExchangePassword(ctx, PasswordRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Username: "jo@acme.example.com", Password: testPassword,
	})
	if err != nil {
		t.Fatalf("password: %v", err)
	}

	second, err := f.svc.ExchangeRefreshToken(ctx, RefreshTokenRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		RefreshToken: first.RefreshToken,
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == "" || second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// the replaced value is dead
	_, err = f.svc.ExchangeRefreshToken(ctx, RefreshTokenRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		RefreshToken: first.RefreshToken,
	})
	if err != ErrTokenInvalidGrant {
		t.Fatalf("replayed refresh: got %v, want invalid_grant", err)
	}
}

func TestRefreshTokenReuseMode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.client.ReuseRefreshTokens = true
	if err := f.repo.Clients().Update(ctx, f.client); err != nil {
		t.Fatalf("update client: %v", err)
	}

	first, err := f.svc.ExchangePassword(ctx, PasswordRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Username: "jo@acme.example.com", Password: testPassword,
	})
	if err != nil {
		t.Fatalf("password: %v", err)
	}

	second, err := f.svc.ExchangeRefreshToken(ctx, RefreshTokenRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		RefreshToken: first.RefreshToken,
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken != first.RefreshToken {
		t.Fatal("reuse mode rotated the refresh token")
	}
	if second.AccessToken == first.AccessToken {
		t.Fatal("access token was not reissued")
	}

	// same value keeps working
	if _, err := f.svc.ExchangeRefreshToken(ctx, RefreshTokenRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		RefreshToken: first.RefreshToken,
	}); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
}

func TestRefreshTokenScopeNarrowing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.ExchangePassword(ctx, PasswordRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Username: "jo@acme.example.com", Password: testPassword,
		Scope: "openid profile",
	})
	if err != nil {
		t.Fatalf("password: %v", err)
	}

	narrowed, err := f.svc.ExchangeRefreshToken(ctx, RefreshTokenRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		RefreshToken: first.RefreshToken, Scope: "profile",
	})
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}
	if narrowed.Scope != "profile" {
		t.Fatalf("scope = %q", narrowed.Scope)
	}

	// widening is rejected
	_, err = f.svc.ExchangeRefreshToken(ctx, RefreshTokenRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		RefreshToken: narrowed.RefreshToken, Scope: "openid profile api.read",
	})
	if err != ErrTokenInvalidRequest {
		t.Fatalf("widen: got %v, want invalid_request", err)
	}
}

func TestRefreshTokenExpired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.ExchangePassword(ctx, PasswordRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		Username: "jo@acme.example.com", Password: testPassword,
	})
	if err != nil {
		t.Fatalf("password: %v", err)
	}

	// back-date the refresh token; the record itself stays in the store
	rec, err := f.repo.Authorizations().FindByToken(ctx, first.RefreshToken, core.TokenKindRefreshToken)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	rec.RefreshToken.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	if err := f.repo.Authorizations().Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err = f.svc.ExchangeRefreshToken(ctx, RefreshTokenRequest{
		TenantID: "t1", ClientID: "client_web", ClientSecret: testSecret,
		RefreshToken: first.RefreshToken,
	})
	if err != ErrTokenInvalidGrant {
		t.Fatalf("expired refresh: got %v, want invalid_grant", err)
	}

	// expiry is a grant decision, not storage eviction
	if _, err := f.repo.Authorizations().FindByToken(ctx, first.RefreshToken, core.TokenKindRefreshToken); err != nil {
		t.Fatalf("expired record no longer retrievable: %v", err)
	}
}
