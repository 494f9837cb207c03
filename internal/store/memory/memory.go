// Package memory is the in-process Repository used for development and
// tests. Everything lives behind one mutex per sub-store; copies go in and
// out so callers never alias internal state.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/authplane/authplane/internal/store/core"
)

type Store struct {
	clients *clientRepo
	authz   *authzStore
	tenants *tenantRepo
	users   *userRepo
	keys    *keyRepo
}

func New() *Store {
	return &Store{
		clients: &clientRepo{byKey: map[string]*core.RegisteredClient{}},
		authz:   newAuthzStore(),
		tenants: &tenantRepo{byID: map[string]*core.Tenant{}},
		users:   &userRepo{byID: map[string]*core.User{}},
		keys:    &keyRepo{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close()                     {}

func (s *Store) Clients() core.ClientRepository          { return s.clients }
func (s *Store) Authorizations() core.AuthorizationStore { return s.authz }
func (s *Store) Tenants() core.TenantRepository          { return s.tenants }
func (s *Store) Users() core.UserRepository              { return s.users }
func (s *Store) Keys() core.KeyRepository                { return s.keys }

// ----- clients -----

type clientRepo struct {
	mu    sync.RWMutex
	byKey map[string]*core.RegisteredClient // tenantID + "\x00" + clientID
}

func clientKey(tenantID, clientID string) string {
	return tenantID + "\x00" + clientID
}

func (r *clientRepo) GetByClientID(_ context.Context, tenantID, clientID string) (*core.RegisteredClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[clientKey(tenantID, clientID)]
	if !ok || !c.Enabled {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *clientRepo) GetAny(_ context.Context, tenantID, clientID string) (*core.RegisteredClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[clientKey(tenantID, clientID)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *clientRepo) Create(_ context.Context, c *core.RegisteredClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := clientKey(c.TenantID, c.ClientID)
	if _, ok := r.byKey[key]; ok {
		return core.ErrConflict
	}
	cp := *c
	r.byKey[key] = &cp
	return nil
}

func (r *clientRepo) Update(_ context.Context, c *core.RegisteredClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := clientKey(c.TenantID, c.ClientID)
	if _, ok := r.byKey[key]; !ok {
		return core.ErrNotFound
	}
	cp := *c
	r.byKey[key] = &cp
	return nil
}

func (r *clientRepo) SetEnabled(_ context.Context, tenantID, clientID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byKey[clientKey(tenantID, clientID)]
	if !ok {
		return core.ErrNotFound
	}
	c.Enabled = enabled
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *clientRepo) Delete(_ context.Context, tenantID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := clientKey(tenantID, clientID)
	if _, ok := r.byKey[key]; !ok {
		return core.ErrNotFound
	}
	delete(r.byKey, key)
	return nil
}

func (r *clientRepo) List(_ context.Context, tenantID string, page, size int) ([]core.RegisteredClient, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []core.RegisteredClient
	for key, c := range r.byKey {
		if strings.HasPrefix(key, tenantID+"\x00") {
			all = append(all, *c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := len(all)
	start := (page - 1) * size
	if start >= total {
		return []core.RegisteredClient{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// ----- authorizations -----

type authzStore struct {
	mu      sync.Mutex
	byID    map[string]*core.AuthorizationRecord
	byValue map[string]string // token value -> record id, across all kinds
}

func newAuthzStore() *authzStore {
	return &authzStore{
		byID:    map[string]*core.AuthorizationRecord{},
		byValue: map[string]string{},
	}
}

// values returns every lookup value the record currently owns.
func values(rec *core.AuthorizationRecord) []string {
	var vs []string
	if s := rec.State(); s != "" {
		vs = append(vs, s)
	}
	if rec.Code != nil && rec.Code.Value != "" {
		vs = append(vs, rec.Code.Value)
	}
	if rec.AccessToken != nil && rec.AccessToken.Value != "" {
		vs = append(vs, rec.AccessToken.Value)
	}
	if rec.RefreshToken != nil && rec.RefreshToken.Value != "" {
		vs = append(vs, rec.RefreshToken.Value)
	}
	if rec.IDToken != nil && rec.IDToken.Value != "" {
		vs = append(vs, rec.IDToken.Value)
	}
	return vs
}

func matchesKind(rec *core.AuthorizationRecord, value string, kind core.TokenKind) bool {
	switch kind {
	case core.TokenKindState:
		return rec.State() == value
	case core.TokenKindCode:
		return rec.Code != nil && rec.Code.Value == value
	case core.TokenKindAccessToken:
		return rec.AccessToken != nil && rec.AccessToken.Value == value
	case core.TokenKindRefreshToken:
		return rec.RefreshToken != nil && rec.RefreshToken.Value == value
	case core.TokenKindIDToken:
		return rec.IDToken != nil && rec.IDToken.Value == value
	default:
		for _, v := range values(rec) {
			if v == value {
				return true
			}
		}
		return false
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// copyRecord deep-copies the record including every nested map and slice.
// NormalizePKCE writes into Attributes and Code.Metadata on load, so a
// shallow copy would let one caller's lookup mutate memory another caller
// already holds.
func copyRecord(rec *core.AuthorizationRecord) *core.AuthorizationRecord {
	cp := *rec
	cp.Scopes = copyStrings(rec.Scopes)
	cp.Attributes = copyMap(rec.Attributes)
	if rec.Code != nil {
		c := *rec.Code
		c.Metadata = copyMap(rec.Code.Metadata)
		cp.Code = &c
	}
	if rec.AccessToken != nil {
		a := *rec.AccessToken
		a.Scopes = copyStrings(rec.AccessToken.Scopes)
		a.Metadata = copyMap(rec.AccessToken.Metadata)
		cp.AccessToken = &a
	}
	if rec.RefreshToken != nil {
		rt := *rec.RefreshToken
		rt.Metadata = copyMap(rec.RefreshToken.Metadata)
		cp.RefreshToken = &rt
	}
	if rec.IDToken != nil {
		it := *rec.IDToken
		it.Claims = copyMap(rec.IDToken.Claims)
		it.Metadata = copyMap(rec.IDToken.Metadata)
		cp.IDToken = &it
	}
	if rec.CodeConsumedAt != nil {
		t := *rec.CodeConsumedAt
		cp.CodeConsumedAt = &t
	}
	return &cp
}

func (s *authzStore) Save(_ context.Context, rec *core.AuthorizationRecord) error {
	if rec.ID == "" {
		return core.ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.NormalizePKCE()

	// drop previous lookup values for this record before re-indexing
	if prev, ok := s.byID[rec.ID]; ok {
		for _, v := range values(prev) {
			delete(s.byValue, v)
		}
	}

	cp := copyRecord(rec)
	cp.UpdatedAt = time.Now().UTC()
	s.byID[cp.ID] = cp
	for _, v := range values(cp) {
		s.byValue[v] = cp.ID
	}
	return nil
}

func (s *authzStore) FindByID(_ context.Context, id string) (*core.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := copyRecord(rec)
	out.NormalizePKCE()
	return out, nil
}

func (s *authzStore) FindByToken(_ context.Context, value string, kind core.TokenKind) (*core.AuthorizationRecord, error) {
	if value == "" {
		return nil, core.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byValue[value]
	if !ok {
		return nil, core.ErrNotFound
	}
	rec := s.byID[id]
	if rec == nil || !matchesKind(rec, value, kind) {
		return nil, core.ErrNotFound
	}
	out := copyRecord(rec)
	out.NormalizePKCE()
	return out, nil
}

func (s *authzStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return core.ErrNotFound
	}
	for _, v := range values(rec) {
		delete(s.byValue, v)
	}
	delete(s.byID, id)
	return nil
}

func (s *authzStore) ConsumeCode(_ context.Context, codeValue string) (bool, error) {
	if codeValue == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byValue[codeValue]
	if !ok {
		return false, nil
	}
	rec := s.byID[id]
	if rec == nil || rec.Code == nil || rec.Code.Value != codeValue {
		return false, nil
	}
	if rec.CodeConsumedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	rec.CodeConsumedAt = &now
	rec.UpdatedAt = now
	return true, nil
}

func (s *authzStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := func(exp time.Time) bool { return !exp.IsZero() && exp.Before(now) }
	var purged int
	for id, rec := range s.byID {
		live := false
		if rec.Code != nil && !expired(rec.Code.ExpiresAt) {
			live = true
		}
		if rec.AccessToken != nil && !expired(rec.AccessToken.ExpiresAt) {
			live = true
		}
		if rec.RefreshToken != nil && !expired(rec.RefreshToken.ExpiresAt) {
			live = true
		}
		if rec.IDToken != nil && !expired(rec.IDToken.ExpiresAt) {
			live = true
		}
		if rec.Code == nil && rec.AccessToken == nil && rec.RefreshToken == nil && rec.IDToken == nil {
			// state-only records are kept; nothing to expire
			live = true
		}
		if live {
			continue
		}
		for _, v := range values(rec) {
			delete(s.byValue, v)
		}
		delete(s.byID, id)
		purged++
	}
	return purged, nil
}

// ----- tenants -----

type tenantRepo struct {
	mu   sync.RWMutex
	byID map[string]*core.Tenant
}

func (r *tenantRepo) Create(_ context.Context, t *core.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[t.ID]; ok {
		return core.ErrConflict
	}
	for _, ex := range r.byID {
		if strings.EqualFold(ex.Domain, t.Domain) || strings.EqualFold(ex.Name, t.Name) {
			return core.ErrConflict
		}
	}
	cp := *t
	r.byID[t.ID] = &cp
	return nil
}

func (r *tenantRepo) GetByID(_ context.Context, id string) (*core.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *tenantRepo) GetByDomain(_ context.Context, domain string) (*core.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.byID {
		if strings.EqualFold(t.Domain, domain) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *tenantRepo) ExistsByDomain(_ context.Context, domain string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.byID {
		if strings.EqualFold(t.Domain, domain) {
			return true, nil
		}
	}
	return false, nil
}

func (r *tenantRepo) ExistsByName(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.byID {
		if strings.EqualFold(t.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

// ----- users -----

type userRepo struct {
	mu   sync.RWMutex
	byID map[string]*core.User
}

func (r *userRepo) GetByEmail(_ context.Context, tenantID, email string) (*core.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *userRepo) Create(_ context.Context, u *core.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[u.ID]; ok {
		return core.ErrConflict
	}
	for _, ex := range r.byID {
		if ex.TenantID == u.TenantID && strings.EqualFold(ex.Email, u.Email) {
			return core.ErrConflict
		}
	}
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *userRepo) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return core.ErrNotFound
	}
	t := at.UTC()
	u.LastLoginAt = &t
	return nil
}

// ----- keys -----

type keyRepo struct {
	mu   sync.Mutex
	keys []*core.TenantKey
}

func (r *keyRepo) Create(_ context.Context, k *core.TenantKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.keys {
		if ex.TenantID == k.TenantID && ex.KID == k.KID {
			return core.ErrConflict
		}
	}
	cp := *k
	r.keys = append(r.keys, &cp)
	return nil
}

func (r *keyRepo) ActiveForTenant(_ context.Context, tenantID string) (*core.TenantKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.TenantID == tenantID && k.Active {
			cp := *k
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *keyRepo) ByKID(_ context.Context, tenantID, kid string) (*core.TenantKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.TenantID == tenantID && k.KID == kid {
			cp := *k
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *keyRepo) Activate(_ context.Context, tenantID, kid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for _, k := range r.keys {
		if k.TenantID == tenantID {
			k.Active = k.KID == kid
			if k.Active {
				found = true
			}
		}
	}
	if !found {
		return core.ErrNotFound
	}
	return nil
}
