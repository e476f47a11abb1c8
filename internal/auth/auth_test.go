package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ekklesia.app/internal/cache"
)

type memUsers struct {
	mu      sync.Mutex
	users   map[int64]*User
	lookups int
}

func newMemUsers(users ...*User) *memUsers {
	m := &memUsers{users: make(map[int64]*User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) CreateUser(_ context.Context, u User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, ErrConflict
		}
	}
	u.ID = int64(len(m.users) + 100)
	m.users[u.ID] = &u
	cp := u
	return &cp, nil
}

func (m *memUsers) UpdateRole(_ context.Context, id int64, role Role) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

func (m *memUsers) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type suspendedTenants map[int64]bool

func (s suspendedTenants) IsSuspended(_ context.Context, id int64) (bool, error) {
	return s[id], nil
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func tenantPtr(v int64) *int64 { return &v }

func newTestTokens(t *testing.T, now *time.Time, auth, csrf, reauth string) *Tokens {
	t.Helper()
	secrets, err := ResolveSecrets(auth, csrf, reauth)
	if err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	tokens, err := NewTokens(secrets, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	return tokens
}

func TestResolveSecretsFallback(t *testing.T) {
	s, err := ResolveSecrets("main", "", "  ")
	if err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	if string(s.CSRF) != "main" || string(s.Reauth) != "main" {
		t.Fatalf("expected fallback to auth secret, got csrf=%q reauth=%q", s.CSRF, s.Reauth)
	}
	s, err = ResolveSecrets("main", "csrf", "reauth")
	if err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	if string(s.CSRF) != "csrf" || string(s.Reauth) != "reauth" {
		t.Fatalf("dedicated secrets were not kept: %+v", s)
	}
	if _, err := ResolveSecrets(" ", "csrf", "reauth"); err == nil {
		t.Fatalf("expected missing auth secret to fail")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	now := testNow
	tokens := newTestTokens(t, &now, "secret", "", "")

	id := Identity{ID: 42, Role: RoleClerk, Name: "Ruth", Email: "ruth@example.org", TenantID: tenantPtr(7)}
	token, exp, err := tokens.IssueAccess(id)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if want := now.Add(8 * time.Hour); !exp.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, exp)
	}

	claims, err := tokens.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.UserID != 42 || claims.Role != RoleClerk || claims.Email != "ruth@example.org" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.TenantID == nil || *claims.TenantID != 7 {
		t.Fatalf("tenant claim not preserved: %v", claims.TenantID)
	}
	if claims.Subject != "42" || claims.Issuer != "ekklesia" || claims.ID == "" {
		t.Fatalf("registered claims incomplete: %+v", claims.RegisteredClaims)
	}
}

func TestParseAccessRejects(t *testing.T) {
	now := testNow
	tokens := newTestTokens(t, &now, "secret", "", "")
	other := newTestTokens(t, &now, "other-secret", "", "")

	token, _, err := tokens.IssueAccess(Identity{ID: 1, Role: RoleAdmin, TenantID: tenantPtr(1)})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	forged, _, err := other.IssueAccess(Identity{ID: 1, Role: RoleSuperAdmin, TenantID: tenantPtr(1)})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	reauth, _, err := tokens.IssueReauth(1, "delete-account")
	if err != nil {
		t.Fatalf("IssueReauth: %v", err)
	}

	cases := map[string]string{
		"empty":          "",
		"malformed":      "not-a-jwt",
		"wrong secret":   forged,
		"reauth as auth": reauth,
		"tampered":       token[:len(token)-2] + "xx",
	}
	for name, tok := range cases {
		if _, err := tokens.ParseAccess(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}

	now = now.Add(8*time.Hour + time.Second)
	if _, err := tokens.ParseAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestReauthToken(t *testing.T) {
	now := testNow
	tokens := newTestTokens(t, &now, "secret", "", "reauth-secret")

	token, exp, err := tokens.IssueReauth(5, "delete-account")
	if err != nil {
		t.Fatalf("IssueReauth: %v", err)
	}
	if want := now.Add(5 * time.Minute); !exp.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, exp)
	}
	if err := tokens.VerifyReauth(token, "delete-account", 5); err != nil {
		t.Fatalf("VerifyReauth: %v", err)
	}

	checks := []struct {
		name    string
		token   string
		purpose string
		user    int64
	}{
		{"empty", "", "delete-account", 5},
		{"wrong purpose", token, "change-email", 5},
		{"wrong user", token, "delete-account", 6},
		{"garbage", "abc.def.ghi", "delete-account", 5},
	}
	for _, c := range checks {
		if err := tokens.VerifyReauth(c.token, c.purpose, c.user); !errors.Is(err, ErrReauthRequired) {
			t.Fatalf("%s: expected ErrReauthRequired, got %v", c.name, err)
		}
	}

	access, _, err := tokens.IssueAccess(Identity{ID: 5, Role: RoleAdmin, TenantID: tenantPtr(1)})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if err := tokens.VerifyReauth(access, "delete-account", 5); !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("access token must not pass as reauth token, got %v", err)
	}

	now = now.Add(5*time.Minute + time.Second)
	if err := tokens.VerifyReauth(token, "delete-account", 5); !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("expected expired reauth token to fail, got %v", err)
	}
}

func TestCSRFRoundTrip(t *testing.T) {
	secret := []byte("csrf-secret")
	bearer := "header.payload.signature"
	csrf := CSRFToken(secret, bearer)
	if len(csrf) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(csrf))
	}
	if !VerifyCSRF(secret, bearer, csrf) {
		t.Fatalf("expected csrf to verify")
	}

	flipped := []byte(csrf)
	if flipped[0] == '0' {
		flipped[0] = '1'
	} else {
		flipped[0] = '0'
	}
	if VerifyCSRF(secret, bearer, string(flipped)) {
		t.Fatalf("flipped csrf must not verify")
	}
	if VerifyCSRF(secret, "other.bearer.token", csrf) {
		t.Fatalf("csrf bound to another bearer must not verify")
	}
	if VerifyCSRF(secret, bearer, csrf[:10]) {
		t.Fatalf("short csrf must not verify")
	}
	if VerifyCSRF([]byte("other"), bearer, csrf) {
		t.Fatalf("csrf derived with another secret must not verify")
	}
}

func TestAuthenticatorCachesIdentity(t *testing.T) {
	now := testNow
	tokens := newTestTokens(t, &now, "secret", "", "")
	users := newMemUsers(&User{ID: 3, TenantID: tenantPtr(7), Name: "Lydia", Email: "lydia@example.org", Role: RoleClerk, UpdatedAt: now})
	creds := NewCredentialCache(cache.WithTTL(30*time.Second), cache.WithClock(func() time.Time { return now }))
	authn := NewAuthenticator(tokens, users, creds)

	token, _, err := tokens.IssueAccess(Identity{ID: 3, Role: RoleClerk, TenantID: tenantPtr(7)})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	for i := 0; i < 3; i++ {
		id, err := authn.Authenticate(context.Background(), token)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if id.Name != "Lydia" || id.TenantID == nil || *id.TenantID != 7 {
			t.Fatalf("unexpected identity: %+v", id)
		}
	}
	if users.lookups != 1 {
		t.Fatalf("expected a single storage read, got %d", users.lookups)
	}
	entry, ok := creds.Lookup(3)
	if !ok || !entry.SourceVersion.Equal(now) {
		t.Fatalf("expected source version to be recorded, got %+v ok=%v", entry, ok)
	}

	now = now.Add(31 * time.Second)
	if _, err := authn.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("Authenticate after expiry: %v", err)
	}
	if users.lookups != 2 {
		t.Fatalf("expected expired entry to trigger a reload, got %d reads", users.lookups)
	}
}

func TestAuthenticatorRejectsDeletedUser(t *testing.T) {
	now := testNow
	tokens := newTestTokens(t, &now, "secret", "", "")
	authn := NewAuthenticator(tokens, newMemUsers(), NewCredentialCache())

	token, _, err := tokens.IssueAccess(Identity{ID: 99, Role: RoleMember, TenantID: tenantPtr(1)})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := authn.Authenticate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := authn.Authenticate(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestServiceLogin(t *testing.T) {
	now := testNow
	tokens := newTestTokens(t, &now, "secret", "csrf-secret", "")
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	users := newMemUsers(
		&User{ID: 1, TenantID: tenantPtr(7), Name: "Priscilla", Email: "pris@example.org", Role: RoleAdmin, PasswordHash: hash},
		&User{ID: 2, TenantID: tenantPtr(8), Name: "Aquila", Email: "aquila@example.org", Role: RoleAdmin, PasswordHash: hash},
	)
	svc, err := NewService(users, tokens, NewCredentialCache(), WithTenantStatus(suspendedTenants{8: true}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	session, err := svc.Login(context.Background(), " PRIS@example.org ", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !session.ExpiresAt.Equal(now.Add(8 * time.Hour)) {
		t.Fatalf("unexpected expiry: %v", session.ExpiresAt)
	}
	if !VerifyCSRF([]byte("csrf-secret"), session.Token, session.CSRFToken) {
		t.Fatalf("session csrf must be derived with the csrf secret")
	}
	if session.User.ID != 1 || session.User.Role != RoleAdmin {
		t.Fatalf("unexpected session user: %+v", session.User)
	}

	if _, err := svc.Login(context.Background(), "pris@example.org", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong password, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody@example.org", "correct horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown user, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "aquila@example.org", "correct horse"); !errors.Is(err, ErrTenantSuspended) {
		t.Fatalf("expected ErrTenantSuspended, got %v", err)
	}
}

func TestServiceMutationsInvalidateCredentials(t *testing.T) {
	now := testNow
	tokens := newTestTokens(t, &now, "secret", "", "")
	users := newMemUsers(&User{ID: 4, TenantID: tenantPtr(7), Role: RoleClerk})
	creds := NewCredentialCache(cache.WithTTL(time.Minute), cache.WithClock(func() time.Time { return now }))
	svc, err := NewService(users, tokens, creds)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	creds.Put(4, Identity{ID: 4, Role: RoleClerk, TenantID: tenantPtr(7)}, now)
	if _, err := svc.ChangeRole(context.Background(), 8, 4, RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cross-tenant role change to be hidden, got %v", err)
	}
	if _, err := svc.ChangeRole(context.Background(), 7, 4, RoleProviderAdmin); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected provider role to be refused, got %v", err)
	}
	if _, ok := creds.Get(4); !ok {
		t.Fatalf("rejected mutations must not touch the cache")
	}

	updated, err := svc.ChangeRole(context.Background(), 7, 4, RoleAdmin)
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if updated.Role != RoleAdmin {
		t.Fatalf("unexpected role: %s", updated.Role)
	}
	if _, ok := creds.Get(4); ok {
		t.Fatalf("role change must invalidate the cached identity")
	}

	creds.Put(4, Identity{ID: 4, Role: RoleAdmin, TenantID: tenantPtr(7)}, now)
	if err := svc.DeleteUser(context.Background(), 7, 4); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, ok := creds.Get(4); ok {
		t.Fatalf("deletion must invalidate the cached identity")
	}
}

func TestReauthenticate(t *testing.T) {
	now := testNow
	tokens := newTestTokens(t, &now, "secret", "", "")
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	users := newMemUsers(&User{ID: 9, TenantID: tenantPtr(1), Role: RoleAdmin, PasswordHash: hash})
	svc, err := NewService(users, tokens, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	id := Identity{ID: 9, Role: RoleAdmin, TenantID: tenantPtr(1)}

	if _, _, err := svc.Reauthenticate(context.Background(), id, "nope", "delete-account"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	token, _, err := svc.Reauthenticate(context.Background(), id, "correct horse", "delete-account")
	if err != nil {
		t.Fatalf("Reauthenticate: %v", err)
	}
	if err := tokens.VerifyReauth(token, "delete-account", 9); err != nil {
		t.Fatalf("VerifyReauth: %v", err)
	}
}

func TestRegister(t *testing.T) {
	now := testNow
	tokens := newTestTokens(t, &now, "secret", "", "")
	users := newMemUsers()
	svc, err := NewService(users, tokens, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	u, err := svc.Register(ctx, NewUser{TenantID: tenantPtr(3), Name: "Joanna", Email: "Joanna@Example.org", Password: "long enough", Role: "super_admin"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "joanna@example.org" || u.Role != RoleSuperAdmin || u.PasswordHash == "long enough" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, err := svc.Register(ctx, NewUser{TenantID: tenantPtr(3), Name: "Joanna", Email: "joanna@example.org", Password: "long enough", Role: RoleAdmin}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := svc.Register(ctx, NewUser{Name: "Susanna", Email: "s@example.org", Password: "long enough", Role: RoleAdmin}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("tenant-bound role without tenant must fail, got %v", err)
	}
	if _, err := svc.Register(ctx, NewUser{TenantID: tenantPtr(3), Name: "Root", Email: "r@example.org", Password: "long enough", Role: RoleProviderAdmin}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("provider admin inside a tenant must fail, got %v", err)
	}
}

func TestHashPasswordTooShort(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := IdentityFromContext(ctx); ok {
		t.Fatalf("empty context must not carry an identity")
	}
	ctx = ContextWithIdentity(ctx, Identity{ID: 7, Role: RolePastor})
	id, ok := IdentityFromContext(ctx)
	if !ok || id.ID != 7 || id.Role != RolePastor {
		t.Fatalf("unexpected identity: %+v ok=%v", id, ok)
	}

	if _, resolved := TenantFromContext(ctx); resolved {
		t.Fatalf("tenant must not be resolved yet")
	}
	tenant := int64(11)
	ctx = ContextWithTenant(ctx, &tenant)
	tenant = 12
	got, resolved := TenantFromContext(ctx)
	if !resolved || got == nil || *got != 11 {
		t.Fatalf("expected copied tenant 11, got %v resolved=%v", got, resolved)
	}
	ctx = ContextWithTenant(ctx, nil)
	if got, resolved := TenantFromContext(ctx); !resolved || got != nil {
		t.Fatalf("expected resolved nil tenant, got %v resolved=%v", got, resolved)
	}

	ctx = ContextWithToken(ctx, "abc")
	if tok, ok := TokenFromContext(ctx); !ok || tok != "abc" {
		t.Fatalf("unexpected token %q", tok)
	}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" clerk ")
	if !ok || r != RoleClerk {
		t.Fatalf("expected CLERK, got %q ok=%v", r, ok)
	}
	if _, ok := ParseRole("bishop"); ok {
		t.Fatalf("unknown role must not parse")
	}
	if Role("clerk").Valid() {
		t.Fatalf("Valid must be exact")
	}
	if !RoleSuperAdmin.BypassesPolicy() || RoleAdmin.BypassesPolicy() || RoleProviderAdmin.BypassesPolicy() {
		t.Fatalf("only SUPER_ADMIN bypasses the policy")
	}
	if RoleProviderAdmin.TenantBound() || !RoleMember.TenantBound() {
		t.Fatalf("only PROVIDER_ADMIN operates outside a tenant")
	}
}
