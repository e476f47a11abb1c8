package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/cache"
	"ekklesia.app/internal/members"
	"ekklesia.app/internal/policy"
	"ekklesia.app/internal/settings"
	"ekklesia.app/internal/tenant"
)

const testPassword = "correct-horse"

type memUsers struct {
	mu    sync.Mutex
	next  int64
	users map[int64]auth.User
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) CreateUser(_ context.Context, u auth.User) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, auth.ErrConflict
		}
	}
	m.next++
	u.ID = m.next
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	return &u, nil
}

func (m *memUsers) UpdateRole(_ context.Context, id int64, role auth.Role) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now()
	m.users[id] = u
	return &u, nil
}

func (m *memUsers) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type memTenants struct {
	mu      sync.Mutex
	next    int64
	tenants map[int64]tenant.Tenant
}

func (m *memTenants) ListTenants(context.Context) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tenant.Tenant, 0, len(m.tenants))
	for id := int64(1); id <= m.next; id++ {
		if t, ok := m.tenants[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTenants) GetTenant(_ context.Context, id int64) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return &t, nil
}

func (m *memTenants) CreateTenant(_ context.Context, t tenant.Tenant) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.Slug == t.Slug {
			return nil, tenant.ErrConflict
		}
	}
	m.next++
	t.ID = m.next
	m.tenants[t.ID] = t
	return &t, nil
}

func (m *memTenants) update(id int64, fn func(*tenant.Tenant)) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	fn(&t)
	m.tenants[id] = t
	return &t, nil
}

func (m *memTenants) UpdatePlan(_ context.Context, id int64, plan tenant.PlanKey) (*tenant.Tenant, error) {
	return m.update(id, func(t *tenant.Tenant) { t.Plan = plan })
}

func (m *memTenants) UpdateFeatures(_ context.Context, id int64, overrides map[string]any) (*tenant.Tenant, error) {
	return m.update(id, func(t *tenant.Tenant) { t.Features = overrides })
}

func (m *memTenants) UpdateStatus(_ context.Context, id int64, status tenant.Status) (*tenant.Tenant, error) {
	return m.update(id, func(t *tenant.Tenant) { t.Status = status })
}

type memSettings struct {
	mu   sync.Mutex
	rows map[string]settings.Setting
}

func (m *memSettings) GetSetting(_ context.Context, tenantID *int64, key string) (*settings.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[settings.CacheKey(tenantID, key)]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return &row, nil
}

func (m *memSettings) PutSetting(_ context.Context, tenantID *int64, key, value string) (*settings.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := settings.Setting{TenantID: tenantID, Key: key, Value: value, UpdatedAt: time.Now()}
	m.rows[settings.CacheKey(tenantID, key)] = row
	return &row, nil
}

type memMembers struct {
	mu   sync.Mutex
	rows []members.Member
}

func (m *memMembers) ListMembers(_ context.Context, tenantID int64, limit, offset int) ([]members.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []members.Member
	for _, row := range m.rows {
		if row.TenantID == tenantID {
			out = append(out, row)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMembers) CreateMember(_ context.Context, row members.Member) (*members.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row.ID = int64(len(m.rows) + 1)
	row.CreatedAt = time.Now()
	m.rows = append(m.rows, row)
	return &row, nil
}

// Fixture ids. Tenant 1 is a BASIC church; tenant 2 has members switched off.
const (
	graceChurch int64 = 1
	hopeChurch  int64 = 2

	superAdminID int64 = 1
	clerkID      int64 = 2
	providerID   int64 = 3
	adminID      int64 = 4
	hopeClerkID  int64 = 5
)

type fixture struct {
	api      *API
	handler  http.Handler
	tokens   *auth.Tokens
	settings *settings.Service
	users    *memUsers
	members  *memMembers
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	grace, hope := graceChurch, hopeChurch
	users := &memUsers{next: 5, users: map[int64]auth.User{
		superAdminID: {ID: superAdminID, TenantID: &grace, Name: "Ada", Email: "ada@grace.test", Role: auth.RoleSuperAdmin, PasswordHash: hash},
		clerkID:      {ID: clerkID, TenantID: &grace, Name: "Cole", Email: "clerk@grace.test", Role: auth.RoleClerk, PasswordHash: hash},
		providerID:   {ID: providerID, Name: "Pat", Email: "ops@provider.test", Role: auth.RoleProviderAdmin, PasswordHash: hash},
		adminID:      {ID: adminID, TenantID: &grace, Name: "Abe", Email: "abe@grace.test", Role: auth.RoleAdmin, PasswordHash: hash},
		hopeClerkID:  {ID: hopeClerkID, TenantID: &hope, Name: "Hal", Email: "clerk@hope.test", Role: auth.RoleClerk, PasswordHash: hash},
	}}
	tenants := &memTenants{next: 2, tenants: map[int64]tenant.Tenant{
		graceChurch: {ID: graceChurch, Name: "Grace", Slug: "grace", Plan: tenant.PlanBasic, Status: tenant.StatusActive, Features: map[string]any{}},
		hopeChurch:  {ID: hopeChurch, Name: "Hope", Slug: "hope", Plan: tenant.PlanPro, Status: tenant.StatusActive, Features: map[string]any{"members": false}},
	}}

	secrets, err := auth.ResolveSecrets("test-auth-secret", "", "")
	if err != nil {
		t.Fatalf("secrets: %v", err)
	}
	tokens, err := auth.NewTokens(secrets)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	creds := auth.NewCredentialCache(cache.WithTTL(time.Minute))
	tenantSvc, err := tenant.NewService(tenants)
	if err != nil {
		t.Fatalf("tenant service: %v", err)
	}
	accounts, err := auth.NewService(users, tokens, creds, auth.WithTenantStatus(tenantSvc))
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	settingSvc, err := settings.NewService(&memSettings{rows: map[string]settings.Setting{}}, settings.NewCache(cache.WithTTL(time.Minute)))
	if err != nil {
		t.Fatalf("settings service: %v", err)
	}
	memberStore := &memMembers{}
	memberSvc, err := members.NewService(memberStore)
	if err != nil {
		t.Fatalf("members service: %v", err)
	}

	deps := Deps{
		Authenticator: auth.NewAuthenticator(tokens, users, creds),
		Accounts:      accounts,
		Tokens:        tokens,
		Tenants:       tenantSvc,
		Settings:      settingSvc,
		Policy:        policy.NewEvaluator(settingSvc),
		Members:       memberSvc,
		Version:       "test",
		LoginBurst:    100,
		LoginRPS:      100,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	api, err := New(deps)
	if err != nil {
		t.Fatalf("new api: %v", err)
	}
	return &fixture{
		api:      api,
		handler:  api.Handler(),
		tokens:   tokens,
		settings: settingSvc,
		users:    users,
		members:  memberStore,
	}
}

// bearerFor signs an access token for a fixture user without going through login.
func (f *fixture) bearerFor(t *testing.T, userID int64) string {
	t.Helper()
	u, err := f.users.FindByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("find user %d: %v", userID, err)
	}
	token, _, err := f.tokens.IssueAccess(u.Identity())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (f *fixture) csrfFor(bearer string) string {
	return auth.CSRFToken(f.tokens.CSRFSecret(), bearer)
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// authHeaders returns bearer and CSRF headers for a user.
func (f *fixture) authHeaders(t *testing.T, userID int64) map[string]string {
	t.Helper()
	token := f.bearerFor(t, userID)
	return map[string]string{
		authHeader: "Bearer " + token,
		csrfHeader: f.csrfFor(token),
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}
