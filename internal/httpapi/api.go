package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/members"
	"ekklesia.app/internal/obs"
	"ekklesia.app/internal/policy"
	"ekklesia.app/internal/settings"
	"ekklesia.app/internal/tenant"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultLoginRPS     = 1.0
	defaultLoginBurst   = 5

	// purposeDeleteAccount is the re-authentication purpose for user deletion.
	purposeDeleteAccount = "delete-account"
)

// ReadyProbe checks that the database answers.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Authenticator *auth.Authenticator
	Accounts      *auth.Service
	Tokens        *auth.Tokens
	Tenants       *tenant.Service
	Settings      *settings.Service
	Policy        *policy.Evaluator
	Members       *members.Service
	Ready         ReadyProbe
	Version       string

	AllowedOrigins []string
	TrustedProxies []string
	MaxBodyBytes   int64
	LoginRPS       float64
	LoginBurst     int
}

// API is the HTTP layer.
type API struct {
	router   *mux.Router
	authn    *auth.Authenticator
	accounts *auth.Service
	tokens   *auth.Tokens
	tenants  *tenant.Service
	settings *settings.Service
	policy   *policy.Evaluator
	members  *members.Service
	ready    ReadyProbe
	version  string

	origins      []string
	proxies      TrustedProxies
	maxBodyBytes int64
	loginRPS     float64
	loginBurst   int
}

// New validates deps and registers every route.
func New(d Deps) (*API, error) {
	switch {
	case d.Authenticator == nil:
		return nil, errors.New("httpapi: authenticator is required")
	case d.Accounts == nil:
		return nil, errors.New("httpapi: account service is required")
	case d.Tokens == nil:
		return nil, errors.New("httpapi: tokens are required")
	case d.Tenants == nil:
		return nil, errors.New("httpapi: tenant service is required")
	case d.Settings == nil:
		return nil, errors.New("httpapi: settings service is required")
	case d.Policy == nil:
		return nil, errors.New("httpapi: policy evaluator is required")
	case d.Members == nil:
		return nil, errors.New("httpapi: members service is required")
	}
	a := &API{
		router:       mux.NewRouter(),
		authn:        d.Authenticator,
		accounts:     d.Accounts,
		tokens:       d.Tokens,
		tenants:      d.Tenants,
		settings:     d.Settings,
		policy:       d.Policy,
		members:      d.Members,
		ready:        d.Ready,
		version:      d.Version,
		origins:      d.AllowedOrigins,
		maxBodyBytes: d.MaxBodyBytes,
		loginRPS:     d.LoginRPS,
		loginBurst:   d.LoginBurst,
	}
	proxies, err := ParseTrustedProxies(d.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	a.proxies = proxies
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = defaultMaxBodyBytes
	}
	if a.loginRPS <= 0 {
		a.loginRPS = defaultLoginRPS
	}
	if a.loginBurst <= 0 {
		a.loginBurst = defaultLoginBurst
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		methodNotAllowed(w, req)
	})

	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyz).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	admins := []auth.Role{auth.RoleSuperAdmin, auth.RoleAdmin}

	r.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.login), a.loginBurst, a.loginRPS, a.proxies)).Methods(http.MethodPost)
	r.Handle("/v1/auth/me", a.guard(gates{noTenant: true}, a.me)).Methods(http.MethodGet)
	r.Handle("/v1/auth/csrf", a.guard(gates{noTenant: true}, a.csrf)).Methods(http.MethodGet)
	r.Handle("/v1/auth/reauth", a.guard(gates{noTenant: true, csrf: true}, a.reauth)).Methods(http.MethodPost)

	r.Handle("/v1/features", a.guard(gates{}, a.features)).Methods(http.MethodGet)

	r.Handle("/v1/settings", a.guard(gates{
		csrf: true, roles: admins, action: policy.ActionManageSettings,
	}, a.flushSettings)).Methods(http.MethodDelete)
	r.Handle("/v1/settings/{key}", a.guard(gates{}, a.getSetting)).Methods(http.MethodGet)
	r.Handle("/v1/settings/{key}", a.guard(gates{
		csrf: true, roles: admins, action: policy.ActionManageSettings,
	}, a.putSetting)).Methods(http.MethodPut)

	r.Handle("/v1/users", a.guard(gates{
		csrf: true, roles: admins, action: policy.ActionManageUsers,
	}, a.createUser)).Methods(http.MethodPost)
	r.Handle("/v1/users/{id}/role", a.guard(gates{
		csrf: true, roles: admins, action: policy.ActionManageUsers,
	}, a.changeRole)).Methods(http.MethodPut)
	r.Handle("/v1/users/{id}", a.guard(gates{
		csrf: true, reauth: purposeDeleteAccount, roles: admins, action: policy.ActionManageUsers,
	}, a.deleteUser)).Methods(http.MethodDelete)

	r.Handle("/v1/members", a.guard(gates{feature: tenant.FeatureMembers}, a.listMembers)).Methods(http.MethodGet)
	r.Handle("/v1/members", a.guard(gates{
		csrf: true, action: policy.ActionAddMembers, feature: tenant.FeatureMembers,
	}, a.createMember)).Methods(http.MethodPost)

	provider := []auth.Role{auth.RoleProviderAdmin}
	r.Handle("/v1/provider/tenants", a.guard(gates{roles: provider}, a.listTenants)).Methods(http.MethodGet)
	r.Handle("/v1/provider/tenants", a.guard(gates{csrf: true, roles: provider}, a.createTenant)).Methods(http.MethodPost)
	r.Handle("/v1/provider/tenants/{id}", a.guard(gates{roles: provider}, a.getTenant)).Methods(http.MethodGet)
	r.Handle("/v1/provider/tenants/{id}/plan", a.guard(gates{csrf: true, roles: provider}, a.setPlan)).Methods(http.MethodPut)
	r.Handle("/v1/provider/tenants/{id}/features", a.guard(gates{csrf: true, roles: provider}, a.setFeatures)).Methods(http.MethodPut)
	r.Handle("/v1/provider/tenants/{id}/status", a.guard(gates{csrf: true, roles: provider}, a.setStatus)).Methods(http.MethodPut)
}

// Handler returns the router wrapped with the ambient middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.router)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(a.origins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ekklesia-api",
		"version": a.version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "ekklesia-api",
		"version": a.version,
		"plans":   tenant.Plans(),
		"actions": policy.Actions(),
	})
}
