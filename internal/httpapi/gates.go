package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/obs"
	"ekklesia.app/internal/policy"
	"ekklesia.app/internal/tenant"
)

const (
	authHeader   = "Authorization"
	csrfHeader   = "X-CSRF-Token"
	reauthHeader = "X-Reauth-Token"
	tenantHeader = "X-Tenant-Id"
	bearer       = "Bearer "

	providerPrefix = "/v1/provider/"
)

// gates selects the checks a route runs. guard applies them in one fixed
// order: authentication, tenant context, CSRF, re-authentication, role,
// permission, feature.
type gates struct {
	noTenant bool
	csrf     bool
	reauth   string
	roles    []auth.Role
	action   policy.Action
	feature  tenant.FeatureKey
}

func (a *API) guard(g gates, h http.HandlerFunc) http.Handler {
	var next http.Handler = h
	if g.feature != "" {
		next = a.requireFeature(g.feature)(next)
	}
	if g.action != "" {
		next = a.requirePermission(g.action)(next)
	}
	if len(g.roles) > 0 {
		next = requireRole(g.roles...)(next)
	}
	if g.reauth != "" {
		next = a.requireReauth(g.reauth)(next)
	}
	if g.csrf {
		next = a.requireCSRF(next)
	}
	if !g.noTenant {
		next = resolveTenant(next)
	}
	return a.authenticate(next)
}

func reject(w http.ResponseWriter, r *http.Request, gate string, status int, code, msg string) {
	obs.GateRejection(gate)
	writeError(w, r, status, code, msg)
}

// authenticate attaches the caller's identity and raw token to the context.
// The Authorization header is preferred; ?token= serves clients that cannot
// set headers (downloads, event streams).
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if token == "" {
			reject(w, r, "authentication", http.StatusUnauthorized, codeUnauthenticated, "authentication required")
			return
		}

		id, err := a.authn.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUnauthenticated):
				reject(w, r, "authentication", http.StatusUnauthorized, codeUnauthenticated, "authentication required")
			case errors.Is(err, auth.ErrInvalidToken):
				reject(w, r, "authentication", http.StatusUnauthorized, codeInvalidCredential, "invalid token")
			default:
				writeDomainError(w, r, err)
			}
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), id)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveTenant fixes the tenant the request acts within. A tenant-bound
// identity always wins over the header.
func resolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			reject(w, r, "tenant", http.StatusUnauthorized, codeUnauthenticated, "authentication required")
			return
		}
		tenantID := id.TenantID
		if tenantID == nil {
			tenantID = tenantFromHeader(r.Header.Get(tenantHeader))
		}
		if tenantID == nil && !isProviderPath(r.URL.Path) {
			reject(w, r, "tenant", http.StatusBadRequest, codeTenantContextRequired, "tenant context required")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithTenant(r.Context(), tenantID)))
	})
}

// requireCSRF checks X-CSRF-Token against the token derived from the bearer.
// Safe methods pass through.
func (a *API) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			reject(w, r, "csrf", http.StatusUnauthorized, codeUnauthenticated, "authentication required")
			return
		}
		if !auth.VerifyCSRF(a.tokens.CSRFSecret(), token, r.Header.Get(csrfHeader)) {
			reject(w, r, "csrf", http.StatusForbidden, codeForbidden, "invalid CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireReauth demands a fresh re-authentication token issued for purpose
// to the current identity.
func (a *API) requireReauth(purpose string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				reject(w, r, "reauth", http.StatusUnauthorized, codeUnauthenticated, "authentication required")
				return
			}
			token := strings.TrimSpace(r.Header.Get(reauthHeader))
			if token == "" {
				reject(w, r, "reauth", http.StatusUnauthorized, codeReauthRequired, "re-authentication required")
				return
			}
			if err := a.tokens.VerifyReauth(token, purpose, id.ID); err != nil {
				reject(w, r, "reauth", http.StatusForbidden, codeReauthRequired, "re-authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	allowed := make(map[auth.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				reject(w, r, "role", http.StatusUnauthorized, codeUnauthenticated, "authentication required")
				return
			}
			if _, ok := allowed[id.Role]; !ok {
				reject(w, r, "role", http.StatusForbidden, codeForbidden, "your role cannot access this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requirePermission consults the tenant's role_permissions document.
func (a *API) requirePermission(action policy.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				reject(w, r, "permission", http.StatusUnauthorized, codeUnauthenticated, "authentication required")
				return
			}
			tenantID, _ := auth.TenantFromContext(r.Context())
			d := a.policy.Evaluate(r.Context(), id, tenantID, action)
			if !d.Allowed {
				reject(w, r, "permission", http.StatusForbidden, codePermissionDenied, d.Message())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireFeature loads the acting tenant and checks its resolved feature set.
func (a *API) requireFeature(key tenant.FeatureKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, _ := auth.TenantFromContext(r.Context())
			if tenantID == nil {
				reject(w, r, "feature", http.StatusForbidden, codeFeatureDisabled, featureMessage(key))
				return
			}
			fs, err := a.tenants.Features(r.Context(), *tenantID)
			switch {
			case errors.Is(err, tenant.ErrNotFound):
				reject(w, r, "feature", http.StatusForbidden, codeFeatureDisabled, featureMessage(key))
				return
			case err != nil:
				writeDomainError(w, r, err)
				return
			}
			if !fs.Enabled(key) {
				reject(w, r, "feature", http.StatusForbidden, codeFeatureDisabled, featureMessage(key))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func featureMessage(key tenant.FeatureKey) string {
	return fmt.Sprintf("feature %s is disabled for this church", key)
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}

func tenantFromHeader(raw string) *int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func isProviderPath(path string) bool {
	return path == strings.TrimSuffix(providerPrefix, "/") || strings.HasPrefix(path, providerPrefix)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
