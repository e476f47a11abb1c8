package auth

import "context"

type identityContextKey struct{}
type tokenContextKey struct{}
type tenantContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

type tenantScope struct {
	id *int64
}

// ContextWithTenant records the resolved tenant. A nil id means the request
// runs outside any tenant.
func ContextWithTenant(ctx context.Context, tenantID *int64) context.Context {
	var copied *int64
	if tenantID != nil {
		v := *tenantID
		copied = &v
	}
	return context.WithValue(ctx, tenantContextKey{}, tenantScope{id: copied})
}

// TenantFromContext returns the resolved tenant id. The second result reports
// whether tenant resolution ran at all; the id itself may still be nil.
func TenantFromContext(ctx context.Context) (*int64, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(tenantContextKey{}).(tenantScope)
	if !ok {
		return nil, false
	}
	if v.id == nil {
		return nil, true
	}
	id := *v.id
	return &id, true
}
