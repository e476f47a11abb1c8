package auth

import (
	"context"
	"errors"
	"fmt"
)

// UserFinder is the single read the authentication gate needs.
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*User, error)
}

// Authenticator turns a bearer token into a request identity.
type Authenticator struct {
	tokens *Tokens
	users  UserFinder
	cache  *CredentialCache
}

// NewAuthenticator wires token verification, storage and the credential cache.
// A nil cache behaves like a disabled one.
func NewAuthenticator(tokens *Tokens, users UserFinder, credentials *CredentialCache) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, cache: credentials}
}

// Authenticate verifies token and resolves the acting identity, preferring the
// credential cache over storage. Expired, malformed and orphaned tokens all
// yield ErrInvalidToken; other storage failures are returned wrapped.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	claims, err := a.tokens.ParseAccess(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if id, ok := a.cache.Get(claims.UserID); ok {
		return id, nil
	}
	user, err := a.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("load user %d: %w", claims.UserID, err)
	}
	id := user.Identity()
	a.cache.Put(user.ID, id, user.UpdatedAt)
	return id, nil
}
