package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TenantStatus reports whether a tenant may currently sign in.
type TenantStatus interface {
	IsSuspended(ctx context.Context, tenantID int64) (bool, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Identity  `json:"user"`
}

// Service provides login, re-authentication and the account mutations that
// must keep the credential cache honest.
type Service struct {
	users       UserStore
	tokens      *Tokens
	credentials *CredentialCache
	tenants     TenantStatus
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTenantStatus enables the suspended-tenant check at login.
func WithTenantStatus(ts TenantStatus) ServiceOption {
	return func(s *Service) error {
		s.tenants = ts
		return nil
	}
}

// NewService constructs the account service.
func NewService(users UserStore, tokens *Tokens, credentials *CredentialCache, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token signer is required")
	}
	s := &Service{users: users, tokens: tokens, credentials: credentials}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Login verifies the password and issues a bearer token with its CSRF value.
// Unknown emails and wrong passwords both yield ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	if user.TenantID != nil && s.tenants != nil {
		suspended, err := s.tenants.IsSuspended(ctx, *user.TenantID)
		if err != nil {
			return nil, err
		}
		if suspended {
			return nil, ErrTenantSuspended
		}
	}
	id := user.Identity()
	token, exp, err := s.tokens.IssueAccess(id)
	if err != nil {
		return nil, err
	}
	s.credentials.Put(user.ID, id, user.UpdatedAt)
	return &Session{
		Token:     token,
		CSRFToken: s.CSRF(token),
		ExpiresAt: exp,
		User:      id,
	}, nil
}

// CSRF derives the CSRF value for a bearer token.
func (s *Service) CSRF(bearer string) string {
	return CSRFToken(s.tokens.CSRFSecret(), bearer)
}

// Reauthenticate re-checks the caller's password and issues a purpose-scoped
// re-authentication token.
func (s *Service) Reauthenticate(ctx context.Context, id Identity, password, purpose string) (string, time.Time, error) {
	if password == "" {
		return "", time.Time{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	user, err := s.users.FindByID(ctx, id.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrUnauthorized
		}
		return "", time.Time{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", time.Time{}, ErrUnauthorized
	}
	return s.tokens.IssueReauth(user.ID, purpose)
}

// NewUser describes an account to register.
type NewUser struct {
	TenantID *int64 `json:"-"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// Register creates an account. Tenant-bound roles need a tenant and
// PROVIDER_ADMIN must not have one.
func (s *Service) Register(ctx context.Context, in NewUser) (*User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: name and a valid email are required", ErrInvalidInput)
	}
	role, ok := ParseRole(string(in.Role))
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	if role.TenantBound() != (in.TenantID != nil) {
		return nil, fmt.Errorf("%w: role %s does not match tenant scope", ErrInvalidInput, role)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	return s.users.CreateUser(ctx, User{
		TenantID:     in.TenantID,
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
	})
}

// ChangeRole assigns a tenant-bound role to a user of tenantID and drops the
// user's cached identity.
func (s *Service) ChangeRole(ctx context.Context, tenantID, userID int64, role Role) (*User, error) {
	if !role.Valid() || !role.TenantBound() {
		return nil, fmt.Errorf("%w: role %q cannot be assigned", ErrInvalidInput, role)
	}
	if _, err := s.tenantUser(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	updated, err := s.users.UpdateRole(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	s.credentials.Invalidate(userID)
	return updated, nil
}

// DeleteUser removes a user of tenantID and drops the cached identity.
func (s *Service) DeleteUser(ctx context.Context, tenantID, userID int64) error {
	if _, err := s.tenantUser(ctx, tenantID, userID); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	s.credentials.Invalidate(userID)
	return nil
}

func (s *Service) tenantUser(ctx context.Context, tenantID, userID int64) (*User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TenantID == nil || *user.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return user, nil
}
