package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer    = "ekklesia"
	defaultAccessTTL = 8 * time.Hour
	defaultReauthTTL = 5 * time.Minute

	tokenUseAccess = "access"
	tokenUseReauth = "reauth"
)

// ErrInvalidToken indicates the token failed validation. Expired, malformed,
// wrongly signed and orphaned tokens all map to it.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents the bearer token payload.
type Claims struct {
	UserID   int64  `json:"id"`
	Role     Role   `json:"role"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	TenantID *int64 `json:"tenantId"`
	Use      string `json:"token_use"`
	jwt.RegisteredClaims
}

// ReauthClaims represents a short-lived, single-purpose re-authentication token.
type ReauthClaims struct {
	UserID  int64  `json:"id"`
	Purpose string `json:"purpose"`
	Use     string `json:"token_use"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies bearer and re-authentication tokens (HS256).
type Tokens struct {
	secrets   Secrets
	issuer    string
	accessTTL time.Duration
	reauthTTL time.Duration
	now       func() time.Time
}

// TokenOption configures Tokens.
type TokenOption func(*Tokens)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(t *Tokens) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			t.issuer = issuer
		}
	}
}

// WithAccessTTL configures bearer token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.accessTTL = ttl
		}
	}
}

// WithReauthTTL configures re-authentication token lifetime.
func WithReauthTTL(ttl time.Duration) TokenOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.reauthTTL = ttl
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(t *Tokens) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokens constructs a signer/verifier over the resolved secrets.
func NewTokens(secrets Secrets, opts ...TokenOption) (*Tokens, error) {
	if len(secrets.Auth) == 0 {
		return nil, errMissingSecret
	}
	t := &Tokens{
		secrets:   secrets,
		issuer:    defaultIssuer,
		accessTTL: defaultAccessTTL,
		reauthTTL: defaultReauthTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// AccessTTL returns the bearer token lifetime.
func (t *Tokens) AccessTTL() time.Duration { return t.accessTTL }

// CSRFSecret returns the key CSRF tokens are derived with.
func (t *Tokens) CSRFSecret() []byte { return t.secrets.CSRF }

// IssueAccess signs a bearer token for the identity.
func (t *Tokens) IssueAccess(id Identity) (string, time.Time, error) {
	if id.ID <= 0 {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := t.now().UTC()
	exp := now.Add(t.accessTTL)
	claims := Claims{
		UserID:           id.ID,
		Role:             id.Role,
		Name:             id.Name,
		Email:            id.Email,
		TenantID:         id.TenantID,
		Use:              tokenUseAccess,
		RegisteredClaims: t.registered(id.ID, now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secrets.Auth)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseAccess verifies the bearer token signature and required claims.
func (t *Tokens) ParseAccess(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	if err := t.parse(token, claims, t.secrets.Auth); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Use != tokenUseAccess {
		return nil, ErrInvalidToken
	}
	if err := validateSubject(claims.Subject, claims.UserID); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueReauth signs a re-authentication token bound to one user and one purpose.
func (t *Tokens) IssueReauth(userID int64, purpose string) (string, time.Time, error) {
	purpose = strings.TrimSpace(purpose)
	if userID <= 0 || purpose == "" {
		return "", time.Time{}, fmt.Errorf("%w: user id and purpose are required", ErrInvalidInput)
	}
	now := t.now().UTC()
	exp := now.Add(t.reauthTTL)
	claims := ReauthClaims{
		UserID:           userID,
		Purpose:          purpose,
		Use:              tokenUseReauth,
		RegisteredClaims: t.registered(userID, now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secrets.Reauth)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign reauth token: %w", err)
	}
	return signed, exp, nil
}

// VerifyReauth checks the token against the expected purpose and user. Every
// failure yields ErrReauthRequired.
func (t *Tokens) VerifyReauth(token, purpose string, userID int64) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrReauthRequired
	}
	claims := &ReauthClaims{}
	if err := t.parse(token, claims, t.secrets.Reauth); err != nil {
		return ErrReauthRequired
	}
	if claims.Use != tokenUseReauth || claims.Purpose != purpose || claims.UserID != userID {
		return ErrReauthRequired
	}
	if err := validateSubject(claims.Subject, claims.UserID); err != nil {
		return ErrReauthRequired
	}
	return nil
}

func (t *Tokens) registered(userID int64, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

func (t *Tokens) parse(token string, claims jwt.Claims, key []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

func validateSubject(subject string, userID int64) error {
	if userID <= 0 {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(subject) != strconv.FormatInt(userID, 10) {
		return errors.New("subject does not match id claim")
	}
	return nil
}
