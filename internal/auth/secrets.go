package auth

import (
	"errors"
	"strings"
)

var errMissingSecret = errors.New("auth secret is not configured")

// Secrets holds the keys used by the pipeline. They are resolved once at
// startup; the CSRF and re-auth keys fall back to the main auth key.
type Secrets struct {
	Auth   []byte
	CSRF   []byte
	Reauth []byte
}

// ResolveSecrets applies the fallback chain. Only the auth secret is required.
func ResolveSecrets(authSecret, csrfSecret, reauthSecret string) (Secrets, error) {
	authSecret = strings.TrimSpace(authSecret)
	if authSecret == "" {
		return Secrets{}, errMissingSecret
	}
	csrfSecret = strings.TrimSpace(csrfSecret)
	if csrfSecret == "" {
		csrfSecret = authSecret
	}
	reauthSecret = strings.TrimSpace(reauthSecret)
	if reauthSecret == "" {
		reauthSecret = authSecret
	}
	return Secrets{
		Auth:   []byte(authSecret),
		CSRF:   []byte(csrfSecret),
		Reauth: []byte(reauthSecret),
	}, nil
}
