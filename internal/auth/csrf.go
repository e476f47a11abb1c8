package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// CSRFToken derives the anti-CSRF value bound to a bearer token.
func CSRFToken(secret []byte, bearer string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(bearer))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCSRF reports whether supplied matches the value derived from bearer.
func VerifyCSRF(secret []byte, bearer, supplied string) bool {
	if bearer == "" || supplied == "" {
		return false
	}
	return subtleCompare(CSRFToken(secret, bearer), supplied)
}

func subtleCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
