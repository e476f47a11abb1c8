package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/members"
	"ekklesia.app/internal/obs"
	"ekklesia.app/internal/settings"
	"ekklesia.app/internal/tenant"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeBadRequest            = "BAD_REQUEST"
	codeUnauthenticated       = "UNAUTHENTICATED"
	codeInvalidCredential     = "INVALID_CREDENTIAL"
	codeForbidden             = "FORBIDDEN"
	codeReauthRequired        = "REAUTH_REQUIRED"
	codeTenantContextRequired = "TENANT_CONTEXT_REQUIRED"
	codePermissionDenied      = "PERMISSION_DENIED"
	codeFeatureDisabled       = "FEATURE_DISABLED"
	codeTenantSuspended       = "TENANT_SUSPENDED"
	codeNotFound              = "NOT_FOUND"
	codeConflict              = "CONFLICT"
	codeMethodNotAllowed      = "METHOD_NOT_ALLOWED"
	codeRateLimited           = "RATE_LIMITED"
	codeInternal              = "INTERNAL"
)

type errorBody struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{
		Message:   msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// decodeJSON reads one JSON object no larger than the configured body limit.
func (a *API) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

// writeDomainError maps service sentinels onto the HTTP taxonomy.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, tenant.ErrInvalidInput),
		errors.Is(err, settings.ErrInvalidInput), errors.Is(err, members.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, tenant.ErrNotFound),
		errors.Is(err, settings.ErrNotFound), errors.Is(err, members.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, auth.ErrConflict), errors.Is(err, tenant.ErrConflict):
		writeError(w, r, http.StatusConflict, codeConflict, "already exists")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, codeInvalidCredential, "invalid email or password")
	case errors.Is(err, auth.ErrReauthRequired):
		writeError(w, r, http.StatusForbidden, codeReauthRequired, "re-authentication required")
	case errors.Is(err, auth.ErrTenantSuspended):
		writeError(w, r, http.StatusForbidden, codeTenantSuspended, "tenant is suspended")
	default:
		obs.Logger().WithError(err).WithField("request_id", RequestIDFromContext(r.Context())).
			Error("request failed")
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
