package httpapi

import (
	"net/http"
	"strings"
	"time"

	"ekklesia.app/internal/audit"
	"ekklesia.app/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type reauthRequest struct {
	Password string `json:"password"`
	Purpose  string `json:"purpose"`
}

type reauthResponse struct {
	Token     string    `json:"reauth_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "email and password are required")
		return
	}

	session, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login_failed", map[string]any{
			"email": strings.ToLower(strings.TrimSpace(req.Email)),
		})
		writeDomainError(w, r, err)
		return
	}

	ctx := auth.ContextWithIdentity(r.Context(), session.User)
	_ = audit.LogEvent(ctx, "auth.login", nil)
	writeJSON(w, http.StatusOK, session)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, id)
}

func (a *API) csrf(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": a.accounts.CSRF(token)})
}

func (a *API) reauth(w http.ResponseWriter, r *http.Request) {
	var req reauthRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	token, exp, err := a.accounts.Reauthenticate(r.Context(), id, req.Password, req.Purpose)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.reauth", map[string]any{"purpose": strings.TrimSpace(req.Purpose)})
	writeJSON(w, http.StatusOK, reauthResponse{Token: token, ExpiresAt: exp})
}
