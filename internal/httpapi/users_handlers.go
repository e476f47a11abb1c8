package httpapi

import (
	"net/http"

	"ekklesia.app/internal/audit"
	"ekklesia.app/internal/auth"
)

type roleRequest struct {
	Role string `json:"role"`
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req auth.NewUser
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())
	role, ok := auth.ParseRole(string(req.Role))
	if !ok || !role.TenantBound() {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "unknown role")
		return
	}
	if !canGrant(actor.Role, role) {
		writeError(w, r, http.StatusForbidden, codeForbidden, "your role cannot grant "+string(role))
		return
	}
	req.Role = role
	req.TenantID, _ = auth.TenantFromContext(r.Context())

	user, err := a.accounts.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.created", map[string]any{"target_user_id": user.ID, "new_role": string(user.Role)})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) changeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	var req roleRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "unknown role")
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())
	if !canGrant(actor.Role, role) {
		writeError(w, r, http.StatusForbidden, codeForbidden, "your role cannot grant "+string(role))
		return
	}
	tenantID, _ := auth.TenantFromContext(r.Context())

	user, err := a.accounts.ChangeRole(r.Context(), *tenantID, userID, role)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.role_changed", map[string]any{"target_user_id": userID, "new_role": string(role)})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	tenantID, _ := auth.TenantFromContext(r.Context())
	if err := a.accounts.DeleteUser(r.Context(), *tenantID, userID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "users.deleted", map[string]any{"target_user_id": userID})
	w.WriteHeader(http.StatusNoContent)
}

// canGrant keeps SUPER_ADMIN assignable only by another SUPER_ADMIN.
func canGrant(actor, role auth.Role) bool {
	return role != auth.RoleSuperAdmin || actor == auth.RoleSuperAdmin
}
