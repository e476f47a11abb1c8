package httpapi

import (
	"net/http"
	"strconv"

	"ekklesia.app/internal/audit"
	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/members"
)

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	tenantID, _ := auth.TenantFromContext(r.Context())

	list, err := a.members.List(r.Context(), *tenantID, limit, offset)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []members.Member{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": list})
}

func (a *API) createMember(w http.ResponseWriter, r *http.Request) {
	var req members.NewMember
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())
	tenantID, _ := auth.TenantFromContext(r.Context())

	m, err := a.members.Create(r.Context(), *tenantID, actor.ID, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "members.created", map[string]any{"member_id": m.ID})
	writeJSON(w, http.StatusCreated, m)
}
