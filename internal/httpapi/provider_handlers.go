package httpapi

import (
	"context"
	"net/http"

	"ekklesia.app/internal/audit"
	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/tenant"
)

type adminAccount struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createTenantRequest struct {
	tenant.CreateInput
	Admin *adminAccount `json:"admin,omitempty"`
}

type createTenantResponse struct {
	Tenant *tenant.Tenant `json:"tenant"`
	Admin  *auth.User     `json:"admin,omitempty"`
}

type planRequest struct {
	Plan string `json:"plan"`
}

type featuresRequest struct {
	Features map[string]any `json:"features"`
}

type statusRequest struct {
	Status tenant.Status `json:"status"`
}

type tenantView struct {
	*tenant.Tenant
	Resolved tenant.FeatureSet `json:"resolvedFeatures"`
}

func viewOf(t *tenant.Tenant) tenantView {
	return tenantView{Tenant: t, Resolved: t.Resolved()}
}

func (a *API) listTenants(w http.ResponseWriter, r *http.Request) {
	list, err := a.tenants.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]tenantView, 0, len(list))
	for i := range list {
		out = append(out, viewOf(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": out})
}

func (a *API) getTenant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	t, err := a.tenants.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

// createTenant registers a church and, optionally, its first SUPER_ADMIN.
func (a *API) createTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	t, err := a.tenants.Create(r.Context(), req.CreateInput)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := createTenantResponse{Tenant: t}
	if req.Admin != nil {
		tenantID := t.ID
		admin, err := a.accounts.Register(r.Context(), auth.NewUser{
			TenantID: &tenantID,
			Name:     req.Admin.Name,
			Email:    req.Admin.Email,
			Password: req.Admin.Password,
			Role:     auth.RoleSuperAdmin,
		})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		resp.Admin = admin
	}
	a.auditTenant(r.Context(), "tenants.created", t)
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) setPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	a.updateTenant(w, r, &req, "tenants.plan_changed", func(ctx context.Context, id int64) (*tenant.Tenant, error) {
		return a.tenants.SetPlan(ctx, id, req.Plan)
	})
}

func (a *API) setFeatures(w http.ResponseWriter, r *http.Request) {
	var req featuresRequest
	a.updateTenant(w, r, &req, "tenants.features_changed", func(ctx context.Context, id int64) (*tenant.Tenant, error) {
		return a.tenants.SetFeatures(ctx, id, req.Features)
	})
}

func (a *API) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	a.updateTenant(w, r, &req, "tenants.status_changed", func(ctx context.Context, id int64) (*tenant.Tenant, error) {
		return a.tenants.SetStatus(ctx, id, req.Status)
	})
}

func (a *API) updateTenant(w http.ResponseWriter, r *http.Request, req any, event string, apply func(context.Context, int64) (*tenant.Tenant, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if err := a.decodeJSON(w, r, req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	t, err := apply(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.auditTenant(r.Context(), event, t)
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (a *API) auditTenant(ctx context.Context, event string, t *tenant.Tenant) {
	_ = audit.LogEvent(ctx, event, map[string]any{
		"target_tenant_id": t.ID,
		"plan":             string(t.Plan),
		"status":           string(t.Status),
	})
}
