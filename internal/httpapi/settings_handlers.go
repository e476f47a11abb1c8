package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"ekklesia.app/internal/audit"
	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/policy"
	"ekklesia.app/internal/settings"
)

type settingRequest struct {
	Value json.RawMessage `json:"value"`
}

type settingResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (a *API) getSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if !settings.ValidKey(key) {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "invalid setting key")
		return
	}
	tenantID, _ := auth.TenantFromContext(r.Context())
	raw, err := a.settings.Get(r.Context(), tenantID, key)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if raw == nil {
		writeError(w, r, http.StatusNotFound, codeNotFound, "setting not found")
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: asJSON(*raw)})
}

func (a *API) putSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var req settingRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if len(req.Value) == 0 {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "value is required")
		return
	}
	value := string(req.Value)
	if key == policy.SettingKey {
		if _, err := policy.ParseDocument(value); err != nil {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "role_permissions must map roles to action flags")
			return
		}
	}

	tenantID, _ := auth.TenantFromContext(r.Context())
	row, err := a.settings.Put(r.Context(), tenantID, key, value)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "settings.updated", map[string]any{"key": key})
	writeJSON(w, http.StatusOK, settingResponse{Key: row.Key, Value: asJSON(row.Value)})
}

func (a *API) flushSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := auth.TenantFromContext(r.Context())
	n := a.settings.Flush(tenantID)
	_ = audit.LogEvent(r.Context(), "settings.cache_flushed", map[string]any{"entries": n})
	writeJSON(w, http.StatusOK, map[string]int{"flushed": n})
}

func (a *API) features(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := auth.TenantFromContext(r.Context())
	t, err := a.tenants.Get(r.Context(), *tenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan":     t.Plan,
		"features": t.Resolved(),
	})
}

// asJSON returns stored values verbatim when they are JSON and as a string
// otherwise.
func asJSON(raw string) json.RawMessage {
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}
