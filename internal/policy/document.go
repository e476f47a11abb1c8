// Package policy evaluates the per-tenant role permission document that
// refines coarse roles into per-action grants.
package policy

import (
	"encoding/json"
	"sort"
	"strings"

	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/tenant"
)

// SettingKey is the setting row holding a tenant's policy document.
const SettingKey = "role_permissions"

// Action names an operation the policy can grant or deny.
type Action string

const (
	ActionAddMembers     Action = "add_members"
	ActionEditMembers    Action = "edit_members"
	ActionDeleteMembers  Action = "delete_members"
	ActionAddFinance     Action = "add_finance"
	ActionViewFinance    Action = "view_finance"
	ActionAddAttendance  Action = "add_attendance"
	ActionManageEvents   Action = "manage_events"
	ActionViewReports    Action = "view_reports"
	ActionManageSettings Action = "manage_settings"
	ActionManageUsers    Action = "manage_users"
	ActionAnnounce       Action = "send_announcements"
)

var knownActions = []Action{
	ActionAddMembers, ActionEditMembers, ActionDeleteMembers,
	ActionAddFinance, ActionViewFinance, ActionAddAttendance,
	ActionManageEvents, ActionViewReports, ActionManageSettings,
	ActionManageUsers, ActionAnnounce,
}

// Actions returns every known action.
func Actions() []Action {
	out := make([]Action, len(knownActions))
	copy(out, knownActions)
	return out
}

// ParseAction maps raw onto a known action.
func ParseAction(raw string) (Action, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for _, a := range knownActions {
		if string(a) == raw {
			return a, true
		}
	}
	return "", false
}

// Document is a parsed role -> action -> granted map. Role keys naming a known
// role are normalized; unknown roles and actions are kept verbatim.
type Document map[string]map[string]bool

// ParseDocument decodes an operator-edited policy. Role entries that are not
// objects are dropped; grant values are coerced to booleans. Keys that only
// case-fold onto a known role are merged first, in sorted order, and the entry
// spelled exactly as the role overrides them.
func ParseDocument(raw string) (Document, error) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(decoded))
	for k := range decoded {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ei, ej := isExactRole(keys[i]), isExactRole(keys[j])
		if ei != ej {
			return ej
		}
		return keys[i] < keys[j]
	})

	doc := make(Document, len(decoded))
	for _, roleKey := range keys {
		grants, ok := decoded[roleKey].(map[string]any)
		if !ok {
			continue
		}
		if role, ok := auth.ParseRole(roleKey); ok {
			roleKey = string(role)
		}
		dst := doc[roleKey]
		if dst == nil {
			dst = make(map[string]bool, len(grants))
			doc[roleKey] = dst
		}
		for action, v := range grants {
			dst[action] = tenant.Truthy(v)
		}
	}
	return doc, nil
}

func isExactRole(key string) bool {
	return auth.Role(key).Valid()
}

// Lookup returns the explicit grant for (role, action) and whether one exists.
func (d Document) Lookup(role auth.Role, action Action) (granted bool, present bool) {
	grants, ok := d[string(role)]
	if !ok {
		return false, false
	}
	granted, present = grants[string(action)]
	return granted, present
}
