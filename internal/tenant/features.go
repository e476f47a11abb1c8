package tenant

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
)

// PlanKey is a subscription tier. Tiers are ordered by feature richness.
type PlanKey string

const (
	PlanBasic      PlanKey = "BASIC"
	PlanPro        PlanKey = "PRO"
	PlanEnterprise PlanKey = "ENTERPRISE"
)

// Plans lists the tiers from poorest to richest.
func Plans() []PlanKey {
	return []PlanKey{PlanBasic, PlanPro, PlanEnterprise}
}

// ParsePlan maps raw onto a plan, case-insensitively. Unrecognized values
// fall back to BASIC.
func ParsePlan(raw string) PlanKey {
	switch PlanKey(strings.ToUpper(strings.TrimSpace(raw))) {
	case PlanPro:
		return PlanPro
	case PlanEnterprise:
		return PlanEnterprise
	default:
		return PlanBasic
	}
}

// FeatureKey names a product capability.
type FeatureKey string

const (
	FeatureMembers       FeatureKey = "members"
	FeatureAttendance    FeatureKey = "attendance"
	FeatureDepartments   FeatureKey = "departments"
	FeatureEvents        FeatureKey = "events"
	FeatureAnnouncements FeatureKey = "announcements"
	FeatureFinance       FeatureKey = "finance"
	FeatureReports       FeatureKey = "reports"
	FeatureCommittees    FeatureKey = "committees"
	FeatureMinutes       FeatureKey = "minutes"
	FeatureSMS           FeatureKey = "sms"
	FeatureAI            FeatureKey = "ai"
	FeatureBackup        FeatureKey = "backup"
	FeatureCustomRoles   FeatureKey = "custom_roles"
)

// FeatureKeys lists every known feature.
func FeatureKeys() []FeatureKey {
	return []FeatureKey{
		FeatureMembers, FeatureAttendance, FeatureDepartments, FeatureEvents,
		FeatureAnnouncements, FeatureFinance, FeatureReports, FeatureCommittees,
		FeatureMinutes, FeatureSMS, FeatureAI, FeatureBackup, FeatureCustomRoles,
	}
}

var planDefaults = map[PlanKey]map[FeatureKey]bool{
	PlanBasic: {
		FeatureMembers:       true,
		FeatureAttendance:    true,
		FeatureDepartments:   true,
		FeatureEvents:        true,
		FeatureAnnouncements: true,
		FeatureFinance:       false,
		FeatureReports:       false,
		FeatureCommittees:    false,
		FeatureMinutes:       false,
		FeatureSMS:           false,
		FeatureAI:            false,
		FeatureBackup:        false,
		FeatureCustomRoles:   false,
	},
	PlanPro: {
		FeatureMembers:       true,
		FeatureAttendance:    true,
		FeatureDepartments:   true,
		FeatureEvents:        true,
		FeatureAnnouncements: true,
		FeatureFinance:       true,
		FeatureReports:       true,
		FeatureCommittees:    true,
		FeatureMinutes:       true,
		FeatureSMS:           true,
		FeatureAI:            false,
		FeatureBackup:        false,
		FeatureCustomRoles:   false,
	},
	PlanEnterprise: {
		FeatureMembers:       true,
		FeatureAttendance:    true,
		FeatureDepartments:   true,
		FeatureEvents:        true,
		FeatureAnnouncements: true,
		FeatureFinance:       true,
		FeatureReports:       true,
		FeatureCommittees:    true,
		FeatureMinutes:       true,
		FeatureSMS:           true,
		FeatureAI:            true,
		FeatureBackup:        true,
		FeatureCustomRoles:   true,
	},
}

// PlanDefaults returns a copy of the shipped flag table for plan.
func PlanDefaults(plan PlanKey) map[FeatureKey]bool {
	src := planDefaults[ParsePlan(string(plan))]
	out := make(map[FeatureKey]bool, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// FeatureSet is the effective flag map of a tenant. It may carry keys outside
// FeatureKeys when a tenant override names one.
type FeatureSet map[string]bool

// Enabled reports whether key is present and true.
func (fs FeatureSet) Enabled(key FeatureKey) bool {
	return fs[string(key)]
}

// Keys returns the flag names in sorted order.
func (fs FeatureSet) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveFeatures overlays tenant overrides on the plan defaults. Every
// override is coerced to a boolean and replaces the default; unknown override
// keys are kept.
func ResolveFeatures(plan string, overrides map[string]any) FeatureSet {
	base := planDefaults[ParsePlan(plan)]
	out := make(FeatureSet, len(base)+len(overrides))
	for k, v := range base {
		out[string(k)] = v
	}
	for k, v := range overrides {
		out[k] = Truthy(v)
	}
	return out
}

// Truthy coerces a decoded JSON value the way loosely-typed configuration
// expects: false, zero, NaN, the empty string and null are false, everything
// else (including the string "false" and empty objects) is true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint:
		return x != 0
	case uint32:
		return x != 0
	case uint64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x != ""
		}
		return f != 0 && !math.IsNaN(f)
	default:
		return true
	}
}
