package auth

import "strings"

// Role is the coarse role carried by every identity.
type Role string

const (
	// RoleProviderAdmin manages tenant lifecycle and operates outside any tenant.
	RoleProviderAdmin Role = "PROVIDER_ADMIN"
	// RoleSuperAdmin is the top administrative role inside a tenant. It is never
	// subject to the tenant's permission policy.
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RolePastor     Role = "PASTOR"
	RoleClerk      Role = "CLERK"
	RoleFinance    Role = "FINANCE"
	RoleLeader     Role = "DEPARTMENT_LEADER"
	RoleMember     Role = "MEMBER"
)

var knownRoles = []Role{
	RoleProviderAdmin,
	RoleSuperAdmin,
	RoleAdmin,
	RolePastor,
	RoleClerk,
	RoleFinance,
	RoleLeader,
	RoleMember,
}

// Roles returns every known role.
func Roles() []Role {
	out := make([]Role, len(knownRoles))
	copy(out, knownRoles)
	return out
}

// ParseRole maps a stored or user-supplied role name onto a Role. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseRole(raw string) (Role, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	for _, r := range knownRoles {
		if string(r) == raw {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range knownRoles {
		if r == known {
			return true
		}
	}
	return false
}

// BypassesPolicy reports whether the role skips dynamic permission checks.
func (r Role) BypassesPolicy() bool {
	return r == RoleSuperAdmin
}

// TenantBound reports whether identities holding this role must belong to a tenant.
func (r Role) TenantBound() bool {
	return r != RoleProviderAdmin
}
