package permission

import "strings"

// RoleName is the tag assigned to a user within an organization.
type RoleName string

const (
	RoleOwner             RoleName = "owner"
	RoleAdmin             RoleName = "admin"
	RoleDispatcher        RoleName = "dispatcher"
	RoleDriver            RoleName = "driver"
	RoleComplianceOfficer RoleName = "compliance_officer"
	RoleAccountant        RoleName = "accountant"
	RoleViewer            RoleName = "viewer"
)

// FallbackRole is the most restrictive role, used for unrecognized role strings.
const FallbackRole = RoleViewer

// Kind distinguishes roles that bypass checks from roles limited to their grants.
type Kind int

const (
	// KindScoped roles are allowed exactly what their grants list.
	KindScoped Kind = iota
	// KindUnrestricted roles satisfy every permission check.
	KindUnrestricted
)

func (k Kind) String() string {
	switch k {
	case KindScoped:
		return "scoped"
	case KindUnrestricted:
		return "unrestricted"
	default:
		return "unknown"
	}
}

// Role is a named bundle of grants.
type Role struct {
	Name   RoleName
	Kind   Kind
	Grants []Permission
}

// Scoped builds a role limited to grants.
func Scoped(name RoleName, grants ...Permission) Role {
	return Role{Name: name, Kind: KindScoped, Grants: grants}
}

// Unrestricted builds a role that satisfies every check.
func Unrestricted(name RoleName) Role {
	return Role{Name: name, Kind: KindUnrestricted}
}

// ParseRole maps a claim or database value to a canonical role name.
// Matching is case-insensitive and ignores surrounding whitespace and an "org:"
// prefix (identity providers commonly namespace org roles that way).
// ok is false for empty or unrecognized values.
func ParseRole(s string) (RoleName, bool) {
	name := NormalizeRole(s)
	switch name {
	case RoleOwner, RoleAdmin, RoleDispatcher, RoleDriver, RoleComplianceOfficer, RoleAccountant, RoleViewer:
		return name, true
	}
	return "", false
}

// NormalizeRole lowercases s and strips whitespace and the "org:" prefix.
func NormalizeRole(s string) RoleName {
	s = strings.ToLower(strings.TrimSpace(s))
	return RoleName(strings.TrimPrefix(s, "org:"))
}
