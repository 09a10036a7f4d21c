package permission

import (
	"fmt"
	"log"
	"sync"
)

// WarnFunc reports configuration warnings such as unrecognized roles.
type WarnFunc func(format string, args ...any)

// Option configures a Resolver.
type Option func(*Resolver)

// WithWarnFunc overrides where configuration warnings go (default log.Printf).
func WithWarnFunc(fn WarnFunc) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.warn = fn
		}
	}
}

// Resolver answers permission checks against an immutable Table.
// It is safe for concurrent use; checks perform no I/O.
type Resolver struct {
	table *Table
	warn  WarnFunc
	// warned holds role strings already reported, so a misconfigured role logs once.
	warned sync.Map
}

// NewResolver returns a resolver over table. A nil table means DefaultTable().
func NewResolver(table *Table, opts ...Option) *Resolver {
	if table == nil {
		table = DefaultTable()
	}
	r := &Resolver{table: table, warn: log.Printf}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Table returns the table the resolver checks against.
func (r *Resolver) Table() *Table {
	return r.table
}

// EffectiveRole returns the table role used for u. Unrecognized roles resolve to FallbackRole.
func (r *Resolver) EffectiveRole(u UserContext) RoleName {
	name := NormalizeRole(u.Role)
	if _, ok := r.table.Role(name); ok {
		return name
	}
	if _, seen := r.warned.LoadOrStore(u.Role, struct{}{}); !seen {
		r.warn("permission: unrecognized role %q for user %s in org %s; treating as %s", u.Role, u.UserID, u.OrganizationID, FallbackRole)
	}
	return FallbackRole
}

// Check decides whether u may perform action on resource and says why.
func (r *Resolver) Check(u UserContext, action Action, resource Resource) Decision {
	if m := u.malformed(); m != "" {
		return Unauthorized(m)
	}
	if !u.IsActive {
		return Forbidden("user is inactive")
	}
	role := r.EffectiveRole(u)
	if r.table.Grants(role, action, resource) {
		return Allow()
	}
	for _, o := range u.Overrides {
		if o.Matches(action, resource) {
			return Allow()
		}
	}
	return Forbidden(fmt.Sprintf("role %s may not %s %s", role, action, resource))
}

// HasPermission reports whether u may perform action on resource.
func (r *Resolver) HasPermission(u UserContext, action Action, resource Resource) bool {
	return r.Check(u, action, resource).Allowed
}

// AuthorizeRoles allows u when its role is in allowed. Unrestricted roles (owner, admin)
// are always allowed, so an empty list admits only them.
func (r *Resolver) AuthorizeRoles(u UserContext, allowed []RoleName) Decision {
	if m := u.malformed(); m != "" {
		return Unauthorized(m)
	}
	if !u.IsActive {
		return Forbidden("user is inactive")
	}
	role := r.EffectiveRole(u)
	if def, ok := r.table.Role(role); ok && def.Kind == KindUnrestricted {
		return Allow()
	}
	for _, a := range allowed {
		if NormalizeRole(string(a)) == role {
			return Allow()
		}
	}
	return Forbidden(fmt.Sprintf("role %s is not allowed", role))
}

// Permissions lists what u is granted: the role's grants followed by overrides.
// Unrestricted roles return a single "*:*" entry. Malformed or inactive users get nil.
func (r *Resolver) Permissions(u UserContext) []Permission {
	if u.malformed() != "" || !u.IsActive {
		return nil
	}
	def, _ := r.table.Role(r.EffectiveRole(u))
	if def.Kind == KindUnrestricted {
		return []Permission{{Action: Wildcard, Resource: Wildcard}}
	}
	seen := make(map[Permission]bool, len(def.Grants)+len(u.Overrides))
	out := make([]Permission, 0, len(def.Grants)+len(u.Overrides))
	for _, list := range [][]Permission{def.Grants, u.Overrides} {
		for _, p := range list {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
