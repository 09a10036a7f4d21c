package permission

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicateRole is returned by NewTable when a role name appears twice.
	ErrDuplicateRole = errors.New("duplicate role")
	// ErrEmptyRole is returned by NewTable when a scoped role has no grants.
	ErrEmptyRole = errors.New("scoped role has no grants")
	// ErrNoFallbackRole is returned by NewTable when the table has no viewer role.
	ErrNoFallbackRole = errors.New("table has no fallback role")
)

// Table is the immutable role to permission mapping, indexed by role at construction.
type Table struct {
	roles map[RoleName]*entry
}

type entry struct {
	role      Role
	exact     map[Permission]struct{}
	wildcards []Permission
}

// NewTable validates roles and builds an indexed table.
// Every scoped role must have at least one grant, grant actions must be known
// (or "*"), and a FallbackRole entry must exist.
func NewTable(roles ...Role) (*Table, error) {
	t := &Table{roles: make(map[RoleName]*entry, len(roles))}
	for _, r := range roles {
		if r.Name == "" {
			return nil, fmt.Errorf("permission: role with empty name")
		}
		if _, dup := t.roles[r.Name]; dup {
			return nil, fmt.Errorf("permission: %w: %s", ErrDuplicateRole, r.Name)
		}
		e := &entry{role: r, exact: make(map[Permission]struct{}, len(r.Grants))}
		if r.Kind == KindScoped && len(r.Grants) == 0 {
			return nil, fmt.Errorf("permission: %w: %s", ErrEmptyRole, r.Name)
		}
		for _, g := range r.Grants {
			if g.Action != Wildcard && !g.Action.Valid() {
				return nil, fmt.Errorf("permission: role %s: unknown action %q", r.Name, g.Action)
			}
			if g.Resource == "" {
				return nil, fmt.Errorf("permission: role %s: grant with empty resource", r.Name)
			}
			if g.IsWildcard() {
				e.wildcards = append(e.wildcards, g)
				continue
			}
			e.exact[g] = struct{}{}
		}
		t.roles[r.Name] = e
	}
	if _, ok := t.roles[FallbackRole]; !ok {
		return nil, fmt.Errorf("permission: %w: %s", ErrNoFallbackRole, FallbackRole)
	}
	return t, nil
}

// MustTable is NewTable that panics on error. Intended for package-level tables.
func MustTable(roles ...Role) *Table {
	t, err := NewTable(roles...)
	if err != nil {
		panic(err)
	}
	return t
}

// Role returns the role registered under name.
func (t *Table) Role(name RoleName) (Role, bool) {
	e, ok := t.roles[name]
	if !ok {
		return Role{}, false
	}
	return e.role, true
}

// Roles returns all role names in sorted order.
func (t *Table) Roles() []RoleName {
	out := make([]RoleName, 0, len(t.roles))
	for name := range t.roles {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Grants reports whether the role's grant set covers (a, r).
// Unknown roles grant nothing; callers resolve the fallback first.
func (t *Table) Grants(name RoleName, a Action, r Resource) bool {
	e, ok := t.roles[name]
	if !ok {
		return false
	}
	if e.role.Kind == KindUnrestricted {
		return true
	}
	if _, ok := e.exact[P(a, r)]; ok {
		return true
	}
	for _, w := range e.wildcards {
		if w.Matches(a, r) {
			return true
		}
	}
	return false
}

var defaultTable = MustTable(
	Unrestricted(RoleOwner),
	Unrestricted(RoleAdmin),
	Scoped(RoleDispatcher,
		P(ActionCreate, ResourceLoad),
		P(ActionRead, ResourceLoad),
		P(ActionUpdate, ResourceLoad),
		P(ActionCreate, ResourceDispatch),
		P(ActionRead, ResourceDispatch),
		P(ActionUpdate, ResourceDispatch),
		P(ActionRead, ResourceDriver),
		P(ActionRead, ResourceVehicle),
		P(ActionRead, ResourceTrailer),
		P(ActionCreate, ResourceDocument),
		P(ActionRead, ResourceDocument),
		P(ActionRead, ResourceReport),
	),
	Scoped(RoleDriver,
		P(ActionRead, ResourceLoad),
		P(ActionUpdate, ResourceLoad),
		P(ActionRead, ResourceDispatch),
		P(ActionRead, ResourceVehicle),
		P(ActionCreate, ResourceDocument),
		P(ActionRead, ResourceDocument),
		P(ActionCreate, ResourceFuelPurchase),
		P(ActionRead, ResourceFuelPurchase),
	),
	Scoped(RoleComplianceOfficer,
		P(ActionManage, ResourceCompliance),
		P(ActionCreate, ResourceCompliance),
		P(ActionRead, ResourceCompliance),
		P(ActionUpdate, ResourceCompliance),
		P(ActionDelete, ResourceCompliance),
		P(ActionRead, ResourceDriver),
		P(ActionUpdate, ResourceDriver),
		P(ActionRead, ResourceVehicle),
		P(ActionUpdate, ResourceVehicle),
		P(ActionRead, ResourceTrailer),
		P(ActionUpdate, ResourceTrailer),
		P(ActionCreate, ResourceMaintenance),
		P(ActionRead, ResourceMaintenance),
		P(ActionUpdate, ResourceMaintenance),
		P(ActionCreate, ResourceDocument),
		P(ActionRead, ResourceDocument),
		P(ActionRead, ResourceReport),
	),
	Scoped(RoleAccountant,
		P(ActionRead, ResourceLoad),
		P(ActionCreate, ResourceInvoice),
		P(ActionRead, ResourceInvoice),
		P(ActionUpdate, ResourceInvoice),
		P(ActionDelete, ResourceInvoice),
		P(ActionRead, ResourceBilling),
		P(ActionUpdate, ResourceBilling),
		P(ActionCreate, ResourceFuelPurchase),
		P(ActionRead, ResourceFuelPurchase),
		P(ActionUpdate, ResourceFuelPurchase),
		P(ActionCreate, ResourceIFTAReport),
		P(ActionRead, ResourceIFTAReport),
		P(ActionUpdate, ResourceIFTAReport),
		P(ActionRead, ResourceReport),
	),
	Scoped(RoleViewer,
		P(ActionRead, ResourceLoad),
		P(ActionRead, ResourceDispatch),
		P(ActionRead, ResourceVehicle),
	),
)

// DefaultTable returns the canonical fleet role table.
func DefaultTable() *Table {
	return defaultTable
}
