package permission

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

// maxUnescape bounds repeated percent-decoding of a route path.
const maxUnescape = 3

var errMalformedPath = errors.New("malformed path")

// RouteRule protects every path under Prefix. A rule either requires a permission
// or restricts the route to Roles (owner and admin always pass).
type RouteRule struct {
	Prefix     string
	Permission *Permission
	Roles      []RoleName
}

// RouteTable resolves the rule for a path by longest matching prefix.
type RouteTable struct {
	rules []RouteRule
}

// NewRouteTable returns a table over rules. Prefixes are matched on path segment boundaries.
func NewRouteTable(rules ...RouteRule) *RouteTable {
	sorted := make([]RouteRule, len(rules))
	copy(sorted, rules)
	for i := range sorted {
		if p, err := cleanPath(sorted[i].Prefix); err == nil {
			sorted[i].Prefix = p
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Prefix) > len(sorted[j].Prefix) })
	return &RouteTable{rules: sorted}
}

// Match returns the rule protecting path, or false when the path only needs authentication.
// A path that cannot be normalized matches the root rule "/" only, if any.
func (t *RouteTable) Match(p string) (RouteRule, bool) {
	clean, err := cleanPath(p)
	if err != nil {
		clean = "/"
	}
	return t.match(clean)
}

func (t *RouteTable) match(p string) (RouteRule, bool) {
	for _, r := range t.rules {
		if p == r.Prefix || r.Prefix == "/" || strings.HasPrefix(p, r.Prefix+"/") {
			return r, true
		}
	}
	return RouteRule{}, false
}

// Rules returns the rules, longest prefix first.
func (t *RouteTable) Rules() []RouteRule {
	out := make([]RouteRule, len(t.rules))
	copy(out, t.rules)
	return out
}

// CheckRoute decides whether u may open path.
func (r *Resolver) CheckRoute(t *RouteTable, u UserContext, path string) Decision {
	if m := u.malformed(); m != "" {
		return Unauthorized(m)
	}
	clean, err := cleanPath(path)
	if err != nil {
		return Forbidden(err.Error())
	}
	rule, ok := t.match(clean)
	if !ok {
		if !u.IsActive {
			return Forbidden("user is inactive")
		}
		return Allow()
	}
	if rule.Permission != nil {
		return r.Check(u, rule.Permission.Action, rule.Permission.Resource)
	}
	return r.AuthorizeRoles(u, rule.Roles)
}

// cleanPath strips the query and fragment, decodes percent-escapes and resolves
// dot-segments, so "/loads/%2e%2e/admin" and "/loads/../admin" both become "/admin".
// Paths still escaped after maxUnescape rounds, or with invalid escapes, are rejected.
func cleanPath(p string) (string, error) {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	for n := 0; strings.Contains(p, "%"); n++ {
		if n == maxUnescape {
			return "", errMalformedPath
		}
		u, err := url.PathUnescape(p)
		if err != nil {
			return "", errMalformedPath
		}
		p = u
	}
	if strings.ContainsAny(p, "?#\\\x00") {
		return "", errMalformedPath
	}
	return path.Clean("/" + p), nil
}

func requires(a Action, r Resource) *Permission {
	p := P(a, r)
	return &p
}

var defaultRoutes = NewRouteTable(
	RouteRule{Prefix: "/dashboard", Permission: requires(ActionRead, ResourceLoad)},
	RouteRule{Prefix: "/dispatch", Permission: requires(ActionRead, ResourceDispatch)},
	RouteRule{Prefix: "/loads", Permission: requires(ActionRead, ResourceLoad)},
	RouteRule{Prefix: "/drivers", Permission: requires(ActionRead, ResourceDriver)},
	RouteRule{Prefix: "/vehicles", Permission: requires(ActionRead, ResourceVehicle)},
	RouteRule{Prefix: "/maintenance", Permission: requires(ActionRead, ResourceMaintenance)},
	RouteRule{Prefix: "/compliance", Permission: requires(ActionRead, ResourceCompliance)},
	RouteRule{Prefix: "/ifta", Permission: requires(ActionRead, ResourceIFTAReport)},
	RouteRule{Prefix: "/billing", Permission: requires(ActionRead, ResourceBilling)},
	RouteRule{Prefix: "/invoices", Permission: requires(ActionRead, ResourceInvoice)},
	RouteRule{Prefix: "/reports", Permission: requires(ActionRead, ResourceReport)},
	RouteRule{Prefix: "/settings", Permission: requires(ActionManage, ResourceSettings)},
	RouteRule{Prefix: "/admin", Roles: []RoleName{RoleOwner, RoleAdmin}},
)

// DefaultRoutes returns the canonical page route protection table.
func DefaultRoutes() *RouteTable {
	return defaultRoutes
}
