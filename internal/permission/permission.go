// Package permission holds the canonical role table and the resolver that answers
// "may this user perform this action on this resource" for the fleet application.
package permission

import (
	"errors"
	"strings"
)

// Action is a verb from the closed set of actions a permission can grant.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Resource is a domain noun a permission applies to.
type Resource string

const (
	ResourceLoad         Resource = "load"
	ResourceDispatch     Resource = "dispatch"
	ResourceDriver       Resource = "driver"
	ResourceVehicle      Resource = "vehicle"
	ResourceTrailer      Resource = "trailer"
	ResourceMaintenance  Resource = "maintenance"
	ResourceCompliance   Resource = "compliance"
	ResourceDocument     Resource = "document"
	ResourceFuelPurchase Resource = "fuel_purchase"
	ResourceIFTAReport   Resource = "ifta_report"
	ResourceInvoice      Resource = "invoice"
	ResourceBilling      Resource = "billing"
	ResourceReport       Resource = "report"
	ResourceUser         Resource = "user"
	ResourceOrganization Resource = "organization"
	ResourceSettings     Resource = "settings"
)

// Wildcard in a grant matches any action or any resource.
const Wildcard = "*"

// ErrInvalidPermission is returned by ParsePermission for malformed input.
var ErrInvalidPermission = errors.New("invalid permission")

var knownActions = map[Action]bool{
	ActionCreate: true,
	ActionRead:   true,
	ActionUpdate: true,
	ActionDelete: true,
	ActionManage: true,
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return knownActions[a]
}

// Permission is an (action, resource) capability grant.
type Permission struct {
	Action   Action   `json:"action"`
	Resource Resource `json:"resource"`
}

// P is shorthand for building a Permission.
func P(a Action, r Resource) Permission {
	return Permission{Action: a, Resource: r}
}

// String returns "action:resource".
func (p Permission) String() string {
	return string(p.Action) + ":" + string(p.Resource)
}

// IsWildcard reports whether the grant matches more than one exact pair.
func (p Permission) IsWildcard() bool {
	return p.Action == Wildcard || p.Resource == Wildcard
}

// Matches reports whether the grant covers the requested pair.
func (p Permission) Matches(a Action, r Resource) bool {
	return (p.Action == Wildcard || p.Action == a) && (p.Resource == Wildcard || p.Resource == r)
}

// ParsePermission parses "action:resource" (as carried in session claims).
// Either side may be "*". The action must be known or "*".
func ParsePermission(s string) (Permission, error) {
	action, resource, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || action == "" || resource == "" {
		return Permission{}, ErrInvalidPermission
	}
	p := Permission{Action: Action(action), Resource: Resource(resource)}
	if p.Action != Wildcard && !p.Action.Valid() {
		return Permission{}, ErrInvalidPermission
	}
	return p, nil
}
