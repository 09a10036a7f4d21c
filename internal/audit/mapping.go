package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

var unknown = ActionResource{Action: "unknown", Resource: "unknown"}

// ParseRoute returns action and resource for an HTTP method and route template
// (e.g. PUT /v1/orgs/:org_id/policies/:policy_id -> update policy).
// Membership routes map to member_added, role_changed and member_removed on resource "membership".
// Authz routes map to their verb (check, roles, route, permissions) on resource "authz".
func ParseRoute(method, route string) ActionResource {
	segs := strings.Split(strings.Trim(route, "/"), "/")
	if len(segs) < 2 || segs[0] != "v1" {
		return unknown
	}
	segs = segs[1:]

	switch segs[0] {
	case "authz":
		if len(segs) == 2 {
			return ActionResource{Action: segs[1], Resource: "authz"}
		}
		return unknown
	case "webhooks":
		return ActionResource{Action: "receive", Resource: "webhook"}
	case "orgs":
		if len(segs) >= 3 && isParam(segs[1]) {
			segs = segs[2:]
		} else {
			return ActionResource{Action: methodToAction(method, len(segs) > 1), Resource: "organization"}
		}
	}

	collection := segs[0]
	byID := len(segs) > 1 && isParam(segs[1])
	if collection == "members" {
		switch {
		case method == http.MethodPost && !byID:
			return ActionResource{Action: "member_added", Resource: "membership"}
		case (method == http.MethodPut || method == http.MethodPatch) && byID:
			return ActionResource{Action: "role_changed", Resource: "membership"}
		case method == http.MethodDelete && byID:
			return ActionResource{Action: "member_removed", Resource: "membership"}
		}
		return ActionResource{Action: methodToAction(method, byID), Resource: "membership"}
	}
	return ActionResource{Action: methodToAction(method, byID), Resource: singular(collection)}
}

func isParam(seg string) bool {
	return strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*")
}

func methodToAction(method string, byID bool) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		if byID {
			return "get"
		}
		return "list"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// singular turns a collection segment into a resource name: audit-logs -> audit_log, policies -> policy.
func singular(collection string) string {
	s := strings.ReplaceAll(collection, "-", "_")
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}
