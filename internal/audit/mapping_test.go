package audit

import (
	"testing"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		method, route string
		want          ActionResource
	}{
		{"GET", "/v1/orgs/:org_id/members", ActionResource{"list", "membership"}},
		{"GET", "/v1/orgs/:org_id/members/:user_id", ActionResource{"get", "membership"}},
		{"POST", "/v1/orgs/:org_id/members", ActionResource{"member_added", "membership"}},
		{"PUT", "/v1/orgs/:org_id/members/:user_id", ActionResource{"role_changed", "membership"}},
		{"DELETE", "/v1/orgs/:org_id/members/:user_id", ActionResource{"member_removed", "membership"}},
		{"GET", "/v1/orgs/:org_id/policies", ActionResource{"list", "policy"}},
		{"POST", "/v1/orgs/:org_id/policies", ActionResource{"create", "policy"}},
		{"PUT", "/v1/orgs/:org_id/policies/:policy_id", ActionResource{"update", "policy"}},
		{"DELETE", "/v1/orgs/:org_id/policies/:policy_id", ActionResource{"delete", "policy"}},
		{"GET", "/v1/orgs/:org_id/audit-logs", ActionResource{"list", "audit_log"}},
		{"POST", "/v1/authz/check", ActionResource{"check", "authz"}},
		{"GET", "/v1/authz/permissions", ActionResource{"permissions", "authz"}},
		{"POST", "/v1/webhooks/identity", ActionResource{"receive", "webhook"}},
		{"GET", "/v1/orgs/:org_id", ActionResource{"get", "organization"}},
		{"GET", "/healthz", ActionResource{"unknown", "unknown"}},
		{"GET", "", ActionResource{"unknown", "unknown"}},
	}
	for _, tt := range tests {
		got := ParseRoute(tt.method, tt.route)
		if got != tt.want {
			t.Errorf("ParseRoute(%s, %q) = %+v, want %+v", tt.method, tt.route, got, tt.want)
		}
	}
}

func TestSingular(t *testing.T) {
	for in, want := range map[string]string{
		"policies":   "policy",
		"audit-logs": "audit_log",
		"loads":      "load",
		"settings":   "setting",
		"billing":    "billing",
	} {
		if got := singular(in); got != want {
			t.Errorf("singular(%q) = %q, want %q", in, got, want)
		}
	}
}
