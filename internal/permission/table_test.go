package permission

import (
	"errors"
	"testing"
)

func TestDefaultTable_EveryRoleNonEmpty(t *testing.T) {
	table := DefaultTable()
	want := []RoleName{RoleAccountant, RoleAdmin, RoleComplianceOfficer, RoleDispatcher, RoleDriver, RoleOwner, RoleViewer}
	got := table.Roles()
	if len(got) != len(want) {
		t.Fatalf("roles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("roles[%d] = %q, want %q", i, got[i], want[i])
		}
		role, ok := table.Role(want[i])
		if !ok {
			t.Fatalf("role %q missing", want[i])
		}
		if role.Kind == KindScoped && len(role.Grants) == 0 {
			t.Errorf("role %q has no grants", want[i])
		}
	}
	for _, name := range []RoleName{RoleOwner, RoleAdmin} {
		role, _ := table.Role(name)
		if role.Kind != KindUnrestricted {
			t.Errorf("%s kind = %s, want unrestricted", name, role.Kind)
		}
	}
}

func TestNewTable_Validation(t *testing.T) {
	viewer := Scoped(RoleViewer, P(ActionRead, ResourceLoad))
	testCases := []struct {
		name    string
		roles   []Role
		wantErr error
	}{
		{"duplicate", []Role{viewer, viewer}, ErrDuplicateRole},
		{"empty scoped role", []Role{viewer, Scoped(RoleDriver)}, ErrEmptyRole},
		{"no fallback", []Role{Unrestricted(RoleAdmin)}, ErrNoFallbackRole},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTable(tc.roles...)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("NewTable err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if _, err := NewTable(viewer, Scoped(RoleDriver, P("fly", ResourceLoad))); err == nil {
		t.Error("NewTable should reject unknown action")
	}
	if _, err := NewTable(viewer, Scoped(RoleDriver, P(ActionRead, ""))); err == nil {
		t.Error("NewTable should reject empty resource")
	}
	if _, err := NewTable(viewer, Unrestricted(RoleOwner)); err != nil {
		t.Errorf("unrestricted role without grants should be valid: %v", err)
	}
}

func TestParseRole(t *testing.T) {
	testCases := []struct {
		in     string
		want   RoleName
		wantOK bool
	}{
		{"dispatcher", RoleDispatcher, true},
		{" Admin ", RoleAdmin, true},
		{"org:compliance_officer", RoleComplianceOfficer, true},
		{"", "", false},
		{"superuser", "", false},
	}
	for _, tc := range testCases {
		got, ok := ParseRole(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestParsePermission(t *testing.T) {
	testCases := []struct {
		in      string
		want    Permission
		wantErr bool
	}{
		{"read:load", P(ActionRead, ResourceLoad), false},
		{" create:invoice ", P(ActionCreate, ResourceInvoice), false},
		{"*:report", Permission{Action: Wildcard, Resource: ResourceReport}, false},
		{"read:*", Permission{Action: ActionRead, Resource: Wildcard}, false},
		{"fly:load", Permission{}, true},
		{"read", Permission{}, true},
		{":load", Permission{}, true},
		{"read:", Permission{}, true},
	}
	for _, tc := range testCases {
		got, err := ParsePermission(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParsePermission(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePermission(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDecision_Err(t *testing.T) {
	if err := Allow().Err(); err != nil {
		t.Errorf("Allow().Err() = %v, want nil", err)
	}
	err := Forbidden("role viewer may not delete load").Err()
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Err() = %T, want *AuthorizationError", err)
	}
	if authErr.Reason != ReasonForbidden {
		t.Errorf("reason = %q, want %q", authErr.Reason, ReasonForbidden)
	}
	if err.Error() != "forbidden: role viewer may not delete load" {
		t.Errorf("Error() = %q", err.Error())
	}
	if Unauthorized("").Err().Error() != "unauthorized" {
		t.Errorf("Error() without detail = %q", Unauthorized("").Err().Error())
	}
}
