package engine

import (
	"context"
	"errors"
	"testing"

	"fleet-access-control/internal/policy/domain"
	"fleet-access-control/internal/policy/repository"
)

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	// HealthCheck does not use the repo.
	e := NewOPAEvaluator(nil)
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

// mockPolicyRepo implements repository.Repository for tests.
type mockPolicyRepo struct {
	policies map[string][]*domain.Policy
	err      error
	loads    int
}

var _ repository.Repository = (*mockPolicyRepo)(nil)

func (m *mockPolicyRepo) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	return nil, nil
}

func (m *mockPolicyRepo) ListByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return m.policies[orgID], nil
}

func (m *mockPolicyRepo) GetEnabledPoliciesByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	m.loads++
	if m.err != nil {
		return nil, m.err
	}
	return m.policies[orgID], nil
}

func (m *mockPolicyRepo) Create(ctx context.Context, p *domain.Policy) error {
	return nil
}

func (m *mockPolicyRepo) Update(ctx context.Context, p *domain.Policy) error {
	return nil
}

func (m *mockPolicyRepo) Delete(ctx context.Context, id string) error {
	return nil
}

func driverUpdate(assignee string) Input {
	return Input{
		User:     User{ID: "u-driver", OrgID: "org-1", Role: "driver", Active: true},
		Action:   "update",
		Resource: Resource{Type: "load", ID: "load-1", OrgID: "org-1", AssigneeID: assignee},
	}
}

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	e := NewOPAEvaluator(&mockPolicyRepo{})
	ctx := context.Background()

	tests := []struct {
		name   string
		in     Input
		denied bool
	}{
		{"driver updates own load", driverUpdate("u-driver"), false},
		{"driver updates other load", driverUpdate("u-other"), true},
		{"driver updates unassigned load", driverUpdate(""), true},
		{"driver updates without resource id", Input{
			User: User{ID: "u-driver", OrgID: "org-1", Role: "driver"}, Action: "update", Resource: Resource{Type: "load"},
		}, false},
		{"dispatcher updates any load", Input{
			User: User{ID: "u-disp", OrgID: "org-1", Role: "dispatcher"}, Action: "update",
			Resource: Resource{Type: "load", ID: "load-1", AssigneeID: "u-driver"},
		}, false},
		{"delete other user's document", Input{
			User: User{ID: "u1", OrgID: "org-1", Role: "compliance_officer"}, Action: "delete",
			Resource: Resource{Type: "document", ID: "d1", OwnerID: "u2"},
		}, true},
		{"delete own document", Input{
			User: User{ID: "u1", OrgID: "org-1", Role: "compliance_officer"}, Action: "delete",
			Resource: Resource{Type: "document", ID: "d1", OwnerID: "u1"},
		}, false},
		{"admin deletes other user's document", Input{
			User: User{ID: "u1", OrgID: "org-1", Role: "admin"}, Action: "delete",
			Resource: Resource{Type: "document", ID: "d1", OwnerID: "u2"},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Evaluate(ctx, tt.in)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if res.Denied != tt.denied {
				t.Errorf("Denied = %v, want %v (reasons %v)", res.Denied, tt.denied, res.Reasons)
			}
			if res.Denied && len(res.Reasons) == 0 {
				t.Error("denied result should carry a reason")
			}
		})
	}
}

const noDeleteLoads = `package fleet.authz

deny contains "loads cannot be deleted" if {
	input.action == "delete"
	input.resource.type == "load"
}
`

func TestOPAEvaluator_OrgPolicyReplacesDefault(t *testing.T) {
	repo := &mockPolicyRepo{policies: map[string][]*domain.Policy{
		"org-1": {{ID: "p1", OrgID: "org-1", Name: "no load deletes", Rules: noDeleteLoads, Enabled: true}},
	}}
	e := NewOPAEvaluator(repo)
	ctx := context.Background()

	res, err := e.Evaluate(ctx, Input{User: User{ID: "u1", OrgID: "org-1", Role: "admin"}, Action: "delete", Resource: Resource{Type: "load"}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Denied || len(res.Reasons) != 1 || res.Reasons[0] != "loads cannot be deleted" {
		t.Errorf("result = %+v, want single org denial", res)
	}

	// The default driver rule no longer applies to org-1.
	res, err = e.Evaluate(ctx, driverUpdate("u-other"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Denied {
		t.Errorf("org policy should replace default, got %+v", res)
	}
}

func TestOPAEvaluator_CachesPerOrgUntilInvalidated(t *testing.T) {
	repo := &mockPolicyRepo{policies: map[string][]*domain.Policy{}}
	e := NewOPAEvaluator(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.Evaluate(ctx, driverUpdate("u-driver")); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}
	if repo.loads != 1 {
		t.Errorf("repo loads = %d, want 1", repo.loads)
	}

	repo.policies["org-1"] = []*domain.Policy{{ID: "p1", OrgID: "org-1", Rules: noDeleteLoads, Enabled: true}}
	e.Invalidate("org-1")
	res, err := e.Evaluate(ctx, driverUpdate("u-other"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if repo.loads != 2 {
		t.Errorf("repo loads = %d, want 2", repo.loads)
	}
	if res.Denied {
		t.Error("new org policy should be in effect after Invalidate")
	}
}

func TestOPAEvaluator_RepoErrorReturnsError(t *testing.T) {
	e := NewOPAEvaluator(&mockPolicyRepo{err: errors.New("db down")})
	if _, err := e.Evaluate(context.Background(), driverUpdate("u-driver")); err == nil {
		t.Fatal("expected error when policies cannot be loaded")
	}
}

func TestOPAEvaluator_BrokenPolicyReturnsError(t *testing.T) {
	repo := &mockPolicyRepo{policies: map[string][]*domain.Policy{
		"org-1": {{ID: "p1", OrgID: "org-1", Rules: "package fleet.authz\n\ndeny contains if {", Enabled: true}},
	}}
	e := NewOPAEvaluator(repo)
	if _, err := e.Evaluate(context.Background(), driverUpdate("u-driver")); err == nil {
		t.Fatal("expected error for uncompilable policy")
	}
}

func TestOPAEvaluator_DisabledPoliciesIgnored(t *testing.T) {
	repo := &mockPolicyRepo{policies: map[string][]*domain.Policy{
		"org-1": {{ID: "p1", OrgID: "org-1", Rules: noDeleteLoads, Enabled: false}},
	}}
	e := NewOPAEvaluator(repo)
	res, err := e.Evaluate(context.Background(), driverUpdate("u-other"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Denied {
		t.Error("default policy should apply when the only policy is disabled")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(noDeleteLoads); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	if err := Validate("package fleet.authz\n\ndeny contains"); err == nil {
		t.Error("Validate(invalid) = nil, want error")
	}
}
