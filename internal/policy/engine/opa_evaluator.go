package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"fleet-access-control/internal/policy/repository"
)

const denyQuery = "data.fleet.authz.deny"

// Default overlay applied to orgs without enabled policies.
const defaultRegoPolicy = `package fleet.authz

deny contains "drivers may only update loads assigned to them" if {
	input.user.role == "driver"
	input.action == "update"
	input.resource.type == "load"
	input.resource.id != ""
	input.resource.assignee_id != input.user.id
}

deny contains "only the owner or an administrator may delete another user's document" if {
	input.action == "delete"
	input.resource.type == "document"
	input.resource.owner_id != ""
	input.resource.owner_id != input.user.id
	not privileged
}

privileged if input.user.role == "owner"

privileged if input.user.role == "admin"
`

// User is the caller part of the overlay input.
type User struct {
	ID     string
	OrgID  string
	Role   string
	Active bool
}

// Resource is the target part of the overlay input. Empty fields mean unknown.
type Resource struct {
	Type       string
	ID         string
	OrgID      string
	OwnerID    string
	AssigneeID string
}

// Input is what a deny rule sees as input.
type Input struct {
	User     User
	Action   string
	Resource Resource
}

// Result is the overlay outcome. Reasons are the messages of every matching deny rule, sorted.
type Result struct {
	Denied  bool
	Reasons []string
}

// Evaluator evaluates an org's deny overlay.
type Evaluator interface {
	Evaluate(ctx context.Context, in Input) (Result, error)
}

// OPAEvaluator evaluates per-org Rego deny rules. Prepared queries are cached per org
// until Invalidate is called for that org.
type OPAEvaluator struct {
	policyRepo repository.Repository

	mu       sync.RWMutex
	prepared map[string]*rego.PreparedEvalQuery
}

// NewOPAEvaluator returns an OPA-based overlay evaluator. A nil repo applies the default policy to every org.
func NewOPAEvaluator(policyRepo repository.Repository) *OPAEvaluator {
	return &OPAEvaluator{policyRepo: policyRepo, prepared: make(map[string]*rego.PreparedEvalQuery)}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Does not call the policy repo or database. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	pq, err := prepare(ctx, []string{defaultRegoPolicy})
	if err != nil {
		return err
	}
	_, err = eval(ctx, pq, Input{User: User{ID: "health", Role: "viewer", Active: true}, Action: "read", Resource: Resource{Type: "load"}})
	return err
}

// Validate reports whether rules compile as a standalone overlay module.
func Validate(rules string) error {
	_, err := ast.CompileModules(map[string]string{"policy_0.rego": rules})
	if err != nil {
		return fmt.Errorf("compile policy: %w", err)
	}
	return nil
}

// Evaluate runs the overlay of in.User.OrgID against in. Errors mean the overlay
// could not be decided; callers must treat that as a denial.
func (e *OPAEvaluator) Evaluate(ctx context.Context, in Input) (Result, error) {
	pq, err := e.preparedFor(ctx, in.User.OrgID)
	if err != nil {
		return Result{}, err
	}
	return eval(ctx, pq, in)
}

// Invalidate drops the cached compiled policies of orgID.
func (e *OPAEvaluator) Invalidate(orgID string) {
	e.mu.Lock()
	delete(e.prepared, orgID)
	e.mu.Unlock()
}

func (e *OPAEvaluator) preparedFor(ctx context.Context, orgID string) (*rego.PreparedEvalQuery, error) {
	e.mu.RLock()
	pq, ok := e.prepared[orgID]
	e.mu.RUnlock()
	if ok {
		return pq, nil
	}

	var policies []string
	if e.policyRepo != nil && orgID != "" {
		enabled, err := e.policyRepo.GetEnabledPoliciesByOrg(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("load policies for org %s: %w", orgID, err)
		}
		for _, p := range enabled {
			if p.Enabled && p.Rules != "" {
				policies = append(policies, p.Rules)
			}
		}
	}
	if len(policies) == 0 {
		policies = []string{defaultRegoPolicy}
	}

	pq, err := prepare(ctx, policies)
	if err != nil {
		log.Printf("policy: org %s: %v", orgID, err)
		return nil, err
	}
	e.mu.Lock()
	e.prepared[orgID] = pq
	e.mu.Unlock()
	return pq, nil
}

func prepare(ctx context.Context, policies []string) (*rego.PreparedEvalQuery, error) {
	modules := make(map[string]string, len(policies))
	for i, p := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = p
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	pq, err := rego.New(
		rego.Query(denyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policies: %w", err)
	}
	return &pq, nil
}

func eval(ctx context.Context, pq *rego.PreparedEvalQuery, in Input) (Result, error) {
	rs, err := pq.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return Result{}, fmt.Errorf("eval policies: %w", err)
	}
	// An undefined deny set means no rule matched.
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Result{}, nil
	}
	set, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return Result{}, fmt.Errorf("eval policies: deny is %T, want a set", rs[0].Expressions[0].Value)
	}
	var out Result
	for _, v := range set {
		msg, ok := v.(string)
		if !ok {
			msg = fmt.Sprint(v)
		}
		out.Reasons = append(out.Reasons, msg)
	}
	sort.Strings(out.Reasons)
	out.Denied = len(out.Reasons) > 0
	return out, nil
}

func buildInput(in Input) map[string]interface{} {
	return map[string]interface{}{
		"user": map[string]interface{}{
			"id":     in.User.ID,
			"org_id": in.User.OrgID,
			"role":   in.User.Role,
			"active": in.User.Active,
		},
		"action": in.Action,
		"resource": map[string]interface{}{
			"type":        in.Resource.Type,
			"id":          in.Resource.ID,
			"org_id":      in.Resource.OrgID,
			"owner_id":    in.Resource.OwnerID,
			"assignee_id": in.Resource.AssigneeID,
		},
	}
}
