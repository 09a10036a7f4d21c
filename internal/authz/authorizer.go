// Package authz is the request-path authorizer: the static role table, the tenant
// boundary and the per-org policy overlay, with every decision counted and published.
package authz

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"fleet-access-control/internal/audit"
	"fleet-access-control/internal/permission"
	"fleet-access-control/internal/policy/engine"
	"fleet-access-control/internal/telemetry"
	"fleet-access-control/internal/telemetry/domain"
)

// Denial details set by the authorizer rather than the static table.
const (
	DetailCrossTenant = "cross-tenant access"
	DetailPolicyError = "policy_error"
)

// Attributes describe the target instance. Empty fields are unknown.
type Attributes struct {
	ResourceID string `json:"resource_id,omitempty"`
	OrgID      string `json:"org_id,omitempty"`
	OwnerID    string `json:"owner_id,omitempty"`
	AssigneeID string `json:"assignee_id,omitempty"`
}

// Request is one action on one resource.
type Request struct {
	Action     permission.Action   `json:"action"`
	Resource   permission.Resource `json:"resource"`
	Attributes Attributes          `json:"attributes"`
}

// Overlay evaluates org deny rules. *engine.OPAEvaluator implements it.
type Overlay interface {
	Evaluate(ctx context.Context, in engine.Input) (engine.Result, error)
}

// DecisionRecorder counts decisions. *otel.DecisionCounter implements it.
type DecisionRecorder interface {
	Record(ctx context.Context, allowed bool, reason, resource string)
}

// Authorizer decides requests. The zero value is not usable; use NewAuthorizer.
type Authorizer struct {
	resolver *permission.Resolver
	routes   *permission.RouteTable
	overlay  Overlay
	emitter  telemetry.EventEmitter
	metrics  DecisionRecorder
	audit    audit.AuditLogger
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithOverlay adds the policy overlay consulted after the static table allows a request.
func WithOverlay(o Overlay) Option { return func(a *Authorizer) { a.overlay = o } }

// WithEmitter publishes every decision as an authz_decision event.
func WithEmitter(e telemetry.EventEmitter) Option { return func(a *Authorizer) { a.emitter = e } }

// WithMetrics counts every decision.
func WithMetrics(m DecisionRecorder) Option { return func(a *Authorizer) { a.metrics = m } }

// WithAuditLogger records every denial.
func WithAuditLogger(l audit.AuditLogger) Option { return func(a *Authorizer) { a.audit = l } }

// WithRoutes replaces the page route table.
func WithRoutes(t *permission.RouteTable) Option { return func(a *Authorizer) { a.routes = t } }

// NewAuthorizer returns an authorizer over resolver and the default route table.
func NewAuthorizer(resolver *permission.Resolver, opts ...Option) *Authorizer {
	a := &Authorizer{resolver: resolver, routes: permission.DefaultRoutes()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolver returns the static resolver.
func (a *Authorizer) Resolver() *permission.Resolver {
	return a.resolver
}

// Authorize decides req for u. The static table is checked first, then the tenant
// boundary when the target carries an org id, then the overlay. An overlay that
// cannot be evaluated denies.
func (a *Authorizer) Authorize(ctx context.Context, u permission.UserContext, req Request) permission.Decision {
	d := a.resolver.Check(u, req.Action, req.Resource)
	if d.Allowed && req.Attributes.OrgID != "" && !permission.BelongsToOrganization(u, req.Attributes.OrgID) {
		d = permission.Forbidden(DetailCrossTenant)
	}
	if d.Allowed && a.overlay != nil {
		d = a.evaluateOverlay(ctx, u, req)
	}
	a.record(ctx, u, decisionEvent{
		Kind:       "check",
		Action:     string(req.Action),
		Resource:   string(req.Resource),
		ResourceID: req.Attributes.ResourceID,
	}, d)
	return d
}

func (a *Authorizer) evaluateOverlay(ctx context.Context, u permission.UserContext, req Request) permission.Decision {
	orgID := req.Attributes.OrgID
	if orgID == "" {
		orgID = u.OrganizationID
	}
	res, err := a.overlay.Evaluate(ctx, engine.Input{
		User: engine.User{
			ID:     u.UserID,
			OrgID:  u.OrganizationID,
			Role:   string(a.resolver.EffectiveRole(u)),
			Active: u.IsActive,
		},
		Action: string(req.Action),
		Resource: engine.Resource{
			Type:       string(req.Resource),
			ID:         req.Attributes.ResourceID,
			OrgID:      orgID,
			OwnerID:    req.Attributes.OwnerID,
			AssigneeID: req.Attributes.AssigneeID,
		},
	})
	if err != nil {
		log.Printf("authz: policy overlay for org %s: %v", u.OrganizationID, err)
		return permission.Forbidden(DetailPolicyError)
	}
	if res.Denied {
		return permission.Forbidden(strings.Join(res.Reasons, "; "))
	}
	return permission.Allow()
}

// AuthorizeRoles allows u when its role is one of roles; owner and admin always pass.
func (a *Authorizer) AuthorizeRoles(ctx context.Context, u permission.UserContext, roles []permission.RoleName) permission.Decision {
	d := a.resolver.AuthorizeRoles(u, roles)
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	a.record(ctx, u, decisionEvent{Kind: "roles", Resource: "role", Roles: names}, d)
	return d
}

// AuthorizeRoute decides whether u may open the page at path using the route table.
func (a *Authorizer) AuthorizeRoute(ctx context.Context, u permission.UserContext, path string) permission.Decision {
	d := a.resolver.CheckRoute(a.routes, u, path)
	a.record(ctx, u, decisionEvent{Kind: "route", Resource: "route", Path: path}, d)
	return d
}

// Permissions lists what u is granted.
func (a *Authorizer) Permissions(u permission.UserContext) []permission.Permission {
	return a.resolver.Permissions(u)
}

// decisionEvent is the metadata of authz_decision events and denial audit entries.
type decisionEvent struct {
	Kind       string   `json:"kind"`
	Action     string   `json:"action,omitempty"`
	Resource   string   `json:"resource"`
	ResourceID string   `json:"resource_id,omitempty"`
	Path       string   `json:"path,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	Allowed    bool     `json:"allowed"`
	Reason     string   `json:"reason"`
	Detail     string   `json:"detail,omitempty"`
}

func (a *Authorizer) record(ctx context.Context, u permission.UserContext, ev decisionEvent, d permission.Decision) {
	ev.Allowed = d.Allowed
	ev.Reason = string(d.Reason)
	ev.Detail = d.Detail

	if a.metrics != nil {
		a.metrics.Record(ctx, d.Allowed, ev.Reason, ev.Resource)
	}
	telemetry.EmitAsync(a.emitter, domain.NewEvent(u.OrganizationID, u.UserID, u.SessionID, domain.EventTypeAuthzDecision, "authz", ev))
	if !d.Allowed && a.audit != nil {
		meta, _ := json.Marshal(ev)
		a.audit.LogEvent(ctx, u.OrganizationID, u.UserID, "access_denied", ev.Resource, string(meta))
	}
}
