package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"fleet-access-control/internal/audit"
	audithandler "fleet-access-control/internal/audit/handler"
	"fleet-access-control/internal/authz"
	authzhandler "fleet-access-control/internal/authz/handler"
	healthhandler "fleet-access-control/internal/health/handler"
	membershiphandler "fleet-access-control/internal/membership/handler"
	orghandler "fleet-access-control/internal/organization/handler"
	"fleet-access-control/internal/permission"
	policyhandler "fleet-access-control/internal/policy/handler"
	"fleet-access-control/internal/server/middleware"
	"fleet-access-control/internal/telemetry"
	"fleet-access-control/internal/webhook"
)

// Deps holds the handlers and middleware dependencies of the HTTP API.
type Deps struct {
	// ServiceName names the otelgin spans. Empty disables HTTP tracing.
	ServiceName string
	Authorizer  *authz.Authorizer
	Tokens      middleware.TokenVerifier
	Identities  middleware.IdentityResolver
	// Checker backs GET /readyz. If nil, readiness always passes.
	Checker *healthhandler.Checker
	// Webhook receives identity-provider events. If nil, the webhook route is not mounted.
	Webhook *webhook.Handler
	// AuditLogger records mutating admin requests. If nil, no requests are audited.
	AuditLogger audit.AuditLogger
	// Emitter receives http_request events. If nil, requests are not emitted.
	Emitter telemetry.EventEmitter

	Authz       *authzhandler.Handler
	Orgs        *orghandler.Handler
	Memberships *membershiphandler.Handler
	Policies    *policyhandler.Handler
	AuditLogs   *audithandler.Handler
}

// untracedRoutes are probe routes that emit no http_request events.
var untracedRoutes = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// NewRouter builds the HTTP API.
//
// Route → guard mapping:
//   - /healthz, /readyz                  → public
//   - POST /v1/webhooks/identity         → webhook signature
//   - /v1/authz/*                        → any authenticated caller
//   - GET /v1/orgs/:org_id               → read:organization
//   - /v1/orgs/:org_id/members           → create|read|update|delete:user
//   - /v1/orgs/:org_id/policies          → manage:settings
//   - GET /v1/orgs/:org_id/audit-logs    → read:settings
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if d.ServiceName != "" {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	r.Use(middleware.RequestContext(), middleware.Telemetry(d.Emitter, untracedRoutes))

	checker := d.Checker
	if checker == nil {
		checker = healthhandler.NewChecker(nil, nil)
	}
	r.GET("/healthz", healthhandler.Live)
	r.GET("/readyz", healthhandler.Ready(checker))
	if d.Webhook != nil {
		r.POST("/v1/webhooks/identity", d.Webhook.Receive)
	}

	v1 := r.Group("/v1", middleware.Auth(d.Tokens, d.Identities))
	if d.AuditLogger != nil {
		v1.Use(middleware.Audit(d.AuditLogger))
	}
	if d.Authz != nil {
		d.Authz.Register(v1.Group("/authz"))
	}

	a := d.Authorizer
	org := v1.Group("/orgs/:org_id")
	if d.Orgs != nil {
		org.GET("", middleware.RequirePermission(a, permission.ActionRead, permission.ResourceOrganization), d.Orgs.Get)
	}
	if h := d.Memberships; h != nil {
		m := org.Group("/members")
		m.GET("", middleware.RequirePermission(a, permission.ActionRead, permission.ResourceUser), h.List)
		m.GET("/:user_id", middleware.RequirePermission(a, permission.ActionRead, permission.ResourceUser), h.Get)
		m.POST("", middleware.RequirePermission(a, permission.ActionCreate, permission.ResourceUser), h.Add)
		m.PUT("/:user_id", middleware.RequirePermission(a, permission.ActionUpdate, permission.ResourceUser), h.ChangeRole)
		m.DELETE("/:user_id", middleware.RequirePermission(a, permission.ActionDelete, permission.ResourceUser), h.Remove)
	}
	if h := d.Policies; h != nil {
		p := org.Group("/policies", middleware.RequirePermission(a, permission.ActionManage, permission.ResourceSettings))
		p.GET("", h.List)
		p.GET("/:policy_id", h.Get)
		p.POST("", h.Create)
		p.PUT("/:policy_id", h.Update)
		p.DELETE("/:policy_id", h.Delete)
	}
	if d.AuditLogs != nil {
		org.GET("/audit-logs", middleware.RequirePermission(a, permission.ActionRead, permission.ResourceSettings), d.AuditLogs.List)
	}
	return r
}
