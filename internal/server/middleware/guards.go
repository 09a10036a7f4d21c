package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/authz"
	"fleet-access-control/internal/permission"
)

// RequirePermission admits callers allowed to perform action on resource. When the route has
// an :org_id parameter it is the target org, so callers from another tenant are forbidden.
func RequirePermission(a *authz.Authorizer, action permission.Action, resource permission.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := User(c)
		d := a.Authorize(c.Request.Context(), u, authz.Request{
			Action:     action,
			Resource:   resource,
			Attributes: authz.Attributes{OrgID: c.Param("org_id")},
		})
		if !d.Allowed {
			abortDenied(c, d)
			return
		}
		c.Next()
	}
}

// RequireRoles admits callers whose role is one of roles. Owner and admin always pass.
func RequireRoles(a *authz.Authorizer, roles ...permission.RoleName) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := User(c)
		d := a.AuthorizeRoles(c.Request.Context(), u, roles)
		if d.Allowed && c.Param("org_id") != "" && !permission.BelongsToOrganization(u, c.Param("org_id")) {
			d = permission.Forbidden(authz.DetailCrossTenant)
		}
		if !d.Allowed {
			abortDenied(c, d)
			return
		}
		c.Next()
	}
}

// StatusFor maps a denial to 401 (identity problem) or 403.
func StatusFor(d permission.Decision) int {
	if d.Reason == permission.ReasonUnauthorized {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

func abortDenied(c *gin.Context, d permission.Decision) {
	c.AbortWithStatusJSON(StatusFor(d), gin.H{"error": string(d.Reason), "detail": d.Detail})
}
