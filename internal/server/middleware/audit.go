package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/audit"
)

// skippedAuditResources are audited elsewhere: membership changes by the membership
// service with richer metadata, authz denials by the authorizer.
var skippedAuditResources = map[string]bool{
	"membership": true,
	"authz":      true,
	"webhook":    true,
}

// Audit records one audit entry after each successful mutating request of an authenticated caller.
// The entry is best-effort: failures are logged by the logger and do not fail the request.
func Audit(logger audit.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if logger == nil || !mutating(c.Request.Method) || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		u, ok := User(c)
		if !ok || u.OrganizationID == "" {
			return
		}
		ar := audit.ParseRoute(c.Request.Method, c.FullPath())
		if skippedAuditResources[ar.Resource] {
			return
		}
		orgID := c.Param("org_id")
		if orgID == "" {
			orgID = u.OrganizationID
		}
		logger.LogEvent(c.Request.Context(), orgID, u.UserID, ar.Action, ar.Resource, "")
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
