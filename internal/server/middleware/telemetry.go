package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/telemetry"
	"fleet-access-control/internal/telemetry/domain"
)

// httpRequestMetadata is the metadata of http_request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Route      string `json:"route"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// Telemetry emits an http_request event after each request. Best-effort: emits are async and
// failures are logged. If emitter is nil the middleware no-ops. skipRoutes are route templates
// not to emit (e.g. health probes).
func Telemetry(emitter telemetry.EventEmitter, skipRoutes map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if emitter == nil || skipRoutes[route] {
			return
		}
		meta := httpRequestMetadata{
			Method:     c.Request.Method,
			Route:      route,
			StatusCode: c.Writer.Status(),
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   c.ClientIP(),
		}
		u, _ := User(c)
		orgID := u.OrganizationID
		if orgID == "" {
			orgID = c.Param("org_id")
		}
		telemetry.EmitAsync(emitter, domain.NewEvent(orgID, u.UserID, u.SessionID, domain.EventTypeHTTPRequest, "http_middleware", meta))
	}
}
