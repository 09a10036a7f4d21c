// Package middleware holds the gin middleware of the HTTP API and the request-context
// helpers handlers use to read the caller.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/permission"
)

type contextKey struct{ name string }

var (
	userContextKey = contextKey{"user_context"}
	clientIPKey    = contextKey{"client_ip"}
)

// WithUserContext returns a context carrying the resolved caller.
func WithUserContext(ctx context.Context, u permission.UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserContextFrom returns the caller stored by Auth and true if set; otherwise a zero value, false.
func UserContextFrom(ctx context.Context) (permission.UserContext, bool) {
	u, ok := ctx.Value(userContextKey).(permission.UserContext)
	return u, ok
}

// WithClientIP returns a context carrying the client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the client IP stored by RequestContext, or "unknown". It is the audit IP extractor.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}

// RequestContext stores the client IP in the request context so code below gin (audit logger) can read it.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// User returns the caller of an authenticated route.
func User(c *gin.Context) (permission.UserContext, bool) {
	return UserContextFrom(c.Request.Context())
}
