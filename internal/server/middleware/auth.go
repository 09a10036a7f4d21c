package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/permission"
	"fleet-access-control/internal/security"
)

const bearerPrefix = "bearer "

// TokenVerifier verifies session tokens. *security.TokenVerifier implements it.
type TokenVerifier interface {
	Verify(token string) (*security.SessionClaims, error)
}

// IdentityResolver builds the caller from verified claims. *identity.Resolver implements it.
type IdentityResolver interface {
	Resolve(ctx context.Context, claims *security.SessionClaims) (permission.UserContext, error)
}

// Auth validates the Bearer session token and stores the resolved caller in the request context.
// A missing or invalid token is 401. A resolver failure is 503 so a mirror outage never admits anyone.
func Auth(tokens TokenVerifier, identities IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
			return
		}
		claims, err := tokens.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
			return
		}
		u, err := identities.Resolve(c.Request.Context(), claims)
		if err != nil {
			log.Printf("auth: resolve user %s: %v", claims.Subject, err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "identity unavailable"})
			return
		}
		c.Request = c.Request.WithContext(WithUserContext(c.Request.Context(), u))
		c.Next()
	}
}

// extractBearer returns the token of an "Authorization: Bearer <token>" header, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
