// Package handler exposes the authorizer over HTTP so other services can ask about their caller.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/authz"
	"fleet-access-control/internal/permission"
	"fleet-access-control/internal/server/middleware"
)

// Handler serves /v1/authz. Every route runs behind middleware.Auth and decides for the caller.
type Handler struct {
	authorizer *authz.Authorizer
}

// NewHandler returns an authz HTTP handler.
func NewHandler(a *authz.Authorizer) *Handler {
	return &Handler{authorizer: a}
}

// Register mounts the authz routes on g.
func (h *Handler) Register(g gin.IRoutes) {
	g.POST("/check", h.Check)
	g.POST("/roles", h.Roles)
	g.POST("/route", h.Route)
	g.GET("/permissions", h.Permissions)
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

type routeRequest struct {
	Path string `json:"path" binding:"required"`
}

type permissionsResponse struct {
	UserID         string   `json:"user_id"`
	OrganizationID string   `json:"organization_id"`
	Role           string   `json:"role"`
	Permissions    []string `json:"permissions"`
}

// Check answers POST /v1/authz/check. A denial is a 200 with allowed=false; only bad input is an error.
func (h *Handler) Check(c *gin.Context) {
	var req authz.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !req.Action.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown action " + string(req.Action)})
		return
	}
	if req.Resource == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "resource is required"})
		return
	}
	u, _ := middleware.User(c)
	c.JSON(http.StatusOK, h.authorizer.Authorize(c.Request.Context(), u, req))
}

// Roles answers POST /v1/authz/roles.
func (h *Handler) Roles(c *gin.Context) {
	var req rolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	roles := make([]permission.RoleName, len(req.Roles))
	for i, r := range req.Roles {
		roles[i] = permission.RoleName(r)
	}
	u, _ := middleware.User(c)
	c.JSON(http.StatusOK, h.authorizer.AuthorizeRoles(c.Request.Context(), u, roles))
}

// Route answers POST /v1/authz/route.
func (h *Handler) Route(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	u, _ := middleware.User(c)
	c.JSON(http.StatusOK, h.authorizer.AuthorizeRoute(c.Request.Context(), u, req.Path))
}

// Permissions answers GET /v1/authz/permissions with the caller's effective grants.
func (h *Handler) Permissions(c *gin.Context) {
	u, _ := middleware.User(c)
	perms := h.authorizer.Permissions(u)
	out := permissionsResponse{
		UserID:         u.UserID,
		OrganizationID: u.OrganizationID,
		Role:           string(h.authorizer.Resolver().EffectiveRole(u)),
		Permissions:    make([]string, len(perms)),
	}
	for i, p := range perms {
		out.Permissions[i] = p.String()
	}
	c.JSON(http.StatusOK, out)
}
