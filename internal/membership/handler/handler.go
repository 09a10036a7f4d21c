// Package handler serves the membership admin API under /v1/orgs/:org_id/members.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/membership/domain"
	"fleet-access-control/internal/membership/service"
	orgdomain "fleet-access-control/internal/organization/domain"
	"fleet-access-control/internal/permission"
	"fleet-access-control/internal/server/middleware"
	userdomain "fleet-access-control/internal/user/domain"
)

// Memberships is the membership service used by the handler. *service.Service implements it.
type Memberships interface {
	Get(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	List(ctx context.Context, orgID string) ([]*domain.Membership, error)
	Upsert(ctx context.Context, actorID, userID, orgID, role string) (*domain.Membership, error)
	ChangeRole(ctx context.Context, actorID, userID, orgID, role string) (*domain.Membership, error)
	Remove(ctx context.Context, actorID, userID, orgID string) error
}

// Users looks up mirrored users.
type Users interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Orgs creates placeholder organization rows.
type Orgs interface {
	Ensure(ctx context.Context, o *orgdomain.Org) error
}

// Handler serves membership routes. Route middleware decides who may manage members;
// granting the owner role or touching an existing owner additionally requires an owner.
type Handler struct {
	memberships Memberships
	users       Users
	orgs        Orgs
}

// NewHandler returns a membership handler. users and orgs may be nil; then adding a member
// does not check the user mirror or create the org row.
func NewHandler(memberships Memberships, users Users, orgs Orgs) *Handler {
	return &Handler{memberships: memberships, users: users, orgs: orgs}
}

type addRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

// List serves GET /v1/orgs/:org_id/members.
func (h *Handler) List(c *gin.Context) {
	list, err := h.memberships.List(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []*domain.Membership{}
	}
	c.JSON(http.StatusOK, gin.H{"members": list})
}

// Get serves GET /v1/orgs/:org_id/members/:user_id.
func (h *Handler) Get(c *gin.Context) {
	m, err := h.memberships.Get(c.Request.Context(), c.Param("user_id"), c.Param("org_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if m == nil {
		respondError(c, service.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Add serves POST /v1/orgs/:org_id/members. The user must already be mirrored.
func (h *Handler) Add(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role are required"})
		return
	}
	ctx := c.Request.Context()
	orgID := c.Param("org_id")
	if h.users != nil {
		u, err := h.users.GetByID(ctx, req.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		if u == nil || u.Status == userdomain.UserStatusDeleted {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
	}
	if !h.ownerCheck(c, req.UserID, orgID, req.Role) {
		return
	}
	if h.orgs != nil {
		now := time.Now().UTC()
		if err := h.orgs.Ensure(ctx, &orgdomain.Org{ID: orgID, Name: orgID, Status: orgdomain.OrgStatusActive, CreatedAt: now, UpdatedAt: now}); err != nil {
			respondError(c, err)
			return
		}
	}
	m, err := h.memberships.Upsert(ctx, actor(c), req.UserID, orgID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ChangeRole serves PUT /v1/orgs/:org_id/members/:user_id.
func (h *Handler) ChangeRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	if !h.ownerCheck(c, c.Param("user_id"), c.Param("org_id"), req.Role) {
		return
	}
	m, err := h.memberships.ChangeRole(c.Request.Context(), actor(c), c.Param("user_id"), c.Param("org_id"), req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Remove serves DELETE /v1/orgs/:org_id/members/:user_id. Removing a non-member is a 204.
func (h *Handler) Remove(c *gin.Context) {
	if !h.ownerCheck(c, c.Param("user_id"), c.Param("org_id"), "") {
		return
	}
	if err := h.memberships.Remove(c.Request.Context(), actor(c), c.Param("user_id"), c.Param("org_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ownerCheck aborts with 403 unless the caller is an owner or the change neither grants
// the owner role nor alters an existing owner. role is empty for removals.
func (h *Handler) ownerCheck(c *gin.Context, userID, orgID, role string) bool {
	caller, _ := middleware.User(c)
	if name, _ := permission.ParseRole(caller.Role); name == permission.RoleOwner {
		return true
	}
	if name, _ := permission.ParseRole(role); name == permission.RoleOwner {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only an owner can grant the owner role"})
		return false
	}
	existing, err := h.memberships.Get(c.Request.Context(), userID, orgID)
	if err != nil {
		respondError(c, err)
		return false
	}
	if existing != nil && permission.NormalizeRole(existing.Role) == permission.RoleOwner {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only an owner can change an owner"})
		return false
	}
	return true
}

func actor(c *gin.Context) string {
	u, _ := middleware.User(c)
	return u.UserID
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "membership not found"})
	case errors.Is(err, service.ErrLastOwner):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("membership: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
