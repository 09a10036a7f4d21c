package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/organization/domain"
)

// Orgs reads mirrored organizations.
type Orgs interface {
	GetByID(ctx context.Context, id string) (*domain.Org, error)
}

// Handler serves GET /v1/orgs/:org_id.
type Handler struct {
	orgs Orgs
}

func NewHandler(orgs Orgs) *Handler {
	return &Handler{orgs: orgs}
}

// Get returns the mirrored organization, or 404 when the mirror has not seen it yet.
func (h *Handler) Get(c *gin.Context) {
	o, err := h.orgs.GetByID(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		log.Printf("organization: get %s: %v", c.Param("org_id"), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if o == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}
	c.JSON(http.StatusOK, o)
}
