package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/audit/domain"
	auditrepo "fleet-access-control/internal/audit/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler serves GET /v1/orgs/:org_id/audit-logs.
type Handler struct {
	repo auditrepo.Repository
}

// NewHandler returns an audit log handler.
func NewHandler(repo auditrepo.Repository) *Handler {
	return &Handler{repo: repo}
}

// List returns one page of the org's audit log, newest first. Query parameters: limit (1-200,
// default 50), offset, and the exact-match filters user_id, action and resource.
func (h *Handler) List(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultPageSize)
	if !ok || limit < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, ok := intQuery(c, "offset", 0)
	if !ok || offset < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}
	f := auditrepo.Filter{
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
	}
	logs, err := h.repo.ListByOrg(c.Request.Context(), c.Param("org_id"), f, int32(limit), int32(offset))
	if err != nil {
		log.Printf("audit: list %s: %v", c.Param("org_id"), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if logs == nil {
		logs = []*domain.AuditLog{}
	}
	next := -1
	if len(logs) == limit {
		next = offset + limit
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": logs, "next_offset": next})
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v > 1<<30 {
		return 0, false
	}
	return v, true
}
