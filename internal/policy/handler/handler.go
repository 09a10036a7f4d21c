// Package handler serves policy CRUD under /v1/orgs/:org_id/policies.
package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fleet-access-control/internal/policy/domain"
	"fleet-access-control/internal/policy/engine"
	"fleet-access-control/internal/policy/repository"
)

// Invalidator drops an org's compiled policies. *engine.OPAEvaluator implements it.
type Invalidator interface {
	Invalidate(orgID string)
}

// Handler serves policy routes. Authorization is enforced by route middleware.
type Handler struct {
	repo      repository.Repository
	evaluator Invalidator
	now       func() time.Time
}

// NewHandler returns a policy handler. Every write invalidates the org's compiled policies in evaluator.
func NewHandler(repo repository.Repository, evaluator Invalidator) *Handler {
	return &Handler{repo: repo, evaluator: evaluator, now: time.Now}
}

type policyRequest struct {
	Name    string `json:"name"`
	Rules   string `json:"rules"`
	Enabled *bool  `json:"enabled"`
}

// List serves GET /v1/orgs/:org_id/policies.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListByOrg(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		internalError(c, err)
		return
	}
	if list == nil {
		list = []*domain.Policy{}
	}
	c.JSON(http.StatusOK, gin.H{"policies": list})
}

// Get serves GET /v1/orgs/:org_id/policies/:policy_id.
func (h *Handler) Get(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create serves POST /v1/orgs/:org_id/policies. Rules must compile.
func (h *Handler) Create(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	now := h.now().UTC()
	p := &domain.Policy{
		ID:        uuid.New().String(),
		OrgID:     c.Param("org_id"),
		Name:      req.Name,
		Rules:     req.Rules,
		Enabled:   req.Enabled == nil || *req.Enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !validate(c, p) {
		return
	}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		internalError(c, err)
		return
	}
	h.invalidate(p.OrgID)
	c.JSON(http.StatusCreated, p)
}

// Update serves PUT /v1/orgs/:org_id/policies/:policy_id. Omitted fields keep their values.
func (h *Handler) Update(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	p, ok := h.load(c)
	if !ok {
		return
	}
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Rules != "" {
		p.Rules = req.Rules
	}
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}
	p.UpdatedAt = h.now().UTC()
	if !validate(c, p) {
		return
	}
	if err := h.repo.Update(c.Request.Context(), p); err != nil {
		internalError(c, err)
		return
	}
	h.invalidate(p.OrgID)
	c.JSON(http.StatusOK, p)
}

// Delete serves DELETE /v1/orgs/:org_id/policies/:policy_id.
func (h *Handler) Delete(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), p.ID); err != nil {
		internalError(c, err)
		return
	}
	h.invalidate(p.OrgID)
	c.Status(http.StatusNoContent)
}

// load returns the policy of the route, answering 404 when it is missing or belongs to another org.
func (h *Handler) load(c *gin.Context) (*domain.Policy, bool) {
	p, err := h.repo.GetByID(c.Request.Context(), c.Param("policy_id"))
	if err != nil {
		internalError(c, err)
		return nil, false
	}
	if p == nil || p.OrgID != c.Param("org_id") {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return nil, false
	}
	return p, true
}

func (h *Handler) invalidate(orgID string) {
	if h.evaluator != nil {
		h.evaluator.Invalidate(orgID)
	}
}

func validate(c *gin.Context, p *domain.Policy) bool {
	if err := p.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if err := engine.Validate(p.Rules); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func internalError(c *gin.Context, err error) {
	log.Printf("policy: %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
