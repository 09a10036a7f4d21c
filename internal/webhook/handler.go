package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/audit"
	"fleet-access-control/internal/cache"
	membershipdomain "fleet-access-control/internal/membership/domain"
	orgdomain "fleet-access-control/internal/organization/domain"
	orgrepo "fleet-access-control/internal/organization/repository"
	userdomain "fleet-access-control/internal/user/domain"
	userrepo "fleet-access-control/internal/user/repository"
)

// maxBodyBytes caps a delivery body.
const maxBodyBytes = 1 << 20

// ErrMalformedEvent is returned for payloads that cannot be applied.
var ErrMalformedEvent = errors.New("webhook: malformed event")

// MembershipSyncer applies provider-authoritative membership changes.
type MembershipSyncer interface {
	Sync(ctx context.Context, userID, orgID, role string) (*membershipdomain.Membership, error)
	SyncRemove(ctx context.Context, userID, orgID string) error
}

// Handler verifies and applies identity-provider deliveries.
type Handler struct {
	verifier    *Verifier
	users       userrepo.Repository
	orgs        orgrepo.Repository
	memberships MembershipSyncer
	store       cache.Store
	audit       audit.AuditLogger
	now         func() time.Time
}

// NewHandler returns a webhook handler. store and auditLogger may be nil.
func NewHandler(verifier *Verifier, users userrepo.Repository, orgs orgrepo.Repository, memberships MembershipSyncer, store cache.Store, auditLogger audit.AuditLogger) *Handler {
	return &Handler{
		verifier:    verifier,
		users:       users,
		orgs:        orgs,
		memberships: memberships,
		store:       store,
		audit:       auditLogger,
		now:         time.Now,
	}
}

// Receive is the gin handler for POST /v1/webhooks/identity. Verification failures are 401,
// undecodable payloads 400, and apply failures 500 so the provider retries the delivery.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}
	if err := h.verifier.Verify(c.GetHeader(HeaderID), c.GetHeader(HeaderTimestamp), c.GetHeader(HeaderSignature), body); err != nil {
		log.Printf("webhook: rejected delivery %q: %v", c.GetHeader(HeaderID), err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil || ev.Type == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	handled, err := h.Apply(c.Request.Context(), ev)
	if errors.Is(err, ErrMalformedEvent) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Printf("webhook: apply %s (%s): %v", ev.Type, c.GetHeader(HeaderID), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	status := "applied"
	if !handled {
		status = "ignored"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// Apply mirrors one event. handled is false for event types this service does not mirror.
// Every handler is idempotent so redeliveries are harmless.
func (h *Handler) Apply(ctx context.Context, ev Event) (handled bool, err error) {
	switch ev.Type {
	case UserCreated, UserUpdated:
		var d UserData
		if err := decode(ev, &d); err != nil {
			return true, err
		}
		return true, h.upsertUser(ctx, d)
	case UserDeleted:
		var d DeletedData
		if err := decode(ev, &d); err != nil {
			return true, err
		}
		return true, h.deleteUser(ctx, d.ID)
	case OrganizationCreated, OrganizationUpdated:
		var d OrganizationData
		if err := decode(ev, &d); err != nil {
			return true, err
		}
		return true, h.upsertOrg(ctx, d)
	case OrganizationDeleted:
		var d DeletedData
		if err := decode(ev, &d); err != nil {
			return true, err
		}
		return true, h.deleteOrg(ctx, d.ID)
	case MembershipCreated, MembershipUpdated:
		var d MembershipData
		if err := decode(ev, &d); err != nil {
			return true, err
		}
		if d.PublicUserData.UserID == "" || d.Organization.ID == "" {
			return true, fmt.Errorf("%w: membership without user or organization id", ErrMalformedEvent)
		}
		if err := h.ensureParents(ctx, d); err != nil {
			return true, err
		}
		_, err := h.memberships.Sync(ctx, d.PublicUserData.UserID, d.Organization.ID, d.Role)
		return true, err
	case MembershipDeleted:
		var d MembershipData
		if err := decode(ev, &d); err != nil {
			return true, err
		}
		if d.PublicUserData.UserID == "" || d.Organization.ID == "" {
			return true, fmt.Errorf("%w: membership without user or organization id", ErrMalformedEvent)
		}
		return true, h.memberships.SyncRemove(ctx, d.PublicUserData.UserID, d.Organization.ID)
	}
	return false, nil
}

func decode(ev Event, v interface{}) error {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, ev.Type, err)
	}
	return nil
}

func (h *Handler) upsertUser(ctx context.Context, d UserData) error {
	if d.ID == "" {
		return fmt.Errorf("%w: user without id", ErrMalformedEvent)
	}
	now := h.now()
	status := userdomain.UserStatusActive
	if d.Banned || d.Locked {
		status = userdomain.UserStatusDisabled
	}
	u := &userdomain.User{
		ID:        d.ID,
		Email:     d.PrimaryEmail(),
		Name:      d.FullName(),
		Status:    status,
		CreatedAt: millis(d.CreatedAt, now),
		UpdatedAt: millis(d.UpdatedAt, now),
	}
	if err := h.users.Upsert(ctx, u); err != nil {
		return err
	}
	h.invalidate(ctx, d.ID)
	if status == userdomain.UserStatusDisabled {
		h.log(ctx, audit.SentinelOrgID, "user_disabled", "user", d.ID)
	}
	return nil
}

func (h *Handler) deleteUser(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: user without id", ErrMalformedEvent)
	}
	if err := h.users.MarkDeleted(ctx, id); err != nil {
		return err
	}
	h.invalidate(ctx, id)
	h.log(ctx, audit.SentinelOrgID, "user_deleted", "user", id)
	return nil
}

func (h *Handler) upsertOrg(ctx context.Context, d OrganizationData) error {
	if d.ID == "" {
		return fmt.Errorf("%w: organization without id", ErrMalformedEvent)
	}
	now := h.now()
	o := &orgdomain.Org{
		ID:        d.ID,
		Name:      orFallback(d.Name, d.ID),
		Slug:      d.Slug,
		Status:    orgdomain.OrgStatusActive,
		CreatedAt: millis(d.CreatedAt, now),
		UpdatedAt: millis(d.UpdatedAt, now),
	}
	if err := h.orgs.Upsert(ctx, o); err != nil {
		return err
	}
	h.invalidate(ctx, d.ID)
	return nil
}

func (h *Handler) deleteOrg(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: organization without id", ErrMalformedEvent)
	}
	if err := h.orgs.Delete(ctx, id); err != nil {
		return err
	}
	h.invalidate(ctx, id)
	h.log(ctx, id, "organization_deleted", "organization", id)
	return nil
}

// ensureParents creates placeholder rows when a membership is delivered before its user or organization.
func (h *Handler) ensureParents(ctx context.Context, d MembershipData) error {
	now := h.now().UTC()
	pud := d.PublicUserData
	if err := h.users.Ensure(ctx, &userdomain.User{
		ID:        pud.UserID,
		Email:     pud.Identifier,
		Name:      strings.TrimSpace(pud.FirstName + " " + pud.LastName),
		Status:    userdomain.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}
	org := d.Organization
	return h.orgs.Ensure(ctx, &orgdomain.Org{
		ID:        org.ID,
		Name:      orFallback(org.Name, org.ID),
		Slug:      org.Slug,
		Status:    orgdomain.OrgStatusActive,
		CreatedAt: millis(org.CreatedAt, now),
		UpdatedAt: millis(org.UpdatedAt, now),
	})
}

func (h *Handler) invalidate(ctx context.Context, id string) {
	if h.store == nil {
		return
	}
	if err := h.store.Invalidate(ctx, id); err != nil {
		log.Printf("webhook: cache invalidate %s: %v", id, err)
	}
}

func (h *Handler) log(ctx context.Context, orgID, action, resource, subjectID string) {
	if h.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]string{"subject_id": subjectID})
	h.audit.LogEvent(ctx, orgID, audit.IdentityProviderActor, action, resource, string(meta))
}

func orFallback(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
