// Package service manages organization memberships mirrored from the identity provider.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"fleet-access-control/internal/audit"
	"fleet-access-control/internal/cache"
	"fleet-access-control/internal/membership/domain"
	"fleet-access-control/internal/membership/repository"
	"fleet-access-control/internal/permission"
)

var (
	// ErrLastOwner is returned when a change would leave an organization without an owner.
	ErrLastOwner = repository.ErrLastOwner
	// ErrNotFound is returned when the membership does not exist.
	ErrNotFound = errors.New("membership: not found")
	// ErrInvalidArgument is returned for empty user or organization ids.
	ErrInvalidArgument = errors.New("membership: user id and organization id are required")
)

// Service applies membership changes and keeps cached identity data coherent with them.
type Service struct {
	repo  repository.Repository
	store cache.Store
	audit audit.AuditLogger
	now   func() time.Time
}

// NewService returns a membership service. store and auditLogger may be nil.
func NewService(repo repository.Repository, store cache.Store, auditLogger audit.AuditLogger) *Service {
	return &Service{repo: repo, store: store, audit: auditLogger, now: time.Now}
}

// NormalizeRole maps a raw role string to a canonical role. Unknown roles become the
// fallback role and are logged.
func NormalizeRole(raw string) string {
	name, ok := permission.ParseRole(raw)
	if !ok {
		log.Printf("membership: unrecognized role %q stored as %s", raw, permission.FallbackRole)
		return string(permission.FallbackRole)
	}
	return string(name)
}

// Get returns the membership of userID in orgID, or nil if the user is not a member.
func (s *Service) Get(ctx context.Context, userID, orgID string) (*domain.Membership, error) {
	if userID == "" || orgID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.GetMembershipByUserAndOrg(ctx, userID, orgID)
}

// List returns every membership of orgID.
func (s *Service) List(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	if orgID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListMembershipsByOrg(ctx, orgID)
}

// Upsert adds userID to orgID with role, or replaces the role of an existing member.
// Demoting the last owner is rejected with ErrLastOwner.
func (s *Service) Upsert(ctx context.Context, actorID, userID, orgID, role string) (*domain.Membership, error) {
	return s.upsert(ctx, actorID, userID, orgID, role, true)
}

// Sync mirrors a membership delivered by the identity provider. It never rejects a change
// because the provider is authoritative.
func (s *Service) Sync(ctx context.Context, userID, orgID, role string) (*domain.Membership, error) {
	return s.upsert(ctx, audit.IdentityProviderActor, userID, orgID, role, false)
}

func (s *Service) upsert(ctx context.Context, actorID, userID, orgID, role string, guard bool) (*domain.Membership, error) {
	if userID == "" || orgID == "" {
		return nil, ErrInvalidArgument
	}
	role = NormalizeRole(role)
	existing, err := s.repo.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Role == role {
		return existing, nil
	}
	var m *domain.Membership
	if guard && existing != nil {
		if m, err = s.repo.UpdateRole(ctx, userID, orgID, role, true); err != nil {
			return nil, err
		}
	}
	if m == nil {
		now := s.now().UTC()
		m = &domain.Membership{ID: uuid.New().String(), UserID: userID, OrgID: orgID, Role: role, CreatedAt: now, UpdatedAt: now}
		if existing != nil {
			m.ID = existing.ID
			m.CreatedAt = existing.CreatedAt
		}
		if err := s.repo.UpsertMembership(ctx, m); err != nil {
			return nil, err
		}
	}
	s.invalidate(ctx, userID, orgID)
	if existing == nil {
		s.log(ctx, orgID, actorID, "member_added", userID, map[string]string{"role": role})
	} else {
		s.log(ctx, orgID, actorID, "role_changed", userID, map[string]string{"role": role, "previous_role": existing.Role})
	}
	return m, nil
}

// ChangeRole sets the role of an existing member. Returns ErrNotFound when userID is not a member
// and ErrLastOwner when the change would demote the last owner.
func (s *Service) ChangeRole(ctx context.Context, actorID, userID, orgID, role string) (*domain.Membership, error) {
	if userID == "" || orgID == "" {
		return nil, ErrInvalidArgument
	}
	role = NormalizeRole(role)
	existing, err := s.repo.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	if existing.Role == role {
		return existing, nil
	}
	m, err := s.repo.UpdateRole(ctx, userID, orgID, role, true)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	s.invalidate(ctx, userID, orgID)
	s.log(ctx, orgID, actorID, "role_changed", userID, map[string]string{"role": role, "previous_role": existing.Role})
	return m, nil
}

// Remove deletes the membership of userID in orgID. Removing the last owner is rejected.
// Removing a non-member is not an error.
func (s *Service) Remove(ctx context.Context, actorID, userID, orgID string) error {
	return s.remove(ctx, actorID, userID, orgID, true)
}

// SyncRemove mirrors a membership deletion delivered by the identity provider.
func (s *Service) SyncRemove(ctx context.Context, userID, orgID string) error {
	return s.remove(ctx, audit.IdentityProviderActor, userID, orgID, false)
}

func (s *Service) remove(ctx context.Context, actorID, userID, orgID string, guard bool) error {
	if userID == "" || orgID == "" {
		return ErrInvalidArgument
	}
	existing, err := s.repo.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return err
	}
	if existing == nil {
		s.invalidate(ctx, userID, orgID)
		return nil
	}
	if err := s.repo.DeleteByUserAndOrg(ctx, userID, orgID, guard); err != nil {
		return err
	}
	s.invalidate(ctx, userID, orgID)
	s.log(ctx, orgID, actorID, "member_removed", userID, map[string]string{"previous_role": existing.Role})
	return nil
}

func (s *Service) invalidate(ctx context.Context, ids ...string) {
	if s.store == nil {
		return
	}
	for _, id := range ids {
		if err := s.store.Invalidate(ctx, id); err != nil {
			log.Printf("membership: cache invalidate %s: %v", id, err)
		}
	}
}

func (s *Service) log(ctx context.Context, orgID, actorID, action, subjectID string, meta map[string]string) {
	if s.audit == nil {
		return
	}
	meta["user_id"] = subjectID
	b, _ := json.Marshal(meta)
	s.audit.LogEvent(ctx, orgID, actorID, action, "membership", string(b))
}
