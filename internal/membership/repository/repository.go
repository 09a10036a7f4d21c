package repository

import (
	"context"
	"errors"

	"fleet-access-control/internal/membership/domain"
)

// ErrLastOwner is returned by guarded mutations that would leave an organization without an owner.
var ErrLastOwner = errors.New("membership: organization must keep at least one owner")

// Repository defines persistence for memberships.
type Repository interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	UpsertMembership(ctx context.Context, m *domain.Membership) error
	// UpdateRole returns nil when the membership does not exist. With keepOwner set, demoting
	// the org's last owner fails with ErrLastOwner; the check and the update are atomic.
	UpdateRole(ctx context.Context, userID, orgID, role string, keepOwner bool) (*domain.Membership, error)
	// DeleteByUserAndOrg is a no-op for missing memberships. With keepOwner set, removing the
	// org's last owner fails with ErrLastOwner; the check and the delete are atomic.
	DeleteByUserAndOrg(ctx context.Context, userID, orgID string, keepOwner bool) error
}
