// Package identity builds the per-request UserContext from verified session claims
// and the mirrored identity data.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fleet-access-control/internal/cache"
	membershipdomain "fleet-access-control/internal/membership/domain"
	"fleet-access-control/internal/permission"
	"fleet-access-control/internal/security"
	userdomain "fleet-access-control/internal/user/domain"
)

// ErrNoClaims is returned when Resolve is called without verified claims.
var ErrNoClaims = errors.New("identity: no session claims")

// DefaultTTL is used when NewResolver is given a non-positive ttl.
const DefaultTTL = 60 * time.Second

// UserSource reads mirrored users.
type UserSource interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// MembershipSource reads mirrored memberships.
type MembershipSource interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*membershipdomain.Membership, error)
}

type userStatus struct {
	Known  bool `json:"known"`
	Active bool `json:"active"`
}

type membershipRole struct {
	Role string `json:"role"`
}

// Resolver turns session claims into a permission.UserContext.
type Resolver struct {
	users       UserSource
	memberships MembershipSource
	statuses    *cache.Loader[userStatus]
	roles       *cache.Loader[membershipRole]
	ttl         time.Duration
}

// NewResolver returns a resolver reading through store. store may be nil (no caching)
// and memberships may be nil (roles come only from claims).
func NewResolver(users UserSource, memberships MembershipSource, store cache.Store, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		users:       users,
		memberships: memberships,
		statuses:    cache.NewLoader[userStatus](store, "user"),
		roles:       cache.NewLoader[membershipRole](store, "membership"),
		ttl:         ttl,
	}
}

// Resolve builds the UserContext for a verified session.
//
// The role comes from the org_role claim, or from the membership mirror when the session
// names an organization without a role. IsActive comes from the user mirror; a user missing
// from the mirror is active because the identity provider already vouched for the session.
// Lookup failures are returned so callers fail closed.
func (r *Resolver) Resolve(ctx context.Context, claims *security.SessionClaims) (permission.UserContext, error) {
	if claims == nil {
		return permission.UserContext{}, ErrNoClaims
	}
	u := permission.UserContext{
		UserID:         claims.Subject,
		OrganizationID: claims.OrgID,
		SessionID:      claims.SessionID,
		Role:           claims.OrgRole,
		Overrides:      parseOverrides(claims.Subject, claims.OrgPermissions),
	}
	if u.UserID == "" {
		return u, nil
	}

	active, err := r.isActive(ctx, u.UserID)
	if err != nil {
		return permission.UserContext{}, err
	}
	u.IsActive = active

	if u.Role == "" && u.OrganizationID != "" && r.memberships != nil {
		role, err := r.membershipRole(ctx, u.UserID, u.OrganizationID)
		if err != nil {
			return permission.UserContext{}, err
		}
		u.Role = role
	}
	return u, nil
}

func (r *Resolver) isActive(ctx context.Context, userID string) (bool, error) {
	if r.users == nil {
		return true, nil
	}
	st, err := r.statuses.GetOrLoad(ctx, userID, r.ttl, []string{userID}, func(ctx context.Context) (userStatus, error) {
		usr, err := r.users.GetByID(ctx, userID)
		if err != nil {
			return userStatus{}, err
		}
		if usr == nil {
			return userStatus{}, nil
		}
		return userStatus{Known: true, Active: usr.IsActive()}, nil
	})
	if err != nil {
		return false, fmt.Errorf("identity: load user %s: %w", userID, err)
	}
	return !st.Known || st.Active, nil
}

func (r *Resolver) membershipRole(ctx context.Context, userID, orgID string) (string, error) {
	key := userID + ":" + orgID
	m, err := r.roles.GetOrLoad(ctx, key, r.ttl, []string{userID, orgID}, func(ctx context.Context) (membershipRole, error) {
		mem, err := r.memberships.GetMembershipByUserAndOrg(ctx, userID, orgID)
		if err != nil || mem == nil {
			return membershipRole{}, err
		}
		return membershipRole{Role: mem.Role}, nil
	})
	if err != nil {
		return "", fmt.Errorf("identity: load membership %s: %w", key, err)
	}
	return m.Role, nil
}

// parseOverrides keeps well-formed explicit grants. Wildcards are never accepted from a session;
// only the role table can grant them.
func parseOverrides(userID string, raw []string) []permission.Permission {
	if len(raw) == 0 {
		return nil
	}
	out := make([]permission.Permission, 0, len(raw))
	for _, s := range raw {
		p, err := permission.ParsePermission(s)
		if err != nil || p.IsWildcard() {
			log.Printf("identity: dropping permission override %q for user %s", s, userID)
			continue
		}
		out = append(out, p)
	}
	return out
}
