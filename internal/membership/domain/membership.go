package domain

import (
	"time"
)

// Membership links a user to an organization with a role.
// Role holds a canonical role name; see permission.ParseRole.
type Membership struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	OrgID     string    `json:"org_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
