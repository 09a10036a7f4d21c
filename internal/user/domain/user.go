package domain

import (
	"errors"
	"time"
)

// User mirrors an identity-provider user. The provider is the source of truth.
type User struct {
	ID        string
	Email     string
	Name      string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
	// UserStatusDeleted marks a user the identity provider deleted. The row is kept
	// so sessions issued before the deletion resolve to an inactive user.
	UserStatusDeleted UserStatus = "deleted"
)

// IsActive reports whether the user may be granted anything.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.Status != UserStatusActive && u.Status != UserStatusDisabled && u.Status != UserStatusDeleted {
		return errors.New("status must be active, disabled or deleted")
	}
	return nil
}
