package webhook

import (
	"encoding/json"
	"strings"
	"time"
)

// Event types mirrored by this service. Other types are acknowledged and ignored.
const (
	UserCreated         = "user.created"
	UserUpdated         = "user.updated"
	UserDeleted         = "user.deleted"
	OrganizationCreated = "organization.created"
	OrganizationUpdated = "organization.updated"
	OrganizationDeleted = "organization.deleted"
	MembershipCreated   = "organizationMembership.created"
	MembershipUpdated   = "organizationMembership.updated"
	MembershipDeleted   = "organizationMembership.deleted"
)

// Event is the delivery envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type emailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// UserData is the payload of user events. Timestamps are unix milliseconds.
type UserData struct {
	ID                    string         `json:"id"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	Banned                bool           `json:"banned"`
	Locked                bool           `json:"locked"`
	CreatedAt             int64          `json:"created_at"`
	UpdatedAt             int64          `json:"updated_at"`
}

// PrimaryEmail returns the primary address, or the first address when none is marked primary.
func (u UserData) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// FullName joins first and last name.
func (u UserData) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// OrganizationData is the payload of organization events.
type OrganizationData struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type publicUserData struct {
	UserID     string `json:"user_id"`
	Identifier string `json:"identifier"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

// MembershipData is the payload of organizationMembership events.
type MembershipData struct {
	ID             string           `json:"id"`
	Role           string           `json:"role"`
	Organization   OrganizationData `json:"organization"`
	PublicUserData publicUserData   `json:"public_user_data"`
	CreatedAt      int64            `json:"created_at"`
	UpdatedAt      int64            `json:"updated_at"`
}

// DeletedData is the payload of *.deleted events for users and organizations.
type DeletedData struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// millis converts a unix millisecond timestamp; zero means now.
func millis(ms int64, now time.Time) time.Time {
	if ms <= 0 {
		return now.UTC()
	}
	return time.UnixMilli(ms).UTC()
}
