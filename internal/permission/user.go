package permission

// UserContext is the request-scoped identity a check runs against.
// It is built per request from session claims and never persisted.
//
// Role is the raw role string from the identity provider; the resolver normalizes it.
type UserContext struct {
	UserID         string       `json:"user_id"`
	OrganizationID string       `json:"organization_id"`
	SessionID      string       `json:"session_id,omitempty"`
	Role           string       `json:"role"`
	IsActive       bool         `json:"is_active"`
	Overrides      []Permission `json:"overrides,omitempty"`
}

// BelongsToOrganization reports whether the user's organization is exactly orgID.
// Comparison is case-sensitive; an empty orgID only matches an empty organization.
func BelongsToOrganization(u UserContext, orgID string) bool {
	return u.OrganizationID == orgID
}

func (u UserContext) malformed() string {
	switch {
	case u.UserID == "":
		return "missing user id"
	case u.OrganizationID == "":
		return "missing organization id"
	case u.Role == "":
		return "missing role"
	}
	return ""
}
