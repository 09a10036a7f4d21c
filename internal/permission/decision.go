package permission

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized matches denials caused by a missing or malformed identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches denials of an authenticated caller.
	ErrForbidden = errors.New("forbidden")
)

// Reason classifies a Decision.
type Reason string

const (
	ReasonGranted      Reason = "granted"
	ReasonUnauthorized Reason = "unauthorized"
	ReasonForbidden    Reason = "forbidden"
)

// Decision is the outcome of an authorization check. Denial is a normal value, not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

// Allow returns an allowed decision.
func Allow() Decision {
	return Decision{Allowed: true, Reason: ReasonGranted}
}

// Unauthorized returns a denial for a missing or malformed identity.
func Unauthorized(detail string) Decision {
	return Decision{Reason: ReasonUnauthorized, Detail: detail}
}

// Forbidden returns a denial for an authenticated caller.
func Forbidden(detail string) Decision {
	return Decision{Reason: ReasonForbidden, Detail: detail}
}

// Err converts a denial into an *AuthorizationError; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &AuthorizationError{Reason: d.Reason, Detail: d.Detail}
}

// AuthorizationError is the typed error callers raise when they halt on a denial.
type AuthorizationError struct {
	Reason Reason
	Detail string
}

func (e *AuthorizationError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Is lets errors.Is match ErrUnauthorized and ErrForbidden.
func (e *AuthorizationError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Reason == ReasonUnauthorized
	case ErrForbidden:
		return e.Reason == ReasonForbidden
	}
	return false
}
