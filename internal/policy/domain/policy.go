package domain

import (
	"errors"
	"strings"
	"time"
)

// Policy is an organization's Rego module contributing deny rules to data.fleet.authz.
type Policy struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	Rules     string    `json:"rules"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required fields. Rule compilation is checked by the engine.
func (p *Policy) Validate() error {
	if p.OrgID == "" {
		return errors.New("org_id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(p.Rules) == "" {
		return errors.New("rules are required")
	}
	return nil
}
