package repository

import (
	"context"

	"fleet-access-control/internal/audit/domain"
)

// Filter narrows ListByOrg. Empty fields match everything.
type Filter struct {
	UserID   string
	Action   string
	Resource string
}

// Repository defines persistence for audit logs.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.AuditLog, error)
	ListByOrg(ctx context.Context, orgID string, f Filter, limit, offset int32) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
