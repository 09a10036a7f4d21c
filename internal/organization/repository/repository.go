package repository

import (
	"context"

	"fleet-access-control/internal/organization/domain"
)

// Repository defines persistence for mirrored organizations.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Org, error)
	Upsert(ctx context.Context, o *domain.Org) error
	Ensure(ctx context.Context, o *domain.Org) error
	Delete(ctx context.Context, id string) error
}
