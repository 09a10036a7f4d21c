package repository

import (
	"context"

	"fleet-access-control/internal/user/domain"
)

// Repository defines persistence for mirrored users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Upsert(ctx context.Context, u *domain.User) error
	Ensure(ctx context.Context, u *domain.User) error
	MarkDeleted(ctx context.Context, id string) error
}
