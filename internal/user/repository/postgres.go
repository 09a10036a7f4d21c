package repository

import (
	"context"
	"database/sql"
	"errors"

	"fleet-access-control/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const getUserSQL = `SELECT id, email, name, status, created_at, updated_at FROM users WHERE id = $1`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, getUserSQL, id).Scan(&u.ID, &u.Email, &u.Name, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

const upsertUserSQL = `
INSERT INTO users (id, email, name, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET email = EXCLUDED.email, name = EXCLUDED.name, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
WHERE users.status <> 'deleted'`

// Upsert creates the user or replaces its mirrored fields. CreatedAt is kept from the first insert.
// A deleted user is never revived by a late update.
func (r *PostgresRepository) Upsert(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, upsertUserSQL, u.ID, u.Email, u.Name, string(u.Status), u.CreatedAt, u.UpdatedAt)
	return err
}

// Ensure inserts u unless a user with the same id exists; existing rows are left untouched.
// Used when a membership arrives before its user.
func (r *PostgresRepository) Ensure(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id, email, name, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`, u.ID, u.Email, u.Name, string(u.Status), u.CreatedAt, u.UpdatedAt)
	return err
}

const markDeletedSQL = `
INSERT INTO users (id, status, created_at, updated_at)
VALUES ($1, 'deleted', now(), now())
ON CONFLICT (id) DO UPDATE
SET email = '', name = '', status = 'deleted', updated_at = now()`

// MarkDeleted tombstones the user and removes its memberships in one transaction.
// A user never seen before gets a tombstone row too. Repeating it is not an error.
func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, markDeletedSQL, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE user_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}
