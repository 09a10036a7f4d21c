package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fleet-access-control/internal/membership/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a membership repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const membershipColumns = `id, user_id, org_id, role, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*domain.Membership, error) {
	var m domain.Membership
	if err := row.Scan(&m.ID, &m.UserID, &m.OrgID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMembershipByUserAndOrg returns the membership for the given user and org, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error) {
	m, err := scanMembership(r.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 AND org_id = $2`, userID, orgID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListMembershipsByOrg returns all memberships for the given org ordered by creation time.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE org_id = $1 ORDER BY created_at, id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertMembership creates the membership or, when the user already belongs to the org, replaces its role.
// The membership must have ID set; on conflict the existing ID is kept.
func (r *PostgresRepository) UpsertMembership(ctx context.Context, m *domain.Membership) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO memberships (id, user_id, org_id, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, org_id) DO UPDATE
SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at`,
		m.ID, m.UserID, m.OrgID, m.Role, m.CreatedAt, m.UpdatedAt)
	return err
}

// UpdateRole sets the role for the given user and org. Returns nil if the membership does not exist.
func (r *PostgresRepository) UpdateRole(ctx context.Context, userID, orgID, role string, keepOwner bool) (*domain.Membership, error) {
	var m *domain.Membership
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if keepOwner && role != ownerRole {
			if err := guardLastOwner(ctx, tx, userID, orgID); err != nil {
				return err
			}
		}
		var err error
		m, err = scanMembership(tx.QueryRowContext(ctx,
			`UPDATE memberships SET role = $3, updated_at = $4 WHERE user_id = $1 AND org_id = $2 RETURNING `+membershipColumns,
			userID, orgID, role, time.Now().UTC()))
		if errors.Is(err, sql.ErrNoRows) {
			m = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteByUserAndOrg removes the membership. Deleting a missing membership is not an error.
func (r *PostgresRepository) DeleteByUserAndOrg(ctx context.Context, userID, orgID string, keepOwner bool) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if keepOwner {
			if err := guardLastOwner(ctx, tx, userID, orgID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE user_id = $1 AND org_id = $2`, userID, orgID)
		return err
	})
}

const ownerRole = "owner"

// guardLastOwner locks the org's owner rows for the rest of tx and returns ErrLastOwner when
// userID is the only one. Concurrent guarded mutations of the same org serialize on these locks.
func guardLastOwner(ctx context.Context, tx *sql.Tx, userID, orgID string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT user_id FROM memberships WHERE org_id = $1 AND role = $2 ORDER BY user_id FOR UPDATE`, orgID, ownerRole)
	if err != nil {
		return err
	}
	defer rows.Close()
	var owners int
	isOwner := false
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		owners++
		if id == userID {
			isOwner = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if isOwner && owners <= 1 {
		return ErrLastOwner
	}
	return nil
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
