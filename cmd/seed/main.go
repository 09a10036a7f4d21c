// seed inserts development identity-mirror data and an org policy for local testing.
// Idempotent: skips inserts if the dev owner already exists. When JWT_PRIVATE_KEY is set it
// also prints a session token per seeded user.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"fleet-access-control/internal/config"
	"fleet-access-control/internal/db"
	membershipdomain "fleet-access-control/internal/membership/domain"
	membershiprepo "fleet-access-control/internal/membership/repository"
	orgdomain "fleet-access-control/internal/organization/domain"
	orgrepo "fleet-access-control/internal/organization/repository"
	"fleet-access-control/internal/permission"
	policydomain "fleet-access-control/internal/policy/domain"
	"fleet-access-control/internal/policy/engine"
	policyrepo "fleet-access-control/internal/policy/repository"
	"fleet-access-control/internal/security"
	userdomain "fleet-access-control/internal/user/domain"
	userrepo "fleet-access-control/internal/user/repository"
)

// devRegoPolicy extends the built-in overlay with an invoice rule for accountants.
const devRegoPolicy = `package fleet.authz

deny contains "drivers may only update loads assigned to them" if {
	input.user.role == "driver"
	input.action == "update"
	input.resource.type == "load"
	input.resource.id != ""
	input.resource.assignee_id != input.user.id
}

deny contains "accountants may only delete invoices they created" if {
	input.user.role == "accountant"
	input.action == "delete"
	input.resource.type == "invoice"
	input.resource.owner_id != ""
	input.resource.owner_id != input.user.id
}
`

const (
	devOrgID    = "dev-org-001"
	devPolicyID = "dev-policy-001"
	tokenTTL    = 12 * time.Hour
)

type devUser struct {
	id    string
	email string
	name  string
	role  permission.RoleName
}

var devUsers = []devUser{
	{"dev-user-001", "owner@example.com", "Olive Owner", permission.RoleOwner},
	{"dev-user-002", "dispatch@example.com", "Dana Dispatcher", permission.RoleDispatcher},
	{"dev-user-003", "driver@example.com", "Drew Driver", permission.RoleDriver},
	{"dev-user-004", "books@example.com", "Avery Accountant", permission.RoleAccountant},
	{"dev-user-005", "viewer@example.com", "Val Viewer", permission.RoleViewer},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(conn)
	existing, err := users.GetByID(ctx, devUsers[0].id)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping inserts.", devUsers[0].id)
	} else if err := seed(ctx, users, orgrepo.NewPostgresRepository(conn), membershiprepo.NewPostgresRepository(conn), policyrepo.NewPostgresRepository(conn)); err != nil {
		log.Fatalf("seed: %v", err)
	} else {
		log.Println("Seed completed successfully.")
	}

	if cfg.JWTPrivateKey == "" {
		log.Println("JWT_PRIVATE_KEY not set; no dev tokens issued")
		return
	}
	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	issuer := security.NewTokenIssuer(signer, cfg.JWTIssuer, cfg.JWTAudience, tokenTTL)
	for i, u := range devUsers {
		token, exp, err := issuer.Issue(u.id, security.SessionClaims{
			SessionID: fmt.Sprintf("dev-session-%03d", i+1),
			OrgID:     devOrgID,
			OrgRole:   string(u.role),
		})
		if err != nil {
			log.Fatalf("issue token for %s: %v", u.id, err)
		}
		fmt.Printf("%-12s %s (expires %s)\n  %s\n", u.role, u.email, exp.Format(time.RFC3339), token)
	}
}

func seed(ctx context.Context, users userrepo.Repository, orgs orgrepo.Repository, memberships membershiprepo.Repository, policies policyrepo.Repository) error {
	now := time.Now().UTC()
	if err := orgs.Upsert(ctx, &orgdomain.Org{
		ID:        devOrgID,
		Name:      "Acme Freight Dev",
		Slug:      "acme-freight-dev",
		Status:    orgdomain.OrgStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("create org: %w", err)
	}
	for i, u := range devUsers {
		if err := users.Upsert(ctx, &userdomain.User{
			ID:        u.id,
			Email:     u.email,
			Name:      u.name,
			Status:    userdomain.UserStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("create user %s: %w", u.id, err)
		}
		if err := memberships.UpsertMembership(ctx, &membershipdomain.Membership{
			ID:        fmt.Sprintf("dev-membership-%03d", i+1),
			UserID:    u.id,
			OrgID:     devOrgID,
			Role:      string(u.role),
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("create membership %s: %w", u.id, err)
		}
	}
	if err := engine.Validate(devRegoPolicy); err != nil {
		return fmt.Errorf("dev policy: %w", err)
	}
	if err := policies.Create(ctx, &policydomain.Policy{
		ID:        devPolicyID,
		OrgID:     devOrgID,
		Name:      "dev overlay",
		Rules:     devRegoPolicy,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}
