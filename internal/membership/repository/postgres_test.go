package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"fleet-access-control/internal/db/dbtest"
	"fleet-access-control/internal/membership/domain"
)

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO organizations (id, name) VALUES ('org_a', 'Acme Freight'), ('org_b', 'Blue Line')`,
		`INSERT INTO users (id) VALUES ('user_1'), ('user_2')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestPostgresRepository_Memberships(t *testing.T) {
	conn := dbtest.New(t)
	seed(t, conn)
	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	if m, err := repo.GetMembershipByUserAndOrg(ctx, "user_1", "org_a"); err != nil || m != nil {
		t.Fatalf("Get missing = (%v, %v), want (nil, nil)", m, err)
	}
	for _, m := range []*domain.Membership{
		{ID: "m1", UserID: "user_1", OrgID: "org_a", Role: "owner", CreatedAt: now, UpdatedAt: now},
		{ID: "m2", UserID: "user_2", OrgID: "org_a", Role: "driver", CreatedAt: now.Add(time.Second), UpdatedAt: now},
		{ID: "m3", UserID: "user_1", OrgID: "org_b", Role: "viewer", CreatedAt: now, UpdatedAt: now},
	} {
		if err := repo.UpsertMembership(ctx, m); err != nil {
			t.Fatalf("UpsertMembership(%s): %v", m.ID, err)
		}
	}

	// Redelivery with a new id keeps the original row.
	if err := repo.UpsertMembership(ctx, &domain.Membership{ID: "m9", UserID: "user_2", OrgID: "org_a", Role: "dispatcher", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("UpsertMembership conflict: %v", err)
	}
	m, err := repo.GetMembershipByUserAndOrg(ctx, "user_2", "org_a")
	if err != nil || m == nil {
		t.Fatalf("Get = (%v, %v)", m, err)
	}
	if m.ID != "m2" || m.Role != "dispatcher" {
		t.Errorf("membership = %+v, want id m2 role dispatcher", m)
	}

	list, err := repo.ListMembershipsByOrg(ctx, "org_a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].UserID != "user_1" {
		t.Errorf("List = %d entries, first %+v", len(list), list[0])
	}

	updated, err := repo.UpdateRole(ctx, "user_1", "org_b", "accountant", false)
	if err != nil || updated == nil || updated.Role != "accountant" {
		t.Errorf("UpdateRole = (%+v, %v)", updated, err)
	}
	if missing, err := repo.UpdateRole(ctx, "user_2", "org_b", "viewer", true); err != nil || missing != nil {
		t.Errorf("UpdateRole missing = (%+v, %v), want (nil, nil)", missing, err)
	}

	if err := repo.DeleteByUserAndOrg(ctx, "user_2", "org_a", true); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.DeleteByUserAndOrg(ctx, "user_2", "org_a", true); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if m, _ := repo.GetMembershipByUserAndOrg(ctx, "user_2", "org_a"); m != nil {
		t.Error("membership should be deleted")
	}
}

func TestPostgresRepository_KeepOwner(t *testing.T) {
	conn := dbtest.New(t)
	seed(t, conn)
	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, m := range []*domain.Membership{
		{ID: "m1", UserID: "user_1", OrgID: "org_a", Role: "owner", CreatedAt: now, UpdatedAt: now},
		{ID: "m2", UserID: "user_2", OrgID: "org_a", Role: "owner", CreatedAt: now, UpdatedAt: now},
	} {
		if err := repo.UpsertMembership(ctx, m); err != nil {
			t.Fatalf("UpsertMembership(%s): %v", m.ID, err)
		}
	}

	// One owner is demoted and the other removed at the same time; exactly one must lose.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = repo.UpdateRole(ctx, "user_1", "org_a", "viewer", true)
	}()
	go func() {
		defer wg.Done()
		errs[1] = repo.DeleteByUserAndOrg(ctx, "user_2", "org_a", true)
	}()
	wg.Wait()

	rejected := 0
	for _, err := range errs {
		if errors.Is(err, ErrLastOwner) {
			rejected++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if rejected != 1 {
		t.Errorf("rejected = %d, want 1 (errs %v)", rejected, errs)
	}
	var owners int
	if err := conn.QueryRow(`SELECT count(*) FROM memberships WHERE org_id = 'org_a' AND role = 'owner'`).Scan(&owners); err != nil {
		t.Fatalf("count owners: %v", err)
	}
	if owners != 1 {
		t.Errorf("owners = %d, want 1", owners)
	}

	// Without keepOwner the mirror may leave the org ownerless.
	list, _ := repo.ListMembershipsByOrg(ctx, "org_a")
	for _, m := range list {
		if m.Role == "owner" {
			if err := repo.DeleteByUserAndOrg(ctx, m.UserID, "org_a", false); err != nil {
				t.Errorf("unguarded Delete: %v", err)
			}
		}
	}
}
