package audit

import (
	"context"
	"errors"
	"testing"

	"fleet-access-control/internal/audit/domain"
	auditrepo "fleet-access-control/internal/audit/repository"
)

// mockAuditRepo implements audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByOrg(ctx context.Context, orgID string, f auditrepo.Filter, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(ctx context.Context) string { return "10.0.0.7" })

	logger.LogEvent(context.Background(), "org_a", "user_1", "authz_denied", "load", `{"reason":"forbidden"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.OrgID != "org_a" {
		t.Errorf("org_id = %q, want %q", entry.OrgID, "org_a")
	}
	if entry.UserID != "user_1" {
		t.Errorf("user_id = %q, want %q", entry.UserID, "user_1")
	}
	if entry.Action != "authz_denied" || entry.Resource != "load" {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "10.0.0.7" {
		t.Errorf("ip = %q, want %q", entry.IP, "10.0.0.7")
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Error("entry ID and CreatedAt should be set")
	}
}

func TestLogger_LogEvent_SentinelOrgAndUnknownIP(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil).LogEvent(context.Background(), "", "", "user_deleted", "user", "")
	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if got := repo.entries[0].OrgID; got != SentinelOrgID {
		t.Errorf("org_id = %q, want %q", got, SentinelOrgID)
	}
	if got := repo.entries[0].IP; got != "unknown" {
		t.Errorf("ip = %q, want %q", got, "unknown")
	}
}

func TestLogger_LogEvent_RepoErrorSwallowed(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	NewLogger(repo, nil).LogEvent(context.Background(), "org_a", "user_1", "a", "r", "")
	if len(repo.entries) != 0 {
		t.Errorf("entries = %d, want 0", len(repo.entries))
	}
}

func TestLogger_NilRepoOrLogger(t *testing.T) {
	NewLogger(nil, nil).LogEvent(context.Background(), "org_a", "", "a", "r", "")
	var l *Logger
	l.LogEvent(context.Background(), "org_a", "", "a", "r", "")
}
