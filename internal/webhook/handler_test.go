package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/cache"
	"fleet-access-control/internal/identity"
	membershipdomain "fleet-access-control/internal/membership/domain"
	orgdomain "fleet-access-control/internal/organization/domain"
	"fleet-access-control/internal/security"
	userdomain "fleet-access-control/internal/user/domain"
)

type memUsers struct {
	mu sync.Mutex
	m  map[string]*userdomain.User
}

func (r *memUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

func (r *memUsers) Upsert(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.m[u.ID]; ok && old.Status == userdomain.UserStatusDeleted {
		return nil
	}
	c := *u
	r.m[u.ID] = &c
	return nil
}

func (r *memUsers) Ensure(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[u.ID]; !ok {
		c := *u
		r.m[u.ID] = &c
	}
	return nil
}

func (r *memUsers) MarkDeleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id] = &userdomain.User{ID: id, Status: userdomain.UserStatusDeleted}
	return nil
}

type memOrgs struct {
	mu sync.Mutex
	m  map[string]*orgdomain.Org
}

func (r *memOrgs) GetByID(ctx context.Context, id string) (*orgdomain.Org, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

func (r *memOrgs) Upsert(ctx context.Context, o *orgdomain.Org) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *o
	r.m[o.ID] = &c
	return nil
}

func (r *memOrgs) Ensure(ctx context.Context, o *orgdomain.Org) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[o.ID]; !ok {
		c := *o
		r.m[o.ID] = &c
	}
	return nil
}

func (r *memOrgs) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
	return nil
}

type syncCall struct {
	op, userID, orgID, role string
}

type recordingSyncer struct {
	calls []syncCall
}

func (s *recordingSyncer) Sync(ctx context.Context, userID, orgID, role string) (*membershipdomain.Membership, error) {
	s.calls = append(s.calls, syncCall{"sync", userID, orgID, role})
	return &membershipdomain.Membership{UserID: userID, OrgID: orgID, Role: role}, nil
}

func (s *recordingSyncer) SyncRemove(ctx context.Context, userID, orgID string) error {
	s.calls = append(s.calls, syncCall{"remove", userID, orgID, ""})
	return nil
}

type fixture struct {
	h      *Handler
	users  *memUsers
	orgs   *memOrgs
	syncer *recordingSyncer
	store  *cache.MemoryStore
	router *gin.Engine
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	now := time.Unix(1_790_000_000, 0)
	f := &fixture{
		users:  &memUsers{m: map[string]*userdomain.User{}},
		orgs:   &memOrgs{m: map[string]*orgdomain.Org{}},
		syncer: &recordingSyncer{},
		store:  cache.NewMemoryStore(),
		now:    now,
	}
	t.Cleanup(func() { _ = f.store.Close() })
	f.h = NewHandler(newTestVerifier(t, now), f.users, f.orgs, f.syncer, f.store, nil)
	f.h.now = func() time.Time { return now }
	f.router = gin.New()
	f.router.POST("/v1/webhooks/identity", f.h.Receive)
	return f
}

func (f *fixture) deliver(t *testing.T, id string, ev interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/identity", bytes.NewReader(body))
	req.Header.Set(HeaderID, id)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(f.now.Unix(), 10))
	req.Header.Set(HeaderSignature, f.h.verifier.Sign(id, f.now, body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func event(typ string, data interface{}) map[string]interface{} {
	return map[string]interface{}{"type": typ, "data": data}
}

func TestReceive_UserLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.store.Set(ctx, "user:user_1", []byte(`{"known":true,"active":true}`), time.Minute, "user_1")

	w := f.deliver(t, "msg_1", event(UserCreated, map[string]interface{}{
		"id":                       "user_1",
		"first_name":               "Dana",
		"last_name":                "Reyes",
		"primary_email_address_id": "em_2",
		"email_addresses": []map[string]string{
			{"id": "em_1", "email_address": "old@example.com"},
			{"id": "em_2", "email_address": "dana@example.com"},
		},
		"created_at": 1_789_000_000_000,
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	u := f.users.m["user_1"]
	if u == nil || u.Email != "dana@example.com" || u.Name != "Dana Reyes" || !u.IsActive() {
		t.Fatalf("user = %+v", u)
	}
	if _, ok, _ := f.store.Get(ctx, "user:user_1"); ok {
		t.Error("user cache entry should be invalidated")
	}

	w = f.deliver(t, "msg_2", event(UserUpdated, map[string]interface{}{"id": "user_1", "banned": true}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if f.users.m["user_1"].IsActive() {
		t.Error("banned user should be disabled")
	}

	for i := 0; i < 2; i++ {
		w = f.deliver(t, "msg_3", event(UserDeleted, map[string]interface{}{"id": "user_1", "deleted": true}))
		if w.Code != http.StatusOK {
			t.Fatalf("delete delivery %d status = %d", i, w.Code)
		}
	}
	u = f.users.m["user_1"]
	if u == nil || u.Status != userdomain.UserStatusDeleted || u.Email != "" {
		t.Fatalf("user = %+v, want tombstone", u)
	}

	// A late update does not revive the user.
	w = f.deliver(t, "msg_4", event(UserUpdated, map[string]interface{}{"id": "user_1", "first_name": "Dana"}))
	if w.Code != http.StatusOK {
		t.Fatalf("late update status = %d", w.Code)
	}
	if got := f.users.m["user_1"].Status; got != userdomain.UserStatusDeleted {
		t.Errorf("status after late update = %q, want %q", got, userdomain.UserStatusDeleted)
	}

	// A session minted before the deletion resolves to an inactive user.
	r := identity.NewResolver(f.users, nil, f.store, time.Minute)
	claims := &security.SessionClaims{SessionID: "sess_1", OrgID: "org_a", OrgRole: "admin"}
	claims.Subject = "user_1"
	uc, err := r.Resolve(ctx, claims)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if uc.IsActive {
		t.Error("deleted user should resolve as inactive")
	}
}

func TestReceive_Organization(t *testing.T) {
	f := newFixture(t)
	w := f.deliver(t, "msg_1", event(OrganizationCreated, map[string]interface{}{"id": "org_a", "name": "Acme Freight", "slug": "acme"}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if o := f.orgs.m["org_a"]; o == nil || o.Name != "Acme Freight" || o.Slug != "acme" {
		t.Fatalf("org = %+v", o)
	}
	w = f.deliver(t, "msg_2", event(OrganizationDeleted, map[string]interface{}{"id": "org_a", "deleted": true}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok := f.orgs.m["org_a"]; ok {
		t.Error("org should be deleted")
	}
}

func TestReceive_MembershipBeforeParents(t *testing.T) {
	f := newFixture(t)
	membership := map[string]interface{}{
		"id":               "orgmem_1",
		"role":             "org:dispatcher",
		"organization":     map[string]interface{}{"id": "org_a", "name": "Acme Freight"},
		"public_user_data": map[string]interface{}{"user_id": "user_1", "identifier": "dana@example.com"},
	}
	if w := f.deliver(t, "msg_1", event(MembershipCreated, membership)); w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if f.users.m["user_1"] == nil || f.orgs.m["org_a"] == nil {
		t.Fatal("placeholder user and org should exist")
	}
	if f.users.m["user_1"].Email != "dana@example.com" {
		t.Errorf("placeholder email = %q", f.users.m["user_1"].Email)
	}
	if w := f.deliver(t, "msg_2", event(MembershipDeleted, membership)); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := []syncCall{{"sync", "user_1", "org_a", "org:dispatcher"}, {"remove", "user_1", "org_a", ""}}
	if len(f.syncer.calls) != 2 || f.syncer.calls[0] != want[0] || f.syncer.calls[1] != want[1] {
		t.Errorf("sync calls = %+v, want %+v", f.syncer.calls, want)
	}
}

func TestReceive_Rejections(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/identity", bytes.NewReader([]byte(`{"type":"user.created"}`)))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unsigned status = %d, want 401", w.Code)
	}

	if w := f.deliver(t, "msg_1", "just a string"); w.Code != http.StatusBadRequest {
		t.Errorf("non-object status = %d, want 400", w.Code)
	}
	if w := f.deliver(t, "msg_2", event(UserCreated, map[string]interface{}{"first_name": "no id"})); w.Code != http.StatusBadRequest {
		t.Errorf("user without id status = %d, want 400", w.Code)
	}
	if w := f.deliver(t, "msg_3", event(MembershipCreated, map[string]interface{}{"role": "admin"})); w.Code != http.StatusBadRequest {
		t.Errorf("membership without ids status = %d, want 400", w.Code)
	}
}

func TestReceive_UnknownEventIgnored(t *testing.T) {
	f := newFixture(t)
	w := f.deliver(t, "msg_1", event("session.created", map[string]interface{}{"id": "sess_1"}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "ignored" {
		t.Errorf("status field = %q, want ignored", body["status"])
	}
}

func TestUserData_PrimaryEmailFallback(t *testing.T) {
	d := UserData{EmailAddresses: []emailAddress{{ID: "a", EmailAddress: "first@example.com"}}}
	if got := d.PrimaryEmail(); got != "first@example.com" {
		t.Errorf("PrimaryEmail = %q", got)
	}
	if got := (UserData{}).PrimaryEmail(); got != "" {
		t.Errorf("PrimaryEmail empty = %q", got)
	}
}
