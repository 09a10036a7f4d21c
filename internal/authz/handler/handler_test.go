package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/authz"
	"fleet-access-control/internal/permission"
	"fleet-access-control/internal/server/middleware"
)

func newRouter(u permission.UserContext) *gin.Engine {
	gin.SetMode(gin.TestMode)
	a := authz.NewAuthorizer(permission.NewResolver(permission.DefaultTable(), permission.WithWarnFunc(func(string, ...any) {})))
	r := gin.New()
	g := r.Group("/v1/authz", func(c *gin.Context) {
		c.Request = c.Request.WithContext(middleware.WithUserContext(c.Request.Context(), u))
	})
	NewHandler(a).Register(g)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decision(t *testing.T, w *httptest.ResponseRecorder) permission.Decision {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	var d permission.Decision
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return d
}

var dispatcher = permission.UserContext{UserID: "u1", OrganizationID: "org-1", Role: "dispatcher", IsActive: true}

func TestCheck(t *testing.T) {
	r := newRouter(dispatcher)

	if d := decision(t, post(r, "/v1/authz/check", `{"action":"create","resource":"load"}`)); !d.Allowed {
		t.Errorf("create load = %+v, want allowed", d)
	}
	d := decision(t, post(r, "/v1/authz/check", `{"action":"read","resource":"load","attributes":{"org_id":"org-2"}}`))
	if d.Allowed || d.Detail != authz.DetailCrossTenant {
		t.Errorf("cross-tenant = %+v", d)
	}
	if d := decision(t, post(r, "/v1/authz/check", `{"action":"read","resource":"invoice"}`)); d.Allowed {
		t.Errorf("read invoice = %+v, want denied", d)
	}

	for _, body := range []string{`{`, `{"action":"fly","resource":"load"}`, `{"action":"read"}`} {
		if w := post(r, "/v1/authz/check", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestRolesAndRoute(t *testing.T) {
	r := newRouter(dispatcher)
	if d := decision(t, post(r, "/v1/authz/roles", `{"roles":["dispatcher","driver"]}`)); !d.Allowed {
		t.Errorf("roles = %+v", d)
	}
	if d := decision(t, post(r, "/v1/authz/roles", `{"roles":[]}`)); d.Allowed {
		t.Errorf("empty roles = %+v, want denied for dispatcher", d)
	}
	if d := decision(t, post(r, "/v1/authz/route", `{"path":"/dispatch/board"}`)); !d.Allowed {
		t.Errorf("route /dispatch = %+v", d)
	}
	if d := decision(t, post(r, "/v1/authz/route", `{"path":"/billing"}`)); d.Allowed {
		t.Errorf("route /billing = %+v, want denied", d)
	}
	if w := post(r, "/v1/authz/route", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing path status = %d, want 400", w.Code)
	}
}

func TestPermissions(t *testing.T) {
	r := newRouter(permission.UserContext{UserID: "u1", OrganizationID: "org-1", Role: "viewer", IsActive: true})
	req := httptest.NewRequest(http.MethodGet, "/v1/authz/permissions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got permissionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Role != "viewer" || len(got.Permissions) != 3 {
		t.Errorf("response = %+v", got)
	}
}
