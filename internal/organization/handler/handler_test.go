package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"fleet-access-control/internal/organization/domain"
)

type fakeOrgs struct {
	orgs map[string]*domain.Org
	err  error
}

func (f fakeOrgs) GetByID(ctx context.Context, id string) (*domain.Org, error) {
	return f.orgs[id], f.err
}

func TestGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		orgs   fakeOrgs
		status int
	}{
		{"found", fakeOrgs{orgs: map[string]*domain.Org{"org-1": {ID: "org-1", Name: "Acme Freight"}}}, http.StatusOK},
		{"missing", fakeOrgs{}, http.StatusNotFound},
		{"db error", fakeOrgs{err: errors.New("db down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/v1/orgs/:org_id", NewHandler(tt.orgs).Get)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/orgs/org-1", nil))
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}
