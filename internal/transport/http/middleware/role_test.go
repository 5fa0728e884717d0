package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func serveSelfOrStaff(p *Principal, target string) int {
	r := chi.NewRouter()
	r.With(RequireSelfOrStaff("id")).Get("/users/{id}", okHandler)
	req := httptest.NewRequest(http.MethodGet, "/users/"+target, nil)
	if p != nil {
		req = req.WithContext(WithPrincipal(req.Context(), p))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr.Code
}

func TestRequireSelfOrStaff_NoPrincipal(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, serveSelfOrStaff(nil, "u1"))
}

func TestRequireSelfOrStaff_OtherUser(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, serveSelfOrStaff(&Principal{UserID: "u2"}, "u1"))
}

func TestRequireSelfOrStaff_Self(t *testing.T) {
	assert.Equal(t, http.StatusOK, serveSelfOrStaff(&Principal{UserID: "u1"}, "u1"))
}

func TestRequireSelfOrStaff_Staff(t *testing.T) {
	assert.Equal(t, http.StatusOK, serveSelfOrStaff(&Principal{UserID: "admin", IsStaff: true}, "u1"))
}
