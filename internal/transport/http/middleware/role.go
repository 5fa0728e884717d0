package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RequireSelfOrStaff allows the request when the URL parameter param names
// the caller, or when the caller is staff.
func RequireSelfOrStaff(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if p.IsStaff || p.UserID == chi.URLParam(r, param) {
				next.ServeHTTP(w, r)
				return
			}
			writeJSONError(w, http.StatusForbidden, "forbidden")
		})
	}
}
