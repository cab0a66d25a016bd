package auth

import (
	"net/http"
	"strings"
)

// RequireAdmin allows the request only if RequireLearner already injected
// role=admin into context.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(RoleAdmin)(next)
}

// RequireRole allows any of the given roles, compared case-insensitively.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := RoleFromContext(r.Context())
			role = strings.TrimSpace(role)
			for _, want := range roles {
				if strings.EqualFold(role, want) {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.WriteHeader(http.StatusForbidden)
		})
	}
}
