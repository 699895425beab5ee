package authz

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// DenyFunc observes a request rejected by RequireRole.
type DenyFunc func(r *http.Request, actor Actor, allowed RoleSet)

// RequireRole returns middleware that admits only actors whose role is in
// allowed. It expects IdentityMiddleware to have run; a request without an
// actor gets 401, a request with the wrong role gets 403. onDeny may be nil.
func RequireRole(allowed RoleSet, onDeny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "valid identity required")
				return
			}
			if !allowed.Contains(actor.Role) {
				if onDeny != nil {
					onDeny(r, actor, allowed)
				}
				writeError(w, http.StatusForbidden, "forbidden",
					fmt.Sprintf("role %s may not access this endpoint (requires one of %s)", actor.Role, allowed))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoles is RequireRole over an ad hoc role list.
func RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return RequireRole(NewRoleSet(roles...), nil)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
