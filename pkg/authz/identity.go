package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Headers read by HeaderExtractor.
const (
	PrincipalHeader = "X-User-Principal"
	RoleHeader      = "X-User-Role"
)

// ErrNoIdentity is returned by extractors when the request carries no
// identity at all.
var ErrNoIdentity = errors.New("no identity in request")

// actorCtxKey is an unexported type used as the context key for Actor.
type actorCtxKey struct{}

// WithActor returns a new context with the given Actor attached.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

// ActorFromContext retrieves the Actor from the context.
// Returns the zero value and false if no actor is set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(Actor)
	return a, ok
}

// Extractor resolves the Actor behind an HTTP request.
type Extractor func(r *http.Request) (Actor, error)

// HeaderExtractor reads the actor from X-User-Principal and X-User-Role.
// It trusts the headers unconditionally and is meant for development or for
// deployments behind an authenticating proxy.
func HeaderExtractor(r *http.Request) (Actor, error) {
	id := strings.TrimSpace(r.Header.Get(PrincipalHeader))
	if id == "" {
		return Actor{}, ErrNoIdentity
	}
	role, err := ParseRole(r.Header.Get(RoleHeader))
	if err != nil {
		return Actor{}, fmt.Errorf("principal %s: %w", id, err)
	}
	return Actor{ID: id, Role: role}, nil
}

// IdentityMiddleware resolves the actor with extractor and stores it in the
// request context. Requests without a valid identity are rejected with 401.
func IdentityMiddleware(extractor Extractor, logger *slog.Logger) func(http.Handler) http.Handler {
	if extractor == nil {
		extractor = HeaderExtractor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := extractor(r)
			if err != nil {
				logger.Debug("identity extraction failed", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusUnauthorized, "unauthorized", "valid identity required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
