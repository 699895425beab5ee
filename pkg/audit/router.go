package audit

import (
	"github.com/go-chi/chi/v5"

	"github.com/herbtrace/herbtrace/pkg/authz"
)

// Router creates a chi.Router for the audit API. Both endpoints are limited to
// oversight roles; onDeny may be nil.
func Router(store *Store, onDeny authz.DenyFunc) chi.Router {
	r := chi.NewRouter()
	r.Use(authz.RequireRole(authz.OversightRoles, onDeny))
	r.Get("/events", ListEventsHandler(store))
	r.Get("/events/{eventId}", GetEventHandler(store))
	return r
}
