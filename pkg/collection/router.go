package collection

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/herbtrace/herbtrace/pkg/authz"
	"github.com/herbtrace/herbtrace/pkg/cache"
)

// Route guards. They duplicate the service's own checks at the transport
// boundary.
var (
	createRoles     = authz.NewRoleSet(authz.RoleFarmer)
	byStatusRoles   = authz.NewRoleSet(authz.RoleProcessor, authz.RoleLabTechnician, authz.RoleRegulator, authz.RoleAdmin)
	statisticsRoles = authz.NewRoleSet(authz.RoleFarmer, authz.RoleRegulator, authz.RoleAdmin)
	updateRoles     = authz.NewRoleSet(authz.RoleFarmer, authz.RoleProcessor, authz.RoleRegulator, authz.RoleAdmin)
	deleteRoles     = authz.NewRoleSet(authz.RoleFarmer, authz.RoleAdmin)
)

// NewRouter creates a chi router with the collection routes, meant to be
// mounted at /collections. history may be nil to disable the history route;
// caches may be nil to disable response caching.
func NewRouter(svc *Service, history HistorySource, caches *cache.Manager, onDeny authz.DenyFunc) chi.Router {
	r := chi.NewRouter()

	guard := func(roles authz.RoleSet) func(http.Handler) http.Handler {
		return authz.RequireRole(roles, onDeny)
	}

	r.With(guard(authz.StaffRoles)).Get("/", listHandler(svc))
	r.With(guard(createRoles)).Post("/", createHandler(svc))

	r.With(guard(createRoles)).Get("/mine", listMineHandler(svc))
	r.With(guard(authz.OversightRoles)).Get("/all", listAllHandler(svc))
	r.With(guard(authz.StaffRoles)).Get("/search", searchHandler(svc))
	r.With(guard(authz.StaffRoles)).Get("/by-location", byLocationHandler(svc))
	r.With(guard(byStatusRoles)).Get("/by-status/{status}", byStatusHandler(svc))
	r.With(guard(authz.StaffRoles)).Get("/by-herb/{herb}", byHerbHandler(svc))

	r.With(guard(statisticsRoles), caches.StatisticsMiddleware()).Get("/statistics", statisticsHandler(svc))
	r.Group(func(r chi.Router) {
		r.Use(guard(authz.StaffRoles), caches.ReferenceMiddleware())
		r.Get("/herbs", herbNamesHandler(svc))
		r.Get("/locations", locationsHandler(svc))
		r.Get("/recent", recentHandler(svc))
	})

	r.Route("/{id}", func(r chi.Router) {
		r.With(guard(authz.StaffRoles)).Get("/", getHandler(svc))
		r.With(guard(deleteRoles)).Delete("/", deleteHandler(svc))
		r.With(guard(updateRoles)).Patch("/status", updateStatusHandler(svc))
		r.With(guard(authz.StaffRoles)).Get("/transitions", transitionsHandler(svc))
		if history != nil {
			r.With(guard(authz.StaffRoles)).Get("/history", historyHandler(svc, history))
		}
	})

	return r
}
