// Package server assembles the herbtrace HTTP API: collection lifecycle,
// geo reference, audit query and operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/herbtrace/herbtrace/pkg/audit"
	"github.com/herbtrace/herbtrace/pkg/authz"
	"github.com/herbtrace/herbtrace/pkg/cache"
	"github.com/herbtrace/herbtrace/pkg/collection"
	"github.com/herbtrace/herbtrace/pkg/config"
	"github.com/herbtrace/herbtrace/pkg/database"
	"github.com/herbtrace/herbtrace/pkg/geo"
	"github.com/herbtrace/herbtrace/pkg/ident"
	"github.com/herbtrace/herbtrace/pkg/metrics"
	"github.com/herbtrace/herbtrace/pkg/provenance"
)

// Base paths.
const (
	APIPrefix   = "/api/v1"
	AuditPrefix = "/api/audit/v1"
)

// Server owns the stores and services behind the HTTP API.
type Server struct {
	cfg         *config.Config
	db          *gorm.DB
	collections *collection.Store
	audit       *audit.Store
	service     *collection.Service
	caches      *cache.Manager
	metrics     *metrics.Metrics
	extractor   authz.Extractor
	logger      *slog.Logger
	startedAt   time.Time
	now         func() time.Time
	registerer  prometheus.Registerer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegisterer sets the Prometheus registry. Default: the global registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) { s.registerer = reg }
}

// WithExtractor overrides the identity extractor derived from cfg.Auth.
func WithExtractor(e authz.Extractor) Option {
	return func(s *Server) { s.extractor = e }
}

// WithClock overrides the clock used for IDs and dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New migrates the schema and wires the collection service.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		db:         db,
		now:        time.Now,
		registerer: prometheus.DefaultRegisterer,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.startedAt = s.now()

	if s.extractor == nil {
		ex, err := authz.NewExtractor(authz.Mode(cfg.Auth.Mode), cfg.Auth.JWTConfig(s.logger), s.logger)
		if err != nil {
			return nil, fmt.Errorf("configure identity: %w", err)
		}
		s.extractor = ex
	}

	s.collections = collection.NewStore(db)
	s.audit = audit.NewStore(db)
	if err := database.Migrate(ctx, db, s.logger, s.collections, s.audit); err != nil {
		return nil, err
	}

	s.metrics = metrics.New(s.registerer)
	s.caches = cache.NewManager(cfg.Cache)

	s.service = collection.NewService(s.collections,
		collection.WithStatusMachine(collection.NewStatusMachine(cfg.Lifecycle.EnforceAdjacency)),
		collection.WithGenerator(ident.New(ident.WithClock(s.now))),
		collection.WithRecorder(s.audit),
		collection.WithMetrics(s.metrics),
		collection.WithInvalidator(s.caches),
		collection.WithLogger(s.logger),
		collection.WithClock(s.now),
	)

	s.logger.Info("server initialized",
		"database", db.Dialector.Name(),
		"authMode", cfg.Auth.Mode,
		"enforceAdjacency", cfg.Lifecycle.EnforceAdjacency,
		"cache", cfg.Cache.Enabled,
		"audit", cfg.Audit.Enabled)
	return s, nil
}

// Service exposes the collection service.
func (s *Server) Service() *collection.Service { return s.service }

// AuditStore exposes the audit store.
func (s *Server) AuditStore() *audit.Store { return s.audit }

// RetentionWorker returns the audit pruning worker for the caller to run.
func (s *Server) RetentionWorker() *audit.RetentionWorker {
	return audit.NewRetentionWorker(s.audit, s.cfg.Audit, s.logger)
}

// Handler builds the root router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
			authz.PrincipalHeader, authz.RoleHeader, audit.CorrelationHeader},
		ExposedHeaders:   []string{"Location", "X-Cache"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route(APIPrefix, func(r chi.Router) {
		r.Mount("/geo", geo.NewRouter())
		r.Mount("/provenance", provenance.NewRouter(s.cfg.Provenance.BaseURL))

		r.Group(func(r chi.Router) {
			r.Use(authz.IdentityMiddleware(s.extractor, s.logger))
			r.Use(audit.Middleware(s.audit, s.cfg.Audit, s.logger))
			r.Mount("/collections", collection.NewRouter(s.service, s.audit, s.caches, s.onDeny))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authz.IdentityMiddleware(s.extractor, s.logger))
		r.Mount(AuditPrefix, audit.Router(s.audit, s.onDeny))
	})

	return r
}

// onDeny records route-guard rejections the same way the service records its
// own denials.
func (s *Server) onDeny(r *http.Request, actor authz.Actor, allowed authz.RoleSet) {
	s.metrics.Denied(r.Method + " " + routePattern(r))
	s.logger.Warn("route access denied",
		"actor", actor.ID, "role", actor.Role, "path", r.URL.Path, "allowed", allowed.String())

	if !s.cfg.Audit.LogDenied {
		return
	}
	event := &audit.Event{
		EventType:    audit.EventAccessDenied,
		Actor:        actor.ID,
		ActorRole:    string(actor.Role),
		ResourceType: resourceType(r),
		ResourceID:   chi.URLParam(r, "id"),
		Action:       r.Method + " " + routePattern(r),
		Outcome:      audit.OutcomeDenied,
		Reason:       fmt.Sprintf("requires one of %s", allowed),
		StatusCode:   http.StatusForbidden,
	}
	if err := s.audit.Record(r.Context(), event); err != nil {
		s.logger.Error("failed to write audit event", "error", err)
	}
}

func resourceType(r *http.Request) string {
	if strings.HasPrefix(r.URL.Path, AuditPrefix) {
		return "events"
	}
	return "collections"
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": s.now().Sub(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	dbStatus := map[string]string{"status": "up"}
	ready := true
	if err := s.collections.Ping(r.Context()); err != nil {
		dbStatus["status"] = "down"
		dbStatus["error"] = err.Error()
		ready = false
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": map[string]any{"database": dbStatus},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
