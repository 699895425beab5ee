// Package metrics defines the Prometheus collectors exported by herbtrace and
// the helpers that feed them. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "herbtrace"

// Geo validation outcomes.
const (
	GeoInvalid = "invalid"
	GeoWarning = "warning"
	GeoClean   = "clean"
)

// Metrics bundles the herbtrace collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	CollectionsCreated *prometheus.CounterVec
	StatusTransitions  *prometheus.CounterVec
	AccessDenied       *prometheus.CounterVec
	GeoValidations     *prometheus.CounterVec
	WriteConflicts     prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg creates unregistered
// collectors, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &Metrics{
		gatherer: gatherer,
		CollectionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collections",
			Name:      "created_total",
			Help:      "Collection records created, by detected region.",
		}, []string{"region"}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collections",
			Name:      "status_transitions_total",
			Help:      "Accepted collection status transitions.",
		}, []string{"from", "to"}),
		AccessDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "denied_total",
			Help:      "Operations rejected for role or ownership, by operation.",
		}, []string{"operation"}),
		GeoValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geo",
			Name:      "validations_total",
			Help:      "Collection location validations, by outcome (invalid, warning, clean).",
		}, []string{"outcome"}),
		WriteConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collections",
			Name:      "write_conflicts_total",
			Help:      "Status writes rejected because the record changed concurrently.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by method, route pattern and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

// CollectionCreated counts a new record in region.
func (m *Metrics) CollectionCreated(region string) {
	if m == nil {
		return
	}
	m.CollectionsCreated.WithLabelValues(region).Inc()
}

// StatusTransition counts an accepted status change.
func (m *Metrics) StatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// Denied counts an authorization rejection for operation.
func (m *Metrics) Denied(operation string) {
	if m == nil {
		return
	}
	m.AccessDenied.WithLabelValues(operation).Inc()
}

// GeoValidation counts a location validation by outcome.
func (m *Metrics) GeoValidation(valid bool, warnings int) {
	if m == nil {
		return
	}
	outcome := GeoClean
	switch {
	case !valid:
		outcome = GeoInvalid
	case warnings > 0:
		outcome = GeoWarning
	}
	m.GeoValidations.WithLabelValues(outcome).Inc()
}

// Conflict counts a rejected stale write.
func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.WriteConflicts.Inc()
}

// Middleware records request counts and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
