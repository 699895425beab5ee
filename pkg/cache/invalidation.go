package cache

import (
	"net/http"
)

// Manager holds separate cache instances for collection statistics and for
// reference lists (distinct herbs, distinct locations, recent feed), each with
// its own TTL. Any collection write invalidates both.
type Manager struct {
	statistics *LRUCache
	reference  *LRUCache
}

// NewManager creates a Manager from cfg. It returns nil when caching is
// disabled; a nil *Manager is safe to use and caches nothing.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return nil
	}
	return &Manager{
		statistics: NewLRUCache(cfg.MaxSize, cfg.StatisticsTTL),
		reference:  NewLRUCache(cfg.MaxSize, cfg.ReferenceTTL),
	}
}

// InvalidateCollections drops every cached collection read. It is called
// after each successful create, status change or delete.
func (m *Manager) InvalidateCollections() {
	if m == nil {
		return
	}
	m.statistics.InvalidateAll()
	m.reference.InvalidateAll()
}

// StatisticsMiddleware caches statistics responses per actor.
func (m *Manager) StatisticsMiddleware() func(http.Handler) http.Handler {
	if m == nil {
		return passthrough
	}
	return Middleware(m.statistics, ActorKey)
}

// ReferenceMiddleware caches reference-list responses. They do not depend on
// the caller, so entries are shared.
func (m *Manager) ReferenceMiddleware() func(http.Handler) http.Handler {
	if m == nil {
		return passthrough
	}
	return Middleware(m.reference, URIKey)
}

func passthrough(next http.Handler) http.Handler { return next }
