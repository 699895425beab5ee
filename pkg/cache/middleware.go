package cache

import (
	"bytes"
	"net/http"

	"github.com/herbtrace/herbtrace/pkg/authz"
)

// cacheResponseWriter wraps http.ResponseWriter to capture the response body
// and status code so they can be stored in the cache.
type cacheResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *cacheResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// KeyFunc derives the cache key for a request.
type KeyFunc func(r *http.Request) string

// ActorKey keys on the actor and the request URI, so that role- or
// owner-scoped responses are never shared between actors.
func ActorKey(r *http.Request) string {
	key := r.URL.RequestURI()
	if a, ok := authz.ActorFromContext(r.Context()); ok {
		return string(a.Role) + "|" + a.ID + "|" + key
	}
	return "|" + key
}

// URIKey keys on the request URI only, for responses identical for every
// caller.
func URIKey(r *http.Request) string {
	return r.URL.RequestURI()
}

// Middleware returns HTTP middleware that caches GET responses in c.
//
//   - Only GET requests are cached; all other methods pass through.
//   - On hit the cached body is replayed with its Content-Type and
//     X-Cache: HIT.
//   - On miss the handler runs with X-Cache: MISS; 200 responses are stored.
func Middleware(c *LRUCache, keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ActorKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c == nil || r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFn(r)

			if cached, contentType, ok := c.get(key); ok {
				w.Header().Set("Content-Type", contentType)
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(cached)
				return
			}

			crw := &cacheResponseWriter{ResponseWriter: w}
			crw.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(crw, r)

			if crw.statusCode == http.StatusOK {
				contentType := crw.Header().Get("Content-Type")
				if contentType == "" {
					contentType = "application/json"
				}
				c.set(key, bytes.Clone(crw.body.Bytes()), contentType)
			}
		})
	}
}
