package edgecache

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	// HeaderCacheStatus is the diagnostic header carried by every cacheable
	// response: HIT when served from the store, MISS when freshly computed.
	HeaderCacheStatus = "x-cache"

	statusHit  = "HIT"
	statusMiss = "MISS"

	// storeTimeout bounds the asynchronous cache write that follows a miss.
	storeTimeout = 5 * time.Second
)

// Middleware wraps read handlers with cache-aside behavior: look up the
// canonical key, serve a stored entry on hit, otherwise run the handler and
// store a successful response without blocking the client.
//
// There is deliberately no single-flight on concurrent misses: two requests
// racing the same cold key both run the handler and both write; the last write
// wins and both responses are individually correct.
type Middleware struct {
	store  Store
	policy TTLPolicy
	logger zerolog.Logger
}

// NewMiddleware creates the cache middleware.
func NewMiddleware(store Store, policy TTLPolicy, logger zerolog.Logger) *Middleware {
	if store == nil {
		panic("cache store cannot be nil")
	}
	return &Middleware{store: store, policy: policy, logger: logger}
}

// Wrap returns next wrapped with cache-aside behavior for the given TTL class.
func (m *Middleware) Wrap(class Class, next http.Handler) http.Handler {
	ttl := m.policy.TTL(class)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ttl <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			CacheBypass.WithLabelValues("method").Inc()
			next.ServeHTTP(w, r)
			return
		}
		// Personalized responses must never be shared across identities.
		if r.Header.Get("Authorization") != "" {
			CacheBypass.WithLabelValues("authorized").Inc()
			next.ServeHTTP(w, r)
			return
		}

		key := Canonicalize(r.URL.Path, r.URL.Query())

		entry, err := m.store.Get(r.Context(), key)
		if err == nil {
			m.writeEntry(w, entry)
			return
		}
		if err != ErrMiss {
			// Store unavailability degrades to a miss; the handler still runs.
			m.logger.Warn().Err(err).Str("key", key).Msg("cache lookup failed, serving as miss")
		}

		rec := newRecorder()
		next.ServeHTTP(rec, r)

		if rec.status < 200 || rec.status >= 300 {
			rec.copyTo(w)
			return
		}

		entry = &Entry{
			Status:   rec.status,
			Header:   rec.header.Clone(),
			Body:     rec.body.Bytes(),
			StoredAt: time.Now(),
			TTL:      ttl,
		}
		entry.Header.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ttl.Seconds())))

		rec.header.Set("Cache-Control", entry.Header.Get("Cache-Control"))
		rec.header.Set(HeaderCacheStatus, statusMiss)
		rec.copyTo(w)

		// The client already has its response; the store write happens off
		// the request path and a failure is logged, never surfaced.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			if err := m.store.Set(ctx, key, entry); err != nil {
				m.logger.Warn().Err(err).Str("key", key).Msg("cache store failed")
			}
		}()
	})
}

// NoStore marks a route as uncacheable for downstream caches.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeEntry replays a stored entry verbatim, annotated as a hit.
func (m *Middleware) writeEntry(w http.ResponseWriter, entry *Entry) {
	for name, values := range entry.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.Header().Set(HeaderCacheStatus, statusHit)
	w.WriteHeader(entry.Status)
	if _, err := w.Write(entry.Body); err != nil {
		m.logger.Debug().Err(err).Msg("client gone before cached body was written")
	}
}

// recorder buffers the wrapped handler's response so headers can still be
// adjusted after the handler returns.
type recorder struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{status: http.StatusOK, header: make(http.Header)}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) { r.status = status }

func (r *recorder) Write(p []byte) (int, error) { return r.body.Write(p) }

func (r *recorder) copyTo(w http.ResponseWriter) {
	for name, values := range r.header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(r.status)
	_, _ = w.Write(r.body.Bytes())
}
