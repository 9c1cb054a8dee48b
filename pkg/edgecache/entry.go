// Package edgecache implements the response cache that fronts every read
// endpoint: deterministic key canonicalization, a Redis-backed entry store
// with an optional in-process hot layer, and the cache-aside HTTP middleware.
package edgecache

import (
	"net/http"
	"time"
)

// Entry is one cached response. Entries are immutable once stored; a write to
// the same key fully replaces the previous entry.
type Entry struct {
	// Status is the HTTP status code of the cached response.
	Status int `json:"status"`

	// Header holds the response headers captured at store time, including
	// Content-Type and the Cache-Control derived from the route's TTL class.
	Header http.Header `json:"header"`

	// Body is the response body.
	Body []byte `json:"body"`

	// StoredAt is when the entry was written.
	StoredAt time.Time `json:"stored_at"`

	// TTL is how long the entry stays fresh, measured from StoredAt.
	TTL time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant the entry goes stale.
func (e *Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// IsExpired reports whether the entry is stale at the given instant. Redis
// evicts entries server-side via key TTLs; this check additionally guards the
// hot layer, whose client-wide TTL may outlive a short entry TTL.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt())
}
