package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// IdentityFunc resolves the authenticated identity behind a request. An empty
// string means anonymous; anonymous requests are limited by IP only.
type IdentityFunc func(r *http.Request) string

// Limit wraps next with a composite admission check for route: the client IP
// bucket always applies, and when the request carries an identity a second
// user-scoped bucket applies too. The request passes only if every applicable
// check passes; on rejection the Retry-After is the maximum across the failed
// scopes, so an authenticated abuser rotating IPs is throttled no more gently
// than an anonymous one. A rejection refunds the token any passing scope
// already charged, so a denied request consumes nothing in any scope.
func (l *Limiter) Limit(route string, rule Rule, identity IdentityFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys := []string{Key("ip", clientIP(r), route)}
		if identity != nil {
			if user := identity(r); user != "" {
				keys = append(keys, Key("user", user, route))
			}
		}

		decisions := make([]Decision, len(keys))
		for i, key := range keys {
			decisions[i] = l.Check(key, rule)
		}

		var retryAfter time.Duration
		allowed := true
		for _, d := range decisions {
			if !d.Allowed {
				allowed = false
				if d.RetryAfter > retryAfter {
					retryAfter = d.RetryAfter
				}
			}
		}

		if !allowed {
			for i, d := range decisions {
				if d.Allowed {
					l.refund(keys[i], rule)
				}
			}
			writeTooManyRequests(w, retryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the originating client address, preferring the first hop
// recorded by an upstream proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(retryAfter / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too Many Requests"})
}
