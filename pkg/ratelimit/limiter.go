// Package ratelimit implements per-key token-bucket admission control for
// write endpoints. Buckets refill continuously at capacity/window tokens per
// second; one token is consumed per accepted request and rejections consume
// nothing. One bucket exists per (scope, identity, route) tuple.
package ratelimit

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// Prometheus metrics for admission decisions.
var (
	rateLimitAllowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_ratelimit_allowed_total",
		Help: "Total number of requests admitted by the rate limiter",
	})

	rateLimitRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_ratelimit_rejected_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	rateLimitSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_ratelimit_sweeps_total",
		Help: "Total number of opportunistic bucket table sweeps",
	})

	rateLimitBuckets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_ratelimit_buckets",
		Help: "Current number of live rate limit buckets",
	})
)

// idleWindows is how many windows a bucket may sit untouched before a sweep
// removes it.
const idleWindows = 10

// Rule is one route's admission allowance: Capacity requests per Window.
type Rule struct {
	Capacity int
	Window   time.Duration
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool

	// RetryAfter is how long the caller should wait before retrying, rounded
	// up to whole seconds. Zero when Allowed.
	RetryAfter time.Duration
}

// bucket is the refill state for one key. Stored by value so the table's
// atomic Compute gives us a lock-free read-modify-write per check.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
	window     time.Duration
}

// Limiter is the process-wide bucket table. It never errors: every check
// returns an allow/deny decision. The table is swept opportunistically once it
// grows past sweepThreshold, which bounds memory without a timer.
type Limiter struct {
	buckets        *xsync.MapOf[string, bucket]
	sweepThreshold int
	sweeping       atomic.Bool
	logger         zerolog.Logger

	// now is the clock, swappable in tests.
	now func() time.Time
}

// NewLimiter creates a limiter whose bucket table is swept once it exceeds
// sweepThreshold entries.
func NewLimiter(sweepThreshold int, logger zerolog.Logger) *Limiter {
	if sweepThreshold <= 0 {
		sweepThreshold = 10000
	}
	return &Limiter{
		buckets:        xsync.NewMapOf[string, bucket](),
		sweepThreshold: sweepThreshold,
		logger:         logger,
		now:            time.Now,
	}
}

// Key builds the bucket key for a (scope, identity, route) tuple.
func Key(scope, identity, route string) string {
	return fmt.Sprintf("%s:%s:%s", scope, identity, route)
}

// Check runs one admission decision for key under rule. The bucket is
// initialized full on first sight, refilled for the elapsed time since the
// last check, and charged one token only when the request is admitted.
func (l *Limiter) Check(key string, rule Rule) Decision {
	now := l.now()
	rate := float64(rule.Capacity) / rule.Window.Seconds()

	var decision Decision
	l.buckets.Compute(key, func(b bucket, loaded bool) (bucket, bool) {
		if !loaded {
			b = bucket{tokens: float64(rule.Capacity), lastRefill: now}
		}

		elapsed := now.Sub(b.lastRefill).Seconds()
		b.tokens = math.Min(float64(rule.Capacity), b.tokens+elapsed*rate)
		b.lastRefill = now
		b.lastSeen = now
		b.window = rule.Window

		if b.tokens < 1 {
			decision = Decision{
				Allowed:    false,
				RetryAfter: time.Duration(math.Ceil((1-b.tokens)/rate)) * time.Second,
			}
			return b, false
		}

		b.tokens--
		decision = Decision{Allowed: true}
		return b, false
	})

	if decision.Allowed {
		rateLimitAllowedTotal.Inc()
	} else {
		rateLimitRejectedTotal.Inc()
	}

	l.maybeSweep(now)
	return decision
}

// refund returns one token to key, capped at the rule capacity. Used by the
// composite middleware when another scope rejects a request this scope already
// charged.
func (l *Limiter) refund(key string, rule Rule) {
	l.buckets.Compute(key, func(b bucket, loaded bool) (bucket, bool) {
		if !loaded {
			return b, true
		}
		b.tokens = math.Min(float64(rule.Capacity), b.tokens+1)
		return b, false
	})
}

// Len returns the current number of buckets.
func (l *Limiter) Len() int {
	return l.buckets.Size()
}

// maybeSweep drops buckets idle for more than idleWindows times their own
// window once the table has grown past the threshold. At most one sweep runs
// at a time; checks arriving during a sweep proceed normally.
func (l *Limiter) maybeSweep(now time.Time) {
	if l.buckets.Size() <= l.sweepThreshold {
		return
	}
	if !l.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer l.sweeping.Store(false)

	removed := 0
	l.buckets.Range(func(key string, b bucket) bool {
		if now.Sub(b.lastSeen) > idleWindows*b.window {
			l.buckets.Delete(key)
			removed++
		}
		return true
	})

	rateLimitSweepsTotal.Inc()
	rateLimitBuckets.Set(float64(l.buckets.Size()))
	l.logger.Debug().
		Int("removed", removed).
		Int("remaining", l.buckets.Size()).
		Msg("rate limit bucket sweep")
}
