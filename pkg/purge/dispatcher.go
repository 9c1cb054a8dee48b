package purge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hasancaglar07/usercomments-edge/pkg/edgecache"
)

var (
	purgeURLsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_purge_urls_total",
		Help: "Total number of purge attempts by result",
	}, []string{"result"}) // "ok", "error", "invalid"

	purgeBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_purge_batches_total",
		Help: "Total number of dispatched purge batches",
	})
)

// dispatchTimeout bounds one background purge batch.
const dispatchTimeout = 30 * time.Second

// Dispatcher issues best-effort purges against the cache store. Failures are
// logged and never retried: the triggering mutation has already succeeded, and
// a missed purge only delays freshness until the entry's TTL expires.
// Operators can re-trigger a full purge through the internal endpoint.
type Dispatcher struct {
	store       edgecache.Store
	logger      zerolog.Logger
	concurrency int
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher that purges at most concurrency URLs in
// parallel per batch.
func NewDispatcher(store edgecache.Store, logger zerolog.Logger, concurrency int) *Dispatcher {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Dispatcher{store: store, logger: logger, concurrency: concurrency}
}

// Dispatch schedules a purge batch in the background and returns immediately,
// so invalidation latency never adds to user-facing write latency. The batch
// is decoupled from the triggering request: a client disconnect does not
// cancel it. At-most-once, no retries.
func (d *Dispatcher) Dispatch(urls []string) {
	if len(urls) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		d.DispatchSync(ctx, urls)
	}()
}

// DispatchSync purges the given URLs and returns how many were purged
// successfully. Every URL is attempted even when some fail; the count is
// observability, not a success guarantee.
func (d *Dispatcher) DispatchSync(ctx context.Context, urls []string) int {
	if len(urls) == 0 {
		return 0
	}
	purgeBatchesTotal.Inc()

	// Re-deduplicate: callers may combine URL sets from several targets.
	seen := make(map[string]struct{}, len(urls))
	var purged atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}

		g.Go(func() error {
			key, err := edgecache.CanonicalizeURL(u)
			if err != nil {
				purgeURLsTotal.WithLabelValues("invalid").Inc()
				d.logger.Warn().Err(err).Str("url", u).Msg("unparseable purge url")
				return nil
			}
			if err := d.store.Purge(ctx, key); err != nil {
				purgeURLsTotal.WithLabelValues("error").Inc()
				d.logger.Warn().Err(err).Str("url", u).Msg("purge failed")
				return nil
			}
			purgeURLsTotal.WithLabelValues("ok").Inc()
			purged.Add(1)
			return nil
		})
	}
	// Workers always return nil so one failure cannot short-circuit the rest.
	_ = g.Wait()

	return int(purged.Load())
}

// Drain waits for in-flight background batches to finish, up to the context
// deadline. Used during server shutdown.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
