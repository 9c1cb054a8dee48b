// Package server wires the edge request path: read routes pass through the
// response cache, write routes pass through rate-limit admission and trigger
// invalidation fan-out after their response is prepared.
package server

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hasancaglar07/usercomments-edge/internal/config"
	"github.com/hasancaglar07/usercomments-edge/internal/data"
	"github.com/hasancaglar07/usercomments-edge/pkg/edgecache"
	"github.com/hasancaglar07/usercomments-edge/pkg/logging"
	"github.com/hasancaglar07/usercomments-edge/pkg/metrics"
	"github.com/hasancaglar07/usercomments-edge/pkg/purge"
	"github.com/hasancaglar07/usercomments-edge/pkg/ratelimit"
)

// HeaderAuthenticatedUser is set by the upstream authentication layer. It is
// used only for rate-limit scoping; cache eligibility keys off the raw
// Authorization header.
const HeaderAuthenticatedUser = "X-Authenticated-User"

// Data is the slice of the data layer the handlers consume.
type Data interface {
	ReviewTarget(ctx context.Context, reviewID int64) (purge.Target, error)
	ReviewBySlug(ctx context.Context, slug, language string) (data.Review, error)
	ListReviews(ctx context.Context, q data.ListQuery) ([]data.Review, error)
	ListComments(ctx context.Context, reviewID int64, page, pageSize int) ([]data.Comment, error)
	CommentsByAuthor(ctx context.Context, author string, page, pageSize int) ([]data.Comment, error)
	AddVote(ctx context.Context, reviewID int64) error
	AddComment(ctx context.Context, reviewID int64, author, body string) (int64, error)
	ProductBySlug(ctx context.Context, slug, language string) (data.Product, error)
	ListProducts(ctx context.Context, q data.ListQuery) ([]data.Product, error)
	CategoryChildren(ctx context.Context, categoryID int64) ([]data.Category, error)
	ProfileByUsername(ctx context.Context, username string) (data.Profile, error)
}

// Server holds the edge runtime's shared state.
type Server struct {
	cfg        config.Config
	data       Data
	cache      *edgecache.Middleware
	limiter    *ratelimit.Limiter
	planner    *purge.Planner
	dispatcher *purge.Dispatcher
	health     func(ctx context.Context) error
	logger     zerolog.Logger
}

// New assembles a server from its collaborators.
func New(
	cfg config.Config,
	store edgecache.Store,
	db Data,
	limiter *ratelimit.Limiter,
	dispatcher *purge.Dispatcher,
	health func(ctx context.Context) error,
	logger zerolog.Logger,
) *Server {
	return &Server{
		cfg:        cfg,
		data:       db,
		cache:      edgecache.NewMiddleware(store, cfg.TTLPolicy, logger),
		limiter:    limiter,
		planner:    purge.NewPlanner(cfg.Site()),
		dispatcher: dispatcher,
		health:     health,
		logger:     logger,
	}
}

// Handler builds the route table with the per-route middleware chains.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	cached := func(class edgecache.Class, h http.HandlerFunc) http.Handler {
		return s.cache.Wrap(class, h)
	}
	limited := func(rule ratelimit.Rule, route string, h http.HandlerFunc) http.Handler {
		return edgecache.NoStore(s.limiter.Limit(route, rule, identity, h))
	}

	// Read routes, grouped by TTL class.
	mux.Handle("GET /reviews/{slug}", cached(edgecache.ClassDetail, s.handleReviewDetail))
	mux.Handle("GET /reviews", cached(edgecache.ClassListing, s.handleReviewList))
	mux.Handle("GET /catalog/reviews/{categoryID}", cached(edgecache.ClassListing, s.handleReviewList))
	mux.Handle("GET /reviews/{slug}/comments", cached(edgecache.ClassListing, s.handleCommentThread))
	mux.Handle("GET /products/{slug}", cached(edgecache.ClassDetail, s.handleProductDetail))
	mux.Handle("GET /products", cached(edgecache.ClassListing, s.handleProductList))
	mux.Handle("GET /catalog/products/{categoryID}", cached(edgecache.ClassListing, s.handleProductList))
	mux.Handle("GET /categories/{categoryID}/children", cached(edgecache.ClassTaxonomy, s.handleCategoryChildren))
	mux.Handle("GET /users/{username}", cached(edgecache.ClassDetail, s.handleProfile))
	mux.Handle("GET /users/{username}/reviews", cached(edgecache.ClassListing, s.handleUserReviews))
	mux.Handle("GET /users/{username}/comments", cached(edgecache.ClassListing, s.handleUserComments))
	mux.Handle("GET /home", cached(edgecache.ClassAggregate, s.handleHome))
	mux.Handle("GET /latest", cached(edgecache.ClassAggregate, s.handleFeed("newest")))
	mux.Handle("GET /popular", cached(edgecache.ClassAggregate, s.handleFeed("popular")))

	// Write routes.
	mux.Handle("POST /reviews/{id}/vote", limited(s.cfg.VoteRule, "/reviews/vote", s.handleVote))
	mux.Handle("POST /reviews/{id}/comments", limited(s.cfg.CommentRule, "/reviews/comments", s.handleAddComment))

	// Operational routes.
	mux.Handle("POST /internal/purge", edgecache.NoStore(http.HandlerFunc(s.handlePurge)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	return logging.RequestLogger(s.logger)(mux)
}

// identity resolves the authenticated user for rate-limit scoping. Empty
// means anonymous.
func identity(r *http.Request) string {
	return r.Header.Get(HeaderAuthenticatedUser)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
