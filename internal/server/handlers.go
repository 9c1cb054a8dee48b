package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hasancaglar07/usercomments-edge/internal/data"
)

func (s *Server) handleReviewDetail(w http.ResponseWriter, r *http.Request) {
	review, err := s.data.ReviewBySlug(r.Context(), r.PathValue("slug"), s.lang(r))
	s.respond(w, review, err)
}

func (s *Server) handleReviewList(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.data.ListReviews(r.Context(), s.listQuery(r))
	s.respond(w, reviews, err)
}

func (s *Server) handleCommentThread(w http.ResponseWriter, r *http.Request) {
	review, err := s.data.ReviewBySlug(r.Context(), r.PathValue("slug"), s.lang(r))
	if err != nil {
		s.respond(w, nil, err)
		return
	}
	comments, err := s.data.ListComments(r.Context(), review.ID, intParam(r, "page", 1), 20)
	s.respond(w, comments, err)
}

func (s *Server) handleProductDetail(w http.ResponseWriter, r *http.Request) {
	product, err := s.data.ProductBySlug(r.Context(), r.PathValue("slug"), s.lang(r))
	s.respond(w, product, err)
}

func (s *Server) handleProductList(w http.ResponseWriter, r *http.Request) {
	products, err := s.data.ListProducts(r.Context(), s.listQuery(r))
	s.respond(w, products, err)
}

func (s *Server) handleCategoryChildren(w http.ResponseWriter, r *http.Request) {
	categoryID, err := strconv.ParseInt(r.PathValue("categoryID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	children, err := s.data.CategoryChildren(r.Context(), categoryID)
	s.respond(w, children, err)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.data.ProfileByUsername(r.Context(), r.PathValue("username"))
	s.respond(w, profile, err)
}

func (s *Server) handleUserReviews(w http.ResponseWriter, r *http.Request) {
	q := s.listQuery(r)
	q.Author = r.PathValue("username")
	reviews, err := s.data.ListReviews(r.Context(), q)
	s.respond(w, reviews, err)
}

func (s *Server) handleUserComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.data.CommentsByAuthor(r.Context(),
		r.PathValue("username"), intParam(r, "page", 1), 20)
	s.respond(w, comments, err)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lang := s.lang(r)
	latest, err := s.data.ListReviews(ctx, data.ListQuery{Language: lang, Sort: "newest", PageSize: 10})
	if err != nil {
		s.respond(w, nil, err)
		return
	}
	popular, err := s.data.ListReviews(ctx, data.ListQuery{Language: lang, Sort: "popular", PageSize: 10})
	if err != nil {
		s.respond(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"latest": latest, "popular": popular})
}

// handleFeed serves the latest/popular feeds with their limit size variants.
func (s *Server) handleFeed(sortOrder string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviews, err := s.data.ListReviews(r.Context(), data.ListQuery{
			Language: s.lang(r),
			Sort:     sortOrder,
			PageSize: intParam(r, "limit", 10),
		})
		s.respond(w, reviews, err)
	}
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	reviewID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	if err := s.data.AddVote(r.Context(), reviewID); err != nil {
		s.respond(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	s.invalidate(r, reviewID)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	reviewID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Body == "" {
		writeError(w, http.StatusBadRequest, "comment body required")
		return
	}
	author := identity(r)
	if author == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	commentID, err := s.data.AddComment(r.Context(), reviewID, author, payload.Body)
	if err != nil {
		s.respond(w, nil, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": commentID})
	s.invalidate(r, reviewID)
}

// targetLoadTimeout bounds the purge-target load that follows a mutation.
const targetLoadTimeout = 5 * time.Second

// invalidate computes the affected key set for a mutated review and hands it
// to the dispatcher. It runs after the response has been written, so purge
// latency never shows up in write latency; a target that cannot be loaded is
// logged and skipped (the mutation itself already succeeded). The load is
// detached from the request context: a client disconnecting right after its
// mutation commits must not cancel the fan-out that mutation triggered.
func (s *Server) invalidate(r *http.Request, reviewID int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), targetLoadTimeout)
	defer cancel()

	target, err := s.data.ReviewTarget(ctx, reviewID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("review_id", reviewID).Msg("skipping invalidation, target not loadable")
		return
	}
	urls := s.planner.Plan(target)
	s.logger.Debug().Int64("review_id", reviewID).Int("urls", len(urls)).Msg("dispatching purge")
	s.dispatcher.Dispatch(urls)
}

// lang returns the request language, defaulting for untagged legacy URLs.
func (s *Server) lang(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	return s.cfg.DefaultLanguage
}

func (s *Server) listQuery(r *http.Request) data.ListQuery {
	q := data.ListQuery{
		Language: s.lang(r),
		Sort:     r.URL.Query().Get("sort"),
		Page:     intParam(r, "page", 1),
		PageSize: 20,
	}
	if raw := r.PathValue("categoryID"); raw != "" {
		q.CategoryID, _ = strconv.ParseInt(raw, 10, 64)
	} else if raw := r.URL.Query().Get("category"); raw != "" {
		q.CategoryID, _ = strconv.ParseInt(raw, 10, 64)
	}
	return q
}

func intParam(r *http.Request, name string, defaultValue int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return defaultValue
	}
	return n
}

// respond writes v as JSON, mapping data layer errors onto status codes.
func (s *Server) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		s.logger.Error().Err(err).Msg("handler failed")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
