package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/hasancaglar07/usercomments-edge/internal/data"
)

// HeaderPurgeSecret authenticates callers of the internal purge endpoint.
const HeaderPurgeSecret = "X-Purge-Secret"

var validate = validator.New()

// purgeRequest identifies the entity whose derived cache entries should be
// re-enumerated and purged.
type purgeRequest struct {
	Entity string `json:"entity" validate:"required,oneof=review"`
	ID     int64  `json:"id" validate:"required,gt=0"`
}

// handlePurge is the operator path for re-triggering invalidation, e.g. after
// a failed best-effort purge. Unlike the write-route path it runs the
// dispatcher synchronously so the response can report the purge count.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if s.cfg.PurgeSecret == "" {
		writeError(w, http.StatusForbidden, "purge not configured")
		return
	}
	secret := r.Header.Get(HeaderPurgeSecret)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.PurgeSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid purge secret")
		return
	}

	var req purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid purge target")
		return
	}

	target, err := s.data.ReviewTarget(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		s.logger.Error().Err(err).Int64("review_id", req.ID).Msg("purge target load failed")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	urls := s.planner.Plan(target)
	purged := s.dispatcher.DispatchSync(r.Context(), urls)

	s.logger.Info().Int64("review_id", req.ID).Int("purged", purged).Int("urls", len(urls)).Msg("manual purge")
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"purged": purged,
		"urls":   urls,
	})
}
