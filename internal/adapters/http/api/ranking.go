package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/tastegraph/internal/app"
	"github.com/okian/tastegraph/internal/domain/feed"
	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/pkg/logger"
)

// handleGetFeed handles GET /users/{userID}/feed?limit=N&offset=M.
func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_feed"
	userID := chi.URLParam(r, "userID")
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	items, err := s.deps.PersonalizedFeed(r.Context(), userID, limit, offset)
	switch {
	case errors.Is(err, feed.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, unavailableResponse{Code: "temporarily_unavailable", Items: []model.RankedMedia{}})
	default:
		writeJSON(w, http.StatusOK, itemsResponse{Items: items})
	}
}

// handleGetChart handles GET /users/{userID}/chart?limit=N.
func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_chart"
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	userID := chi.URLParam(r, "userID")
	items, err := s.deps.UserRankingChart(r.Context(), userID, limit)
	s.writeItems(w, r, op, items, err)
}

// handleGetTopRated handles GET /media/top?limit=N.
func (s *Server) handleGetTopRated(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_top_rated"
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	items, err := s.deps.TopRated(r.Context(), limit)
	s.writeItems(w, r, op, items, err)
}

func (s *Server) writeItems(w http.ResponseWriter, r *http.Request, op string, items []model.RankedMedia, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "limit_exceeded", WrapKind(op, ErrBadRequest, err))
	case err != nil:
		s.log.Error(r.Context(), "read failed", logger.String("op", op), logger.Error(err))
		writeInternalError(w)
	default:
		if items == nil {
			items = []model.RankedMedia{}
		}
		writeJSON(w, http.StatusOK, itemsResponse{Items: items})
	}
}
