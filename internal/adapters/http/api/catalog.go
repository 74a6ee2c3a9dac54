package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/pkg/logger"
)

type mediaRequest struct {
	Title    string `json:"title"`
	CoverURL string `json:"cover_url"`
	Type     string `json:"type"`
}

type interactionRequest struct {
	UserID    string          `json:"user_id"`
	MediaID   string          `json:"media_id"`
	Action    model.Action    `json:"action"`
	Sentiment model.Sentiment `json:"sentiment,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// handlePutMedia handles PUT /media/{mediaID}.
func (s *Server) handlePutMedia(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_media"
	var req mediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	info := model.MediaInfo{
		ID:       chi.URLParam(r, "mediaID"),
		Title:    req.Title,
		CoverURL: req.CoverURL,
		Type:     req.Type,
	}
	s.writeStored(w, r, op, s.deps.UpsertMedia(r.Context(), info), http.StatusNoContent)
}

// handlePostInteraction handles POST /interactions.
func (s *Server) handlePostInteraction(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_interaction"
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	in := model.Interaction{
		UserID:    req.UserID,
		MediaID:   req.MediaID,
		Action:    req.Action,
		Sentiment: req.Sentiment,
		CreatedAt: req.CreatedAt,
	}
	s.writeStored(w, r, op, s.deps.RecordInteraction(r.Context(), in), http.StatusCreated)
}

func (s *Server) writeStored(w http.ResponseWriter, r *http.Request, op string, err error, okStatus int) {
	switch {
	case errors.Is(err, model.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, model.ErrTransient):
		s.log.Warn(r.Context(), "store unavailable", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", NewKind(op, ErrUnavailable))
	case err != nil:
		s.log.Error(r.Context(), "write failed", logger.String("op", op), logger.Error(err))
		writeInternalError(w)
	default:
		w.WriteHeader(okStatus)
	}
}
