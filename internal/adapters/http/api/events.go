package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	service "github.com/okian/tastegraph/internal/app"
	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/pkg/logger"
)

type sentimentRequest struct {
	EventID string `json:"event_id"`
	model.SentimentEvent
}

type duelRequest struct {
	EventID string `json:"event_id"`
	model.DuelEvent
}

// handlePostSentiment handles POST /events/sentiment.
func (s *Server) handlePostSentiment(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_sentiment"
	var req sentimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	s.submit(w, r, op, req.EventID, req.SentimentEvent)
}

// handlePostDuel handles POST /events/duel.
func (s *Server) handlePostDuel(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_duel"
	var req duelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	s.submit(w, r, op, req.EventID, req.DuelEvent)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, op, eventID string, ev model.TasteEvent) {
	if eventID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing event_id")))
		return
	}

	duplicate, err := s.deps.Submit(r.Context(), eventID, ev)
	switch {
	case errors.Is(err, model.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", WrapKind(op, ErrUnavailable, err))
	case err != nil:
		s.log.Error(r.Context(), "submit failed", logger.String("event_id", eventID), logger.Error(err))
		writeInternalError(w)
	case duplicate:
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
	default:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
	}
}
