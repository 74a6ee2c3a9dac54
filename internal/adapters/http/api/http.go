// Package api exposes the ranking engine over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Submit(ctx context.Context, eventID string, ev model.TasteEvent) (bool, error)
	PersonalizedFeed(ctx context.Context, userID string, limit, offset int) ([]model.RankedMedia, error)
	UserRankingChart(ctx context.Context, userID string, limit int) ([]model.RankedMedia, error)
	TopRated(ctx context.Context, limit int) ([]model.RankedMedia, error)
	UpsertMedia(ctx context.Context, info model.MediaInfo) error
	RecordInteraction(ctx context.Context, in model.Interaction) error
	GetStats(ctx context.Context) map[string]any
}

// JobTrigger starts a background neighbor job run.
type JobTrigger interface {
	Trigger() bool
}

// Server wires HTTP routes for the ranking API.
type Server struct {
	deps Dependencies
	jobs JobTrigger
	log  logger.Logger

	mounts []func(chi.Router)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMount registers extra routes on the root router, e.g. API docs.
func WithMount(fn func(chi.Router)) ServerOption {
	return func(s *Server) {
		if fn != nil {
			s.mounts = append(s.mounts, fn)
		}
	}
}

// NewServer creates the API server.
func NewServer(deps Dependencies, jobs JobTrigger, opts ...ServerOption) *Server {
	s := &Server{deps: deps, jobs: jobs, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", metricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(MetricsMiddleware)

		r.Get("/stats", s.handleStats)

		r.Route("/events", func(r chi.Router) {
			r.Post("/sentiment", s.handlePostSentiment)
			r.Post("/duel", s.handlePostDuel)
		})
		r.Post("/interactions", s.handlePostInteraction)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/feed", s.handleGetFeed)
			r.Get("/chart", s.handleGetChart)
		})

		r.Get("/media/top", s.handleGetTopRated)
		r.Put("/media/{mediaID}", s.handlePutMedia)

		r.Post("/jobs/neighbors", s.handleTriggerNeighbors)
	})

	for _, mount := range s.mounts {
		mount(r)
	}
	return r
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type itemsResponse struct {
	Items []model.RankedMedia `json:"items"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// unavailableResponse keeps the items key so clients can render an empty list.
type unavailableResponse struct {
	Code  string              `json:"code"`
	Items []model.RankedMedia `json:"items"`
}

type jobResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeInternalError answers 500 with a generic message. Callers log the cause.
func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "internal_error", nil)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// queryInt reads an optional non-negative integer query parameter. A missing
// parameter yields 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return n, nil
}
