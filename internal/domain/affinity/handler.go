// Package affinity turns taste events into personal affinity and global
// rating updates.
package affinity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/internal/domain/rating"
	"github.com/okian/tastegraph/pkg/logger"
	"github.com/okian/tastegraph/pkg/metrics"
)

// Handler applies taste events. Every attempt re-reads its inputs inside a
// transaction, so retrying a failed event is safe.
type Handler struct {
	tx         Transactor
	media      MediaRatings
	affinities Affinities
	calc       *rating.Calculator
	log        logger.Logger
	now        func() time.Time
}

// Option applies a configuration option to the Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithCalculator overrides the rating calculator.
func WithCalculator(c *rating.Calculator) Option {
	return func(h *Handler) {
		if c != nil {
			h.calc = c
		}
	}
}

// NewHandler creates a Handler.
func NewHandler(tx Transactor, media MediaRatings, affinities Affinities, opts ...Option) *Handler {
	h := &Handler{
		tx:         tx,
		media:      media,
		affinities: affinities,
		calc:       rating.NewCalculator(),
		log:        logger.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle dispatches ev to its variant handler.
func (h *Handler) Handle(ctx context.Context, ev model.TasteEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", model.ErrInvalidEvent)
	}
	if err := ev.Validate(); err != nil {
		metrics.RecordAffinityEvent(ev.Kind(), "invalid")
		return err
	}

	start := time.Now()
	var err error
	switch e := ev.(type) {
	case model.SentimentEvent:
		err = h.handleSentiment(ctx, e)
	case model.DuelEvent:
		err = h.handleDuel(ctx, e)
	default:
		err = fmt.Errorf("%w: %T", model.ErrUnknownEvent, ev)
	}
	metrics.RecordAffinityLatency(ev.Kind(), float64(time.Since(start).Milliseconds()))
	metrics.RecordAffinityEvent(ev.Kind(), outcome(err))
	return err
}

func (h *Handler) handleSentiment(ctx context.Context, e model.SentimentEvent) error {
	return h.tx.InTx(ctx, func(ctx context.Context) error {
		media, err := h.media.Rating(ctx, e.MediaID)
		if err != nil {
			return fmt.Errorf("sentiment %s/%s: %w", e.UserID, e.MediaID, err)
		}
		a := model.Affinity{
			UserID:      e.UserID,
			MediaID:     e.MediaID,
			Score:       h.calc.Initialize(media.Score, e.Sentiment),
			LastUpdated: h.now().UTC(),
		}
		if err := h.affinities.Upsert(ctx, a); err != nil {
			return fmt.Errorf("sentiment %s/%s: %w", e.UserID, e.MediaID, err)
		}
		h.log.Debug(ctx, "affinity initialized",
			logger.String("user_id", e.UserID),
			logger.String("media_id", e.MediaID),
			logger.String("sentiment", string(e.Sentiment)),
			logger.Int("score", a.Score))
		return nil
	})
}

func (h *Handler) handleDuel(ctx context.Context, e model.DuelEvent) error {
	return h.tx.InTx(ctx, func(ctx context.Context) error {
		ratings, err := h.media.LockForUpdate(ctx, e.WinnerID, e.LoserID)
		if err != nil {
			return fmt.Errorf("duel %s: %w", e.UserID, err)
		}
		winner, loser := ratings[e.WinnerID], ratings[e.LoserID]
		h.checkStale(ctx, e, winner, loser)

		wAff, err := h.loadOrInit(ctx, e.UserID, winner)
		if err != nil {
			return fmt.Errorf("duel %s: %w", e.UserID, err)
		}
		lAff, err := h.loadOrInit(ctx, e.UserID, loser)
		if err != nil {
			return fmt.Errorf("duel %s: %w", e.UserID, err)
		}

		now := h.now().UTC()
		wAff.Score, lAff.Score = h.calc.UpdateDuel(wAff.Score, lAff.Score)
		wAff.LastUpdated, lAff.LastUpdated = now, now

		winner.Score, loser.Score = h.calc.UpdateGlobal(winner.Score, loser.Score)
		winner.MatchCount++
		loser.MatchCount++

		if err := h.affinities.Upsert(ctx, wAff, lAff); err != nil {
			return fmt.Errorf("duel %s: %w", e.UserID, err)
		}
		if err := h.media.SaveRatings(ctx, winner, loser); err != nil {
			return fmt.Errorf("duel %s: %w", e.UserID, err)
		}
		h.log.Debug(ctx, "duel applied",
			logger.String("user_id", e.UserID),
			logger.String("winner_id", e.WinnerID),
			logger.String("loser_id", e.LoserID),
			logger.Int("winner_affinity", wAff.Score),
			logger.Int("loser_affinity", lAff.Score))
		return nil
	})
}

// loadOrInit returns the user's affinity for media, starting unseen media at
// the current global score as if tagged OKAY.
func (h *Handler) loadOrInit(ctx context.Context, userID string, media model.MediaRating) (model.Affinity, error) {
	a, err := h.affinities.Get(ctx, userID, media.MediaID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Affinity{}, err
	}
	return model.Affinity{
		UserID:  userID,
		MediaID: media.MediaID,
		Score:   h.calc.Initialize(media.Score, model.SentimentOkay),
	}, nil
}

func (h *Handler) checkStale(ctx context.Context, e model.DuelEvent, winner, loser model.MediaRating) {
	if !e.HasDispatchScores() {
		return
	}
	if *e.WinnerGlobal == winner.Score && *e.LoserGlobal == loser.Score {
		return
	}
	metrics.RecordDuelStaleScores()
	h.log.Debug(ctx, "duel dispatched with stale global scores",
		logger.String("user_id", e.UserID),
		logger.Int("winner_dispatched", *e.WinnerGlobal),
		logger.Int("winner_stored", winner.Score),
		logger.Int("loser_dispatched", *e.LoserGlobal),
		logger.Int("loser_stored", loser.Score))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInvalidEvent), errors.Is(err, model.ErrUnknownEvent):
		return "invalid"
	case model.IsRetryable(err):
		return "transient"
	default:
		return "error"
	}
}
