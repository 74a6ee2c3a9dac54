// Package chart builds a user's personal ranking by replaying their
// interaction history.
package chart

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/internal/domain/rating"
	"github.com/okian/tastegraph/pkg/metrics"
)

// Replay defaults.
const (
	DefaultKFactor      = 32
	DefaultSeedBanger   = 1600
	DefaultSeedLike     = 1400
	DefaultSeedWishlist = 1200
	DefaultScore        = 1400
	DefaultDuelWindow   = 5 * time.Second
)

// History reads a user's interactions.
type History interface {
	FindAllByUser(ctx context.Context, userID string) ([]model.Interaction, error)
}

// Catalog resolves display metadata. Unknown ids are absent from the result.
type Catalog interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]model.MediaInfo, error)
}

// Builder produces ranking charts.
type Builder struct {
	history History
	catalog Catalog
	calc    *rating.Calculator

	kFactor      float64
	seedBanger   int
	seedLike     int
	seedWishlist int
	defaultScore int
	duelWindow   time.Duration
}

// NewBuilder creates a Builder. history and catalog may be nil when only
// Replay is used.
func NewBuilder(history History, catalog Catalog, opts ...Option) *Builder {
	b := &Builder{
		history:      history,
		catalog:      catalog,
		kFactor:      DefaultKFactor,
		seedBanger:   DefaultSeedBanger,
		seedLike:     DefaultSeedLike,
		seedWishlist: DefaultSeedWishlist,
		defaultScore: DefaultScore,
		duelWindow:   DefaultDuelWindow,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.calc = rating.NewCalculator(rating.WithKFactors(b.kFactor, b.kFactor))
	return b
}

// Build returns the user's top limit media. Ranks start at 1 and are assigned
// after media unknown to the catalog are dropped.
func (b *Builder) Build(ctx context.Context, userID string, limit int) ([]model.RankedMedia, error) {
	start := time.Now()
	defer func() {
		metrics.RecordQueryLatency("chart", float64(time.Since(start).Milliseconds()))
	}()

	history, err := b.history.FindAllByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", userID, err)
	}
	scored := b.Replay(history)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	if len(scored) == 0 {
		return []model.RankedMedia{}, nil
	}

	ids := make([]string, len(scored))
	for i, s := range scored {
		ids[i] = s.MediaID
	}
	infos, err := b.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", userID, err)
	}

	out := make([]model.RankedMedia, 0, len(scored))
	for _, s := range scored {
		info, ok := infos[s.MediaID]
		if !ok {
			continue
		}
		out = append(out, model.RankedMedia{Rank: len(out) + 1, MediaID: s.MediaID, Score: s.Score}.Enrich(info))
	}
	return out, nil
}

// Replay scores media from a history. The first seeding interaction of a media
// sets its score; a WIN followed by a LOSS (or a LIKE followed by a DISLIKE)
// inside the duel window counts as a duel between the two media.
// The result is ordered by score desc, then media id.
func (b *Builder) Replay(history []model.Interaction) []model.ScoredMedia {
	events := make([]model.Interaction, len(history))
	copy(events, history)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	scores := make(map[string]int)
	for _, ev := range events {
		if _, ok := scores[ev.MediaID]; ok {
			continue
		}
		if s, ok := b.seed(ev); ok {
			scores[ev.MediaID] = s
		}
	}

	for i := 0; i+1 < len(events); i++ {
		cur, next := events[i], events[i+1]
		if !b.isDuel(cur, next) {
			continue
		}
		w, ok := scores[cur.MediaID]
		if !ok {
			w = b.defaultScore
		}
		l, ok := scores[next.MediaID]
		if !ok {
			l = b.defaultScore
		}
		scores[cur.MediaID], scores[next.MediaID] = b.calc.UpdateDuel(w, l)
		i++
	}

	out := make([]model.ScoredMedia, 0, len(scores))
	for id, s := range scores {
		out = append(out, model.ScoredMedia{MediaID: id, Score: float64(s)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].MediaID < out[j].MediaID
	})
	return out
}

func (b *Builder) seed(ev model.Interaction) (int, bool) {
	switch {
	case ev.Sentiment == model.SentimentBanger:
		return b.seedBanger, true
	case ev.Action == model.ActionLike:
		return b.seedLike, true
	case ev.Action == model.ActionWishlist:
		return b.seedWishlist, true
	}
	return 0, false
}

func (b *Builder) isDuel(cur, next model.Interaction) bool {
	if cur.MediaID == next.MediaID || next.CreatedAt.Sub(cur.CreatedAt) >= b.duelWindow {
		return false
	}
	return (cur.Action == model.ActionWin && next.Action == model.ActionLoss) ||
		(cur.Action == model.ActionLike && next.Action == model.ActionDislike)
}
