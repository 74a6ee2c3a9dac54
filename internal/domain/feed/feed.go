// Package feed ranks unseen media for a user from their neighbors' affinities.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/pkg/logger"
	"github.com/okian/tastegraph/pkg/metrics"
)

// ErrUnavailable is returned, with an empty result, when the feed cannot be
// computed right now.
var ErrUnavailable = errors.New("personalized feed temporarily unavailable")

// ErrInvalidPage is returned for out-of-range limit or offset.
var ErrInvalidPage = errors.New("invalid limit or offset")

const defaultLimit = 20

// Ranker aggregates neighbor affinities in the store.
type Ranker interface {
	HasNeighbors(ctx context.Context, userID string) (bool, error)
	// RankForUser excludes media the user has an affinity for or has swiped.
	RankForUser(ctx context.Context, userID string, limit, offset int) ([]model.ScoredMedia, error)
}

// Catalog resolves display metadata. Unknown ids are absent from the result.
type Catalog interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]model.MediaInfo, error)
}

// Query serves personalized feeds.
type Query struct {
	ranker   Ranker
	catalog  Catalog
	maxLimit int
	log      logger.Logger
}

// NewQuery creates a Query. maxLimit caps the page size.
func NewQuery(ranker Ranker, catalog Catalog, maxLimit int, log logger.Logger) *Query {
	if log == nil {
		log = logger.Nop()
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Query{ranker: ranker, catalog: catalog, maxLimit: maxLimit, log: log}
}

// Get returns up to limit media ranked for userID, skipping offset rows.
// A limit of 0 selects the default page size. Store failures yield an empty
// slice and ErrUnavailable.
func (q *Query) Get(ctx context.Context, userID string, limit, offset int) ([]model.RankedMedia, error) {
	if limit == 0 {
		limit = defaultLimit
	}
	if limit < 0 || limit > q.maxLimit || offset < 0 {
		return []model.RankedMedia{}, fmt.Errorf("%w: limit=%d offset=%d max=%d", ErrInvalidPage, limit, offset, q.maxLimit)
	}

	start := time.Now()
	defer func() {
		metrics.RecordQueryLatency("feed", float64(time.Since(start).Milliseconds()))
	}()

	items, err := q.rank(ctx, userID, limit, offset)
	if err != nil {
		metrics.RecordFeedRequest("unavailable")
		metrics.RecordErrorByComponent("feed", "unavailable")
		q.log.Error(ctx, "personalized feed failed", logger.String("user_id", userID), logger.Error(err))
		return []model.RankedMedia{}, ErrUnavailable
	}
	if len(items) == 0 {
		metrics.RecordFeedRequest("empty")
	} else {
		metrics.RecordFeedRequest("ok")
	}
	return items, nil
}

func (q *Query) rank(ctx context.Context, userID string, limit, offset int) ([]model.RankedMedia, error) {
	has, err := q.ranker.HasNeighbors(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !has {
		return []model.RankedMedia{}, nil
	}

	scored, err := q.ranker.RankForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return []model.RankedMedia{}, nil
	}

	ids := make([]string, len(scored))
	for i, s := range scored {
		ids[i] = s.MediaID
	}
	infos, err := q.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]model.RankedMedia, 0, len(scored))
	for _, s := range scored {
		info, ok := infos[s.MediaID]
		if !ok {
			continue
		}
		out = append(out, model.RankedMedia{
			Rank:    offset + len(out) + 1,
			MediaID: s.MediaID,
			Score:   s.Score,
		}.Enrich(info))
	}
	return out, nil
}
