package affinity

import (
	"context"

	"github.com/okian/tastegraph/internal/domain/model"
)

// Transactor runs fn atomically. Store calls made with the ctx given to fn
// take part in the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MediaRatings is the global rating store.
type MediaRatings interface {
	Rating(ctx context.Context, mediaID string) (model.MediaRating, error)
	LockForUpdate(ctx context.Context, ids ...string) (map[string]model.MediaRating, error)
	SaveRatings(ctx context.Context, ratings ...model.MediaRating) error
}

// Affinities is the personal affinity store.
type Affinities interface {
	// Get returns model.ErrNotFound when the pair has no affinity yet.
	Get(ctx context.Context, userID, mediaID string) (model.Affinity, error)
	Upsert(ctx context.Context, affinities ...model.Affinity) error
}
