package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okian/tastegraph/internal/domain/model"
)

// MediaRepo reads and writes global media ratings.
type MediaRepo struct {
	base
}

// NewMediaRepo creates a MediaRepo over db.
func NewMediaRepo(db *gorm.DB) *MediaRepo {
	return &MediaRepo{base{db: db}}
}

// Rating returns the current global rating of a media item.
func (r *MediaRepo) Rating(ctx context.Context, mediaID string) (model.MediaRating, error) {
	var row mediaRow
	err := r.conn(ctx).Select("id", "score", "match_count").Where("id = ?", mediaID).Take(&row).Error
	if err != nil {
		return model.MediaRating{}, classify("media rating", err)
	}
	return toRating(row), nil
}

// LockForUpdate reads the ratings of ids holding a row lock until the
// surrounding transaction ends. Any missing id yields model.ErrNotFound.
func (r *MediaRepo) LockForUpdate(ctx context.Context, ids ...string) (map[string]model.MediaRating, error) {
	var rows []mediaRow
	err := r.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "score", "match_count").
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, classify("lock media", err)
	}
	out := make(map[string]model.MediaRating, len(rows))
	for _, row := range rows {
		out[row.ID] = toRating(row)
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("lock media %s: %w", id, model.ErrNotFound)
		}
	}
	return out, nil
}

// SaveRatings writes score and match_count for each rating.
func (r *MediaRepo) SaveRatings(ctx context.Context, ratings ...model.MediaRating) error {
	for _, rt := range ratings {
		res := r.conn(ctx).
			Model(&mediaRow{}).
			Where("id = ?", rt.MediaID).
			Updates(map[string]any{"score": rt.Score, "match_count": rt.MatchCount})
		if res.Error != nil {
			return classify("save rating", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("save rating %s: %w", rt.MediaID, model.ErrNotFound)
		}
	}
	return nil
}

// TopRated returns media ordered by global score, then match count, then id.
func (r *MediaRepo) TopRated(ctx context.Context, limit int) ([]model.RankedMedia, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	var rows []mediaRow
	err := r.conn(ctx).
		Order("score DESC, match_count DESC, id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, classify("top rated", err)
	}
	out := make([]model.RankedMedia, len(rows))
	for i, row := range rows {
		out[i] = model.RankedMedia{
			Rank:       i + 1,
			MediaID:    row.ID,
			Title:      row.Title,
			CoverURL:   row.CoverURL,
			Type:       row.Type,
			Score:      float64(row.Score),
			MatchCount: row.MatchCount,
		}
	}
	return out, nil
}

// Count returns the number of media.
func (r *MediaRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.conn(ctx).Model(&mediaRow{}).Count(&n).Error
	return n, classify("count media", err)
}

func toRating(row mediaRow) model.MediaRating {
	return model.MediaRating{MediaID: row.ID, Score: row.Score, MatchCount: row.MatchCount}
}
