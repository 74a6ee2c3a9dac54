package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okian/tastegraph/internal/domain/model"
)

const vectorChunk = 500

// AffinityRepo stores per-(user, media) affinity scores.
type AffinityRepo struct {
	base
}

// NewAffinityRepo creates an AffinityRepo over db.
func NewAffinityRepo(db *gorm.DB) *AffinityRepo {
	return &AffinityRepo{base{db: db}}
}

// Get returns the affinity for (userID, mediaID) or model.ErrNotFound.
func (r *AffinityRepo) Get(ctx context.Context, userID, mediaID string) (model.Affinity, error) {
	var row affinityRow
	err := r.conn(ctx).
		Where("user_id = ? AND media_id = ?", userID, mediaID).
		Take(&row).Error
	if err != nil {
		return model.Affinity{}, classify("get affinity", err)
	}
	return toAffinity(row), nil
}

// Upsert writes affinities, overwriting score and last_updated on conflict.
func (r *AffinityRepo) Upsert(ctx context.Context, affinities ...model.Affinity) error {
	if len(affinities) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]affinityRow, len(affinities))
	for i, a := range affinities {
		ts := a.LastUpdated
		if ts.IsZero() {
			ts = now
		}
		rows[i] = affinityRow{UserID: a.UserID, MediaID: a.MediaID, Score: a.Score, LastUpdated: ts}
	}
	err := r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "media_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "last_updated"}),
		}).
		Create(&rows).Error
	return classify("upsert affinity", err)
}

// ListByUser returns every affinity of a user ordered by media id.
func (r *AffinityRepo) ListByUser(ctx context.Context, userID string) ([]model.Affinity, error) {
	var rows []affinityRow
	err := r.conn(ctx).
		Where("user_id = ?", userID).
		Order("media_id").
		Find(&rows).Error
	if err != nil {
		return nil, classify("list affinity", err)
	}
	out := make([]model.Affinity, len(rows))
	for i, row := range rows {
		out[i] = toAffinity(row)
	}
	return out, nil
}

// UsersAfter returns up to limit distinct user ids holding affinities, ordered,
// strictly greater than cursor. An empty cursor starts from the beginning.
func (r *AffinityRepo) UsersAfter(ctx context.Context, cursor string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	var ids []string
	err := r.conn(ctx).
		Model(&affinityRow{}).
		Distinct("user_id").
		Where("user_id > ?", cursor).
		Order("user_id").
		Limit(limit).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, classify("users after", err)
	}
	return ids, nil
}

// Candidates returns other users sharing at least minShared media with userID
// where both sides score strictly above minScore.
func (r *AffinityRepo) Candidates(ctx context.Context, userID string, minShared, minScore int) ([]string, error) {
	var ids []string
	err := r.conn(ctx).
		Table("user_media_affinity AS a").
		Joins("JOIN user_media_affinity AS b ON b.media_id = a.media_id AND b.user_id <> a.user_id").
		Where("a.user_id = ? AND a.score > ? AND b.score > ?", userID, minScore, minScore).
		Group("b.user_id").
		Having("COUNT(*) >= ?", minShared).
		Order("b.user_id").
		Pluck("b.user_id", &ids).Error
	if err != nil {
		return nil, classify("candidates", err)
	}
	return ids, nil
}

// Vectors loads the full affinity profile of each user, keyed by user id.
// Users without affinities are absent from the result.
func (r *AffinityRepo) Vectors(ctx context.Context, userIDs ...string) (map[string]map[string]int, error) {
	out := make(map[string]map[string]int, len(userIDs))
	for start := 0; start < len(userIDs); start += vectorChunk {
		end := min(start+vectorChunk, len(userIDs))
		var rows []affinityRow
		err := r.conn(ctx).
			Select("user_id", "media_id", "score").
			Where("user_id IN ?", userIDs[start:end]).
			Find(&rows).Error
		if err != nil {
			return nil, classify("vectors", err)
		}
		for _, row := range rows {
			v, ok := out[row.UserID]
			if !ok {
				v = make(map[string]int)
				out[row.UserID] = v
			}
			v[row.MediaID] = row.Score
		}
	}
	return out, nil
}

// Count returns the number of affinity rows.
func (r *AffinityRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.conn(ctx).Model(&affinityRow{}).Count(&n).Error
	return n, classify("count affinity", err)
}

func toAffinity(row affinityRow) model.Affinity {
	return model.Affinity{
		UserID:      row.UserID,
		MediaID:     row.MediaID,
		Score:       row.Score,
		LastUpdated: row.LastUpdated,
	}
}
