package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/okian/tastegraph/internal/domain/model"
)

// NeighborRepo stores taste-neighbor edges.
type NeighborRepo struct {
	base
}

// NewNeighborRepo creates a NeighborRepo over db.
func NewNeighborRepo(db *gorm.DB) *NeighborRepo {
	return &NeighborRepo{base{db: db}}
}

// Replace swaps the outgoing edges of userID for neighbors in one transaction.
// An empty neighbors slice clears the user's edges.
func (r *NeighborRepo) Replace(ctx context.Context, userID string, neighbors []model.Neighbor) error {
	now := time.Now().UTC()
	rows := make([]similarityRow, len(neighbors))
	for i, n := range neighbors {
		rows[i] = similarityRow{
			UserID:          userID,
			NeighborID:      n.NeighborID,
			SimilarityScore: n.Similarity,
			LastUpdated:     now,
		}
	}
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&similarityRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, 100).Error
	})
	return classify("replace neighbors", err)
}

// ListByUser returns the user's neighbors by similarity desc.
func (r *NeighborRepo) ListByUser(ctx context.Context, userID string) ([]model.Neighbor, error) {
	var rows []similarityRow
	err := r.conn(ctx).
		Where("user_id = ?", userID).
		Order("similarity_score DESC, neighbor_id").
		Find(&rows).Error
	if err != nil {
		return nil, classify("list neighbors", err)
	}
	out := make([]model.Neighbor, len(rows))
	for i, row := range rows {
		out[i] = model.Neighbor{
			UserID:      row.UserID,
			NeighborID:  row.NeighborID,
			Similarity:  row.SimilarityScore,
			LastUpdated: row.LastUpdated,
		}
	}
	return out, nil
}

// HasNeighbors reports whether the user has at least one edge.
func (r *NeighborRepo) HasNeighbors(ctx context.Context, userID string) (bool, error) {
	var n int64
	err := r.conn(ctx).Model(&similarityRow{}).Where("user_id = ?", userID).Limit(1).Count(&n).Error
	if err != nil {
		return false, classify("has neighbors", err)
	}
	return n > 0, nil
}

// RankForUser aggregates neighbor affinities into a ranked list of media the
// user has neither an affinity for nor any recorded interaction with.
func (r *NeighborRepo) RankForUser(ctx context.Context, userID string, limit, offset int) ([]model.ScoredMedia, error) {
	if limit <= 0 || offset < 0 {
		return nil, ErrInvalidLimit
	}
	q := r.conn(ctx).
		Table("user_similarity AS us").
		Select("uma.media_id AS media_id, SUM(uma.score * us.similarity_score) AS rank_score").
		Joins("JOIN user_media_affinity AS uma ON uma.user_id = us.neighbor_id").
		Where("us.user_id = ?", userID).
		Where("NOT EXISTS (SELECT 1 FROM user_media_affinity AS own WHERE own.user_id = ? AND own.media_id = uma.media_id)", userID).
		Where("NOT EXISTS (SELECT 1 FROM user_interactions AS ui WHERE ui.user_id = ? AND ui.media_id = uma.media_id)", userID)
	var out []model.ScoredMedia
	err := q.
		Group("uma.media_id").
		Order("rank_score DESC, uma.media_id").
		Limit(limit).
		Offset(offset).
		Scan(&out).Error
	if err != nil {
		return nil, classify("rank for user", err)
	}
	return out, nil
}
