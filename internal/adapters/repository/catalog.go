package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okian/tastegraph/internal/domain/model"
)

// CatalogRepo exposes the display columns of the media table.
type CatalogRepo struct {
	base
	defaultScore int
}

// NewCatalogRepo creates a CatalogRepo. New media start at defaultScore.
func NewCatalogRepo(db *gorm.DB, defaultScore int) *CatalogRepo {
	return &CatalogRepo{base: base{db: db}, defaultScore: defaultScore}
}

// FindByIDs returns metadata for the ids that exist. Unknown ids are absent.
func (r *CatalogRepo) FindByIDs(ctx context.Context, ids []string) (map[string]model.MediaInfo, error) {
	out := make(map[string]model.MediaInfo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []mediaRow
	err := r.conn(ctx).
		Select("id", "title", "cover_url", "type").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, classify("find media", err)
	}
	for _, row := range rows {
		out[row.ID] = model.MediaInfo{ID: row.ID, Title: row.Title, CoverURL: row.CoverURL, Type: row.Type}
	}
	return out, nil
}

// Upsert creates a media item or refreshes its display columns. Ratings of an
// existing item are left alone.
func (r *CatalogRepo) Upsert(ctx context.Context, info model.MediaInfo) error {
	row := mediaRow{
		ID:       info.ID,
		Title:    info.Title,
		CoverURL: info.CoverURL,
		Type:     info.Type,
		Score:    r.defaultScore,
	}
	err := r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "cover_url", "type", "updated_at"}),
		}).
		Create(&row).Error
	return classify("upsert media", err)
}
