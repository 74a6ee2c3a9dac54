package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/okian/tastegraph/internal/domain/model"
)

// InteractionRepo is the gorm view of the interaction log.
type InteractionRepo struct {
	base
}

// NewInteractionRepo creates an InteractionRepo over db.
func NewInteractionRepo(db *gorm.DB) *InteractionRepo {
	return &InteractionRepo{base{db: db}}
}

// Record appends an interaction.
func (r *InteractionRepo) Record(ctx context.Context, in model.Interaction) error {
	ts := in.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	row := interactionRow{
		UserID:    in.UserID,
		MediaID:   in.MediaID,
		Action:    string(in.Action),
		Sentiment: string(in.Sentiment),
		CreatedAt: ts,
	}
	return classify("record interaction", r.conn(ctx).Create(&row).Error)
}

// FindAllByUser returns the user's history in chronological order.
func (r *InteractionRepo) FindAllByUser(ctx context.Context, userID string) ([]model.Interaction, error) {
	var rows []interactionRow
	err := r.conn(ctx).
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, classify("find interactions", err)
	}
	out := make([]model.Interaction, len(rows))
	for i, row := range rows {
		out[i] = model.Interaction{
			UserID:    row.UserID,
			MediaID:   row.MediaID,
			Action:    model.Action(row.Action),
			Sentiment: model.Sentiment(row.Sentiment),
			CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}
