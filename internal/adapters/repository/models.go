package repository

import "time"

// mediaRow is the shared media table. The engine owns score and match_count;
// the display columns belong to the catalog.
type mediaRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	Title      string `gorm:"size:512"`
	CoverURL   string `gorm:"size:1024"`
	Type       string `gorm:"size:32"`
	Score      int    `gorm:"not null;default:1500;index"`
	MatchCount int    `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (mediaRow) TableName() string { return "medias" }

type affinityRow struct {
	UserID      string    `gorm:"primaryKey;size:64"`
	MediaID     string    `gorm:"primaryKey;size:64;index"`
	Score       int       `gorm:"not null;index"`
	LastUpdated time.Time `gorm:"not null"`
}

func (affinityRow) TableName() string { return "user_media_affinity" }

type similarityRow struct {
	UserID          string    `gorm:"primaryKey;size:64;index"`
	NeighborID      string    `gorm:"primaryKey;size:64"`
	SimilarityScore float64   `gorm:"not null"`
	LastUpdated     time.Time `gorm:"not null"`
}

func (similarityRow) TableName() string { return "user_similarity" }

type interactionRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"size:64;not null;index:idx_interactions_user_created,priority:1;index:idx_interactions_user_media,priority:1"`
	MediaID   string    `gorm:"size:64;not null;index:idx_interactions_user_media,priority:2"`
	Action    string    `gorm:"size:16;not null"`
	Sentiment string    `gorm:"size:16"`
	CreatedAt time.Time `gorm:"not null;index:idx_interactions_user_created,priority:2"`
}

func (interactionRow) TableName() string { return "user_interactions" }
