// Package model contains domain models passed between layers.
package model

import "time"

// Sentiment is the strength tag a user attaches to a media item.
type Sentiment string

const (
	SentimentBanger  Sentiment = "BANGER"
	SentimentGood    Sentiment = "GOOD"
	SentimentOkay    Sentiment = "OKAY"
	SentimentDislike Sentiment = "DISLIKE"
)

// Valid reports whether s is a known sentiment.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentBanger, SentimentGood, SentimentOkay, SentimentDislike:
		return true
	}
	return false
}

// Action is a raw interaction recorded by the interaction log.
type Action string

const (
	ActionLike     Action = "LIKE"
	ActionDislike  Action = "DISLIKE"
	ActionWishlist Action = "WISHLIST"
	ActionSkip     Action = "SKIP"
	ActionWin      Action = "WIN"
	ActionLoss     Action = "LOSS"
)

// MediaRating is the global popularity rating of a media item.
type MediaRating struct {
	MediaID    string
	Score      int
	MatchCount int
}

// Affinity is a user's personal score for one media item, centered on the neutral score.
type Affinity struct {
	UserID      string
	MediaID     string
	Score       int
	LastUpdated time.Time
}

// Neighbor is a directed taste-similarity edge from UserID to NeighborID.
type Neighbor struct {
	UserID      string
	NeighborID  string
	Similarity  float64
	LastUpdated time.Time
}

// Interaction is one entry of a user's interaction history.
type Interaction struct {
	UserID    string
	MediaID   string
	Action    Action
	Sentiment Sentiment
	CreatedAt time.Time
}

// MediaInfo is the display metadata owned by the catalog.
type MediaInfo struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	CoverURL string `json:"cover_url,omitempty"`
	Type     string `json:"type,omitempty"`
}

// RankedMedia is one row of a ranked list returned to clients.
type RankedMedia struct {
	Rank       int     `json:"rank"`
	MediaID    string  `json:"media_id"`
	Title      string  `json:"title"`
	CoverURL   string  `json:"cover_url,omitempty"`
	Type       string  `json:"type,omitempty"`
	Score      float64 `json:"score"`
	MatchCount int     `json:"match_count,omitempty"`
}

// Enrich copies catalog metadata into r.
func (r RankedMedia) Enrich(info MediaInfo) RankedMedia {
	r.Title = info.Title
	r.CoverURL = info.CoverURL
	r.Type = info.Type
	return r
}

// ScoredMedia is an unenriched ranking row.
type ScoredMedia struct {
	MediaID string  `gorm:"column:media_id"`
	Score   float64 `gorm:"column:rank_score"`
}
