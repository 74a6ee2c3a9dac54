package model

import "fmt"

// TasteEvent is a taste signal that updates personal affinity.
// The set of variants is closed: SentimentEvent and DuelEvent.
type TasteEvent interface {
	// Kind names the variant for logs and metrics.
	Kind() string
	// Validate checks required fields.
	Validate() error
	isTasteEvent()
}

// SentimentEvent tags a media item with a sentiment.
type SentimentEvent struct {
	UserID    string    `json:"user_id"`
	MediaID   string    `json:"media_id"`
	Sentiment Sentiment `json:"sentiment"`
}

func (SentimentEvent) isTasteEvent() {}

// Kind implements TasteEvent.
func (SentimentEvent) Kind() string { return "sentiment" }

// Validate implements TasteEvent.
func (e SentimentEvent) Validate() error {
	if e.UserID == "" || e.MediaID == "" {
		return fmt.Errorf("%w: user_id and media_id are required", ErrInvalidEvent)
	}
	if !e.Sentiment.Valid() {
		return fmt.Errorf("%w: unknown sentiment %q", ErrInvalidEvent, e.Sentiment)
	}
	return nil
}

// DuelEvent records that a user preferred WinnerID over LoserID.
//
// WinnerGlobal and LoserGlobal are the global scores the client saw when the
// duel was dispatched. They are advisory: the handler always re-reads the store.
// Nil means not supplied; zero is a valid score.
type DuelEvent struct {
	UserID       string `json:"user_id"`
	WinnerID     string `json:"winner_id"`
	LoserID      string `json:"loser_id"`
	WinnerGlobal *int   `json:"winner_global,omitempty"`
	LoserGlobal  *int   `json:"loser_global,omitempty"`
}

func (DuelEvent) isTasteEvent() {}

// Kind implements TasteEvent.
func (DuelEvent) Kind() string { return "duel" }

// Validate implements TasteEvent.
func (e DuelEvent) Validate() error {
	if e.UserID == "" || e.WinnerID == "" || e.LoserID == "" {
		return fmt.Errorf("%w: user_id, winner_id and loser_id are required", ErrInvalidEvent)
	}
	if e.WinnerID == e.LoserID {
		return fmt.Errorf("%w: winner and loser must differ", ErrInvalidEvent)
	}
	return nil
}

// HasDispatchScores reports whether the client sent its view of the global scores.
func (e DuelEvent) HasDispatchScores() bool {
	return e.WinnerGlobal != nil && e.LoserGlobal != nil
}
