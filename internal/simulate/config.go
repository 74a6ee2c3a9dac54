package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL         string        // Base URL of the service
	Users           int           // Number of simulated users
	Media           int           // Number of catalog media
	Clusters        int           // Number of taste clusters users and media are split into
	RatingsPerUser  int           // Sentiment events per user
	DuelsPerUser    int           // Duel events per user
	FeedLimit       int           // Page size requested per feed
	Workers         int           // Number of concurrent HTTP workers
	Timeout         time.Duration // HTTP request timeout
	Seed            int64         // Seed for the event generator
	DrainTimeout    time.Duration // How long to wait for queue drain and the neighbor job
	PollInterval    time.Duration // Interval between /stats polls
	MinClusterShare float64       // Fraction of feed items expected from the user's own cluster
	Verbose         bool          // Enable verbose logging
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.Users <= 0 {
		c.Users = 60
	}
	if c.Media <= 0 {
		c.Media = 90
	}
	if c.Clusters <= 0 {
		c.Clusters = 3
	}
	if c.RatingsPerUser <= 0 {
		c.RatingsPerUser = 12
	}
	if c.FeedLimit <= 0 {
		c.FeedLimit = 10
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 2 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.MinClusterShare <= 0 {
		c.MinClusterShare = 0.5
	}
}

// Stats holds run statistics.
type Stats struct {
	MediaSeeded     int
	EventsGenerated int
	EventsSubmitted int
	EventsAccepted  int
	EventsDuplicate int
	EventsFailed    int
	FeedsRetrieved  int
	FeedsEmpty      int
	FeedItems       int
	InClusterItems  int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
