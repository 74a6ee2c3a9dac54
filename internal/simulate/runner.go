// Package simulate drives a running ranking service with a clustered
// workload and checks that the personalized feeds it produces are sane.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tastegraph/pkg/logger"
)

// ErrTimeout is returned when the service does not settle within DrainTimeout.
var ErrTimeout = errors.New("timed out waiting for service")

// stablePolls is how many unchanged polls with an empty queue count as drained
// when some events were dropped by the workers.
const stablePolls = 3

// Run executes the complete simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	cfg.Defaults()
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("media", cfg.Media),
		logger.Int("clusters", cfg.Clusters),
		logger.Int("workers", cfg.Workers))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	plan, err := Generate(cfg)
	if err != nil {
		return stats, fmt.Errorf("generate workload: %w", err)
	}
	stats.EventsGenerated = len(plan.Events)

	if err := seedMedia(ctx, cfg, client, plan, stats); err != nil {
		return stats, err
	}
	if err := submitEvents(ctx, cfg, client, plan, stats); err != nil {
		return stats, err
	}
	if err := waitForDrain(ctx, cfg, client, int64(stats.EventsAccepted)); err != nil {
		return stats, err
	}
	if err := runNeighbors(ctx, cfg, client); err != nil {
		return stats, err
	}

	feeds, err := fetchFeeds(ctx, cfg, client, plan, stats)
	if err != nil {
		return stats, err
	}
	if err := verifyFeeds(ctx, cfg, plan, feeds, stats); err != nil {
		return stats, err
	}

	top, err := client.TopRated(ctx, min(len(plan.Media), 100))
	if err != nil {
		return stats, fmt.Errorf("top rated: %w", err)
	}
	if err := verifyTopRated(top); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

// waitForDrain polls /stats until the queue is empty and every accepted event
// has been applied, or the processed count stops moving.
func waitForDrain(ctx context.Context, cfg *Config, client *Client, accepted int64) error {
	logger.Get().Info(ctx, "waiting for events to be processed", logger.Int64("accepted", accepted))

	var last int64 = -1
	stable := 0
	return poll(ctx, cfg, client, func(s ServiceStats) bool {
		if s.QueueLength > 0 {
			stable = 0
			last = s.EventsProcessed
			return false
		}
		if s.EventsProcessed >= accepted {
			return true
		}
		if s.EventsProcessed == last {
			stable++
		} else {
			stable = 0
		}
		last = s.EventsProcessed
		return stable >= stablePolls
	})
}

// runNeighbors triggers the neighbor job and waits for a completed run.
func runNeighbors(ctx context.Context, cfg *Config, client *Client) error {
	logger.Get().Info(ctx, "running neighbor job")
	if err := client.TriggerNeighbors(ctx); err != nil {
		return err
	}
	return poll(ctx, cfg, client, func(s ServiceStats) bool {
		return !s.NeighborRunning && s.LastNeighborRun.UsersScanned > 0
	})
}

func poll(ctx context.Context, cfg *Config, client *Client, done func(ServiceStats) bool) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		s, err := client.Stats(ctx)
		if err == nil && done(s) {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("%w: %w", ErrTimeout, err)
			}
			return ErrTimeout
		case <-ticker.C:
		}
	}
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var eventsPerSecond float64
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("mediaSeeded", stats.MediaSeeded),
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("feedsRetrieved", stats.FeedsRetrieved),
		logger.Int("feedsEmpty", stats.FeedsEmpty),
		logger.Float64("clusterShare", clusterShare(stats)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
