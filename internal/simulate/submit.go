package simulate

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tastegraph/pkg/logger"
)

// seedMedia registers every planned media concurrently.
func seedMedia(ctx context.Context, cfg *Config, client *Client, plan *Plan, stats *Stats) error {
	logger.Get().Info(ctx, "seeding catalog", logger.Int("media", len(plan.Media)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, m := range plan.Media {
		g.Go(func() error {
			return client.PutMedia(gctx, m)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("seed media: %w", err)
	}
	stats.MediaSeeded = len(plan.Media)
	return nil
}

// submitEvents posts every planned event with cfg.Workers concurrent senders.
// Individual failures are counted, not returned.
func submitEvents(ctx context.Context, cfg *Config, client *Client, plan *Plan, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "submitting events",
		logger.Int("events", len(plan.Events)),
		logger.Int("workers", cfg.Workers))

	var submitted, accepted, duplicate, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, ev := range plan.Events {
		g.Go(func() error {
			status, err := client.PostEvent(gctx, ev)
			submitted.Add(1)
			switch {
			case err != nil:
				failed.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "event submission failed",
						logger.String("event_id", ev.Body.EventID),
						logger.Error(err))
				}
			case status == http.StatusAccepted:
				accepted.Add(1)
			case status == http.StatusOK:
				duplicate.Add(1)
			default:
				failed.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "event rejected",
						logger.String("event_id", ev.Body.EventID),
						logger.Int("status", status))
				}
			}
			return gctx.Err()
		})
	}
	err := g.Wait()

	stats.EventsSubmitted = int(submitted.Load())
	stats.EventsAccepted = int(accepted.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	stats.EventsFailed = int(failed.Load())

	log.Info(ctx, "event submission completed",
		logger.Int("accepted", stats.EventsAccepted),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("failed", stats.EventsFailed))

	if err != nil {
		return fmt.Errorf("submit events: %w", err)
	}
	return nil
}
