package simulate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tastegraph/pkg/logger"
)

// ErrVerification reports feeds that break the expected ranking properties.
var ErrVerification = errors.New("feed verification failed")

// fetchFeeds reads one feed page for every planned user.
func fetchFeeds(ctx context.Context, cfg *Config, client *Client, plan *Plan, stats *Stats) (map[string][]FeedItem, error) {
	var mu sync.Mutex
	feeds := make(map[string][]FeedItem, len(plan.Users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, userID := range plan.Users {
		g.Go(func() error {
			items, err := client.Feed(gctx, userID, cfg.FeedLimit)
			if err != nil {
				return fmt.Errorf("feed for %s: %w", userID, err)
			}
			mu.Lock()
			feeds[userID] = items
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.FeedsRetrieved = len(feeds)
	return feeds, nil
}

// verifyFeeds checks every feed against the plan: no media the user already
// rated, contiguous ranks from 1, non-increasing scores, and an overall share
// of own-cluster items of at least cfg.MinClusterShare.
func verifyFeeds(ctx context.Context, cfg *Config, plan *Plan, feeds map[string][]FeedItem, stats *Stats) error {
	var errs []error
	for _, userID := range plan.Users {
		items := feeds[userID]
		if len(items) == 0 {
			stats.FeedsEmpty++
			continue
		}
		for i, it := range items {
			if plan.Rated[userID][it.MediaID] {
				errs = append(errs, fmt.Errorf("%s: feed contains already rated %s", userID, it.MediaID))
			}
			if it.Rank != i+1 {
				errs = append(errs, fmt.Errorf("%s: item %d has rank %d", userID, i, it.Rank))
			}
			if i > 0 && it.Score > items[i-1].Score {
				errs = append(errs, fmt.Errorf("%s: scores not sorted at rank %d", userID, it.Rank))
			}
			stats.FeedItems++
			if plan.MediaCluster[it.MediaID] == plan.UserCluster[userID] {
				stats.InClusterItems++
			}
		}
	}

	if stats.FeedItems == 0 {
		errs = append(errs, errors.New("every feed is empty"))
	} else if share := clusterShare(stats); share < cfg.MinClusterShare {
		errs = append(errs, fmt.Errorf("own-cluster share %.2f below %.2f", share, cfg.MinClusterShare))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrVerification, errors.Join(errs...))
	}
	logger.Get().Info(ctx, "feeds verified",
		logger.Int("feeds", stats.FeedsRetrieved),
		logger.Int("empty", stats.FeedsEmpty),
		logger.Float64("clusterShare", clusterShare(stats)))
	return nil
}

// verifyTopRated checks the leaderboard is ranked from 1 by non-increasing score.
func verifyTopRated(items []FeedItem) error {
	for i, it := range items {
		if it.Rank != i+1 {
			return fmt.Errorf("%w: leaderboard item %d has rank %d", ErrVerification, i, it.Rank)
		}
		if i > 0 && it.Score > items[i-1].Score {
			return fmt.Errorf("%w: leaderboard not sorted at rank %d", ErrVerification, it.Rank)
		}
	}
	return nil
}

func clusterShare(stats *Stats) float64 {
	if stats.FeedItems == 0 {
		return 0
	}
	return float64(stats.InClusterItems) / float64(stats.FeedItems)
}
