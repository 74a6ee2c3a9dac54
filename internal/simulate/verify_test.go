package simulate

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func smallPlan() *Plan {
	return &Plan{
		Users:        []string{"u1", "u2"},
		UserCluster:  map[string]int{"u1": 0, "u2": 1},
		MediaCluster: map[string]int{"a": 0, "b": 0, "c": 1, "d": 1},
		Rated: map[string]map[string]bool{
			"u1": {"a": true},
			"u2": {"c": true},
		},
	}
}

func TestVerifyFeeds(t *testing.T) {
	ctx := context.Background()

	Convey("Given a plan with two clustered users", t, func() {
		plan := smallPlan()
		cfg := &Config{}
		cfg.Defaults()

		Convey("When every feed recommends unrated own-cluster media", func() {
			stats := &Stats{}
			feeds := map[string][]FeedItem{
				"u1": {{Rank: 1, MediaID: "b", Score: 900}, {Rank: 2, MediaID: "c", Score: 100}},
				"u2": {{Rank: 1, MediaID: "d", Score: 500}},
			}
			err := verifyFeeds(ctx, cfg, plan, feeds, stats)

			Convey("Then verification passes and counts the share", func() {
				So(err, ShouldBeNil)
				So(stats.FeedItems, ShouldEqual, 3)
				So(stats.InClusterItems, ShouldEqual, 2)
			})
		})

		Convey("When a feed contains already rated media", func() {
			feeds := map[string][]FeedItem{
				"u1": {{Rank: 1, MediaID: "a", Score: 900}},
				"u2": {{Rank: 1, MediaID: "d", Score: 500}},
			}
			err := verifyFeeds(ctx, cfg, plan, feeds, &Stats{})

			Convey("Then verification fails", func() {
				So(errors.Is(err, ErrVerification), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "already rated a")
			})
		})

		Convey("When ranks skip or scores rise", func() {
			feeds := map[string][]FeedItem{
				"u1": {{Rank: 1, MediaID: "b", Score: 100}, {Rank: 3, MediaID: "c", Score: 200}},
			}
			err := verifyFeeds(ctx, cfg, plan, feeds, &Stats{})

			Convey("Then both problems are reported", func() {
				So(errors.Is(err, ErrVerification), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "has rank 3")
				So(err.Error(), ShouldContainSubstring, "not sorted")
			})
		})

		Convey("When most items come from other clusters", func() {
			stats := &Stats{}
			feeds := map[string][]FeedItem{
				"u1": {{Rank: 1, MediaID: "c", Score: 300}, {Rank: 2, MediaID: "d", Score: 200}},
				"u2": {{Rank: 1, MediaID: "a", Score: 300}},
			}
			err := verifyFeeds(ctx, cfg, plan, feeds, stats)

			Convey("Then the share check fails", func() {
				So(errors.Is(err, ErrVerification), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "own-cluster share")
			})
		})

		Convey("When every feed is empty", func() {
			stats := &Stats{}
			err := verifyFeeds(ctx, cfg, plan, map[string][]FeedItem{}, stats)

			Convey("Then verification fails", func() {
				So(err, ShouldNotBeNil)
				So(stats.FeedsEmpty, ShouldEqual, 2)
			})
		})
	})
}

func TestVerifyTopRated(t *testing.T) {
	Convey("Given leaderboard pages", t, func() {
		So(verifyTopRated([]FeedItem{{Rank: 1, Score: 3}, {Rank: 2, Score: 3}, {Rank: 3, Score: 1}}), ShouldBeNil)
		So(verifyTopRated(nil), ShouldBeNil)
		So(errors.Is(verifyTopRated([]FeedItem{{Rank: 1, Score: 1}, {Rank: 2, Score: 2}}), ErrVerification), ShouldBeTrue)
		So(errors.Is(verifyTopRated([]FeedItem{{Rank: 2, Score: 1}}), ErrVerification), ShouldBeTrue)
	})
}
