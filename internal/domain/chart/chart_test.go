package chart_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/tastegraph/internal/domain/chart"
	"github.com/okian/tastegraph/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type stubHistory struct {
	items []model.Interaction
	err   error
}

func (s stubHistory) FindAllByUser(context.Context, string) ([]model.Interaction, error) {
	return s.items, s.err
}

type stubCatalog map[string]model.MediaInfo

func (s stubCatalog) FindByIDs(_ context.Context, ids []string) (map[string]model.MediaInfo, error) {
	out := make(map[string]model.MediaInfo)
	for _, id := range ids {
		if info, ok := s[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func TestReplay(t *testing.T) {
	replayer := chart.NewBuilder(nil, nil)

	Convey("Given a history with seeds only", t, func() {
		history := []model.Interaction{
			{MediaID: "wish", Action: model.ActionWishlist, CreatedAt: at(30)},
			{MediaID: "banger", Action: model.ActionLike, Sentiment: model.SentimentBanger, CreatedAt: at(10)},
			{MediaID: "liked", Action: model.ActionLike, CreatedAt: at(20)},
			{MediaID: "nope", Action: model.ActionDislike, CreatedAt: at(40)},
			{MediaID: "skip", Action: model.ActionSkip, CreatedAt: at(50)},
			{MediaID: "liked", Action: model.ActionWishlist, CreatedAt: at(60)},
		}

		Convey("Then the first seeding interaction decides and dislikes are ignored", func() {
			got := replayer.Replay(history)
			So(got, ShouldResemble, []model.ScoredMedia{
				{MediaID: "banger", Score: 1600},
				{MediaID: "liked", Score: 1400},
				{MediaID: "wish", Score: 1200},
			})
		})
	})

	Convey("Given a duel recorded as WIN then LOSS within the window", t, func() {
		history := []model.Interaction{
			{MediaID: "a", Action: model.ActionLike, CreatedAt: at(0)},
			{MediaID: "b", Action: model.ActionLike, Sentiment: model.SentimentBanger, CreatedAt: at(1)},
			{MediaID: "a", Action: model.ActionWin, CreatedAt: at(100)},
			{MediaID: "b", Action: model.ActionLoss, CreatedAt: at(102)},
		}

		Convey("Then the upset narrows the gap", func() {
			got := replayer.Replay(history)
			So(len(got), ShouldEqual, 2)
			// 1400 beats 1600 with K=32
			So(got[0], ShouldResemble, model.ScoredMedia{MediaID: "b", Score: 1576})
			So(got[1], ShouldResemble, model.ScoredMedia{MediaID: "a", Score: 1424})
		})
	})

	Convey("Given a LIKE then DISLIKE too far apart", t, func() {
		history := []model.Interaction{
			{MediaID: "a", Action: model.ActionLike, CreatedAt: at(0)},
			{MediaID: "b", Action: model.ActionDislike, CreatedAt: at(5)},
		}

		Convey("Then no duel is applied", func() {
			got := replayer.Replay(history)
			So(got, ShouldResemble, []model.ScoredMedia{{MediaID: "a", Score: 1400}})
		})
	})

	Convey("Given a quick LIKE then DISLIKE on unseeded media", t, func() {
		history := []model.Interaction{
			{MediaID: "x", Action: model.ActionLike, CreatedAt: at(0)},
			{MediaID: "y", Action: model.ActionDislike, CreatedAt: at(2)},
		}

		Convey("Then the loser enters at the default score", func() {
			got := replayer.Replay(history)
			So(got, ShouldResemble, []model.ScoredMedia{
				{MediaID: "x", Score: 1416},
				{MediaID: "y", Score: 1384},
			})
		})
	})

	Convey("Given two liked media followed by a quick LIKE then DISLIKE", t, func() {
		history := []model.Interaction{
			{MediaID: "a", Action: model.ActionLike, CreatedAt: at(0)},
			{MediaID: "b", Action: model.ActionLike, CreatedAt: at(10)},
			{MediaID: "a", Action: model.ActionLike, CreatedAt: at(20)},
			{MediaID: "b", Action: model.ActionDislike, CreatedAt: at(21)},
		}

		Convey("Then 1400 against 1400 moves by half of K", func() {
			got := replayer.Replay(history)
			So(got, ShouldResemble, []model.ScoredMedia{
				{MediaID: "a", Score: 1416},
				{MediaID: "b", Score: 1384},
			})
		})
	})

	Convey("Given a builder with custom replay constants", t, func() {
		custom := chart.NewBuilder(nil, nil,
			chart.WithKFactor(80),
			chart.WithSeeds(1700, 1500, 1100),
			chart.WithDefaultScore(1000),
			chart.WithDuelWindow(10*time.Second),
		)
		history := []model.Interaction{
			{MediaID: "w", Action: model.ActionWishlist, CreatedAt: at(0)},
			{MediaID: "x", Action: model.ActionLike, CreatedAt: at(20)},
			{MediaID: "y", Action: model.ActionDislike, CreatedAt: at(28)},
		}

		Convey("Then seeds, default, window and K all apply", func() {
			got := custom.Replay(history)
			// 1500 beats 1000 with K=80: expected 0.9468, delta 4.26
			So(got, ShouldResemble, []model.ScoredMedia{
				{MediaID: "x", Score: 1504},
				{MediaID: "w", Score: 1100},
				{MediaID: "y", Score: 996},
			})
		})
	})

	Convey("Given an empty history", t, func() {
		So(replayer.Replay(nil), ShouldBeEmpty)
	})
}

func TestBuild(t *testing.T) {
	Convey("Given a history that references a media missing from the catalog", t, func() {
		history := stubHistory{items: []model.Interaction{
			{MediaID: "gone", Action: model.ActionLike, Sentiment: model.SentimentBanger, CreatedAt: at(0)},
			{MediaID: "m1", Action: model.ActionLike, CreatedAt: at(10)},
			{MediaID: "m2", Action: model.ActionWishlist, CreatedAt: at(20)},
		}}
		catalog := stubCatalog{
			"m1": {ID: "m1", Title: "One"},
			"m2": {ID: "m2", Title: "Two"},
		}
		b := chart.NewBuilder(history, catalog)

		Convey("When the chart is built", func() {
			got, err := b.Build(context.Background(), "u", 10)

			Convey("Then ranks are contiguous after filtering", func() {
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[0].Rank, ShouldEqual, 1)
				So(got[0].MediaID, ShouldEqual, "m1")
				So(got[0].Title, ShouldEqual, "One")
				So(got[1].Rank, ShouldEqual, 2)
			})
		})

		Convey("When the limit is smaller than the history", func() {
			got, err := b.Build(context.Background(), "u", 1)

			Convey("Then truncation happens before filtering", func() {
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a failing history", t, func() {
		b := chart.NewBuilder(stubHistory{err: errors.New("boom")}, stubCatalog{})
		_, err := b.Build(context.Background(), "u", 10)
		So(err, ShouldNotBeNil)
	})
}
