package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/tastegraph/internal/adapters/repository"
	"github.com/okian/tastegraph/internal/adapters/repository/repotest"
	"github.com/okian/tastegraph/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func seedMedia(ctx context.Context, catalog *repository.CatalogRepo, ids ...string) {
	for _, id := range ids {
		So(catalog.Upsert(ctx, model.MediaInfo{ID: id, Title: "title-" + id, Type: "MOVIE"}), ShouldBeNil)
	}
}

func TestAffinityRepo(t *testing.T) {
	Convey("Given an affinity repository", t, func() {
		ctx := context.Background()
		db := repotest.DB(t)
		repo := repository.NewAffinityRepo(db)

		Convey("When reading a missing affinity", func() {
			_, err := repo.Get(ctx, "u1", "m1")

			Convey("Then it reports not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(model.IsRetryable(err), ShouldBeFalse)
			})
		})

		Convey("When upserting the same key twice", func() {
			So(repo.Upsert(ctx, model.Affinity{UserID: "u1", MediaID: "m1", Score: 1700}), ShouldBeNil)
			So(repo.Upsert(ctx, model.Affinity{UserID: "u1", MediaID: "m1", Score: 800}), ShouldBeNil)

			Convey("Then the last write wins", func() {
				a, err := repo.Get(ctx, "u1", "m1")
				So(err, ShouldBeNil)
				So(a.Score, ShouldEqual, 800)
				So(a.LastUpdated.IsZero(), ShouldBeFalse)

				n, err := repo.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When several users share liked media", func() {
			rows := []model.Affinity{
				{UserID: "a", MediaID: "m1", Score: 1500}, {UserID: "a", MediaID: "m2", Score: 1500},
				{UserID: "a", MediaID: "m3", Score: 1500}, {UserID: "a", MediaID: "m4", Score: 900},
				{UserID: "b", MediaID: "m1", Score: 1400}, {UserID: "b", MediaID: "m2", Score: 1400},
				{UserID: "b", MediaID: "m3", Score: 1400},
				{UserID: "c", MediaID: "m1", Score: 1400}, {UserID: "c", MediaID: "m2", Score: 1400},
				{UserID: "c", MediaID: "m3", Score: 1200},
				{UserID: "d", MediaID: "m4", Score: 1600},
			}
			So(repo.Upsert(ctx, rows...), ShouldBeNil)

			Convey("Then candidates require enough shared media above the threshold", func() {
				ids, err := repo.Candidates(ctx, "a", 3, 1200)
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"b"})
			})

			Convey("Then users page by cursor", func() {
				first, err := repo.UsersAfter(ctx, "", 2)
				So(err, ShouldBeNil)
				So(first, ShouldResemble, []string{"a", "b"})

				next, err := repo.UsersAfter(ctx, first[len(first)-1], 2)
				So(err, ShouldBeNil)
				So(next, ShouldResemble, []string{"c", "d"})

				last, err := repo.UsersAfter(ctx, "d", 2)
				So(err, ShouldBeNil)
				So(last, ShouldBeEmpty)
			})

			Convey("Then vectors load full profiles", func() {
				vecs, err := repo.Vectors(ctx, "a", "d", "nobody")
				So(err, ShouldBeNil)
				So(len(vecs), ShouldEqual, 2)
				So(vecs["a"], ShouldResemble, map[string]int{"m1": 1500, "m2": 1500, "m3": 1500, "m4": 900})
				So(vecs["d"], ShouldResemble, map[string]int{"m4": 1600})
			})

			Convey("Then a non-positive page size is rejected", func() {
				_, err := repo.UsersAfter(ctx, "", 0)
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})
	})
}

func TestMediaRepo(t *testing.T) {
	Convey("Given a media repository with a small catalog", t, func() {
		ctx := context.Background()
		db := repotest.DB(t)
		catalog := repository.NewCatalogRepo(db, 1500)
		media := repository.NewMediaRepo(db)
		tx := repository.NewTransactor(db)
		seedMedia(ctx, catalog, "m1", "m2", "m3")

		Convey("When locking existing media inside a transaction", func() {
			var got map[string]model.MediaRating
			err := tx.InTx(ctx, func(ctx context.Context) error {
				var err error
				got, err = media.LockForUpdate(ctx, "m1", "m2")
				if err != nil {
					return err
				}
				return media.SaveRatings(ctx,
					model.MediaRating{MediaID: "m1", Score: 1510, MatchCount: 1},
					model.MediaRating{MediaID: "m2", Score: 1490, MatchCount: 1},
				)
			})

			Convey("Then the fresh ratings are read and the writes commit", func() {
				So(err, ShouldBeNil)
				So(got["m1"].Score, ShouldEqual, 1500)
				r, err := media.Rating(ctx, "m2")
				So(err, ShouldBeNil)
				So(r.Score, ShouldEqual, 1490)
				So(r.MatchCount, ShouldEqual, 1)
			})
		})

		Convey("When one of the locked media is missing", func() {
			_, err := media.LockForUpdate(ctx, "m1", "ghost")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the transaction body fails", func() {
			boom := errors.New("boom")
			err := tx.InTx(ctx, func(ctx context.Context) error {
				if err := media.SaveRatings(ctx, model.MediaRating{MediaID: "m3", Score: 9999}); err != nil {
					return err
				}
				return boom
			})

			Convey("Then the error is returned unchanged and nothing is written", func() {
				So(err, ShouldEqual, boom)
				r, err := media.Rating(ctx, "m3")
				So(err, ShouldBeNil)
				So(r.Score, ShouldEqual, 1500)
			})
		})

		Convey("When saving a rating for an unknown media", func() {
			err := media.SaveRatings(ctx, model.MediaRating{MediaID: "ghost", Score: 1})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When listing the top rated media", func() {
			So(media.SaveRatings(ctx,
				model.MediaRating{MediaID: "m1", Score: 1400},
				model.MediaRating{MediaID: "m2", Score: 1600, MatchCount: 2},
				model.MediaRating{MediaID: "m3", Score: 1600, MatchCount: 5},
			), ShouldBeNil)

			top, err := media.TopRated(ctx, 2)

			Convey("Then score then match count decide the order", func() {
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 2)
				So(top[0].MediaID, ShouldEqual, "m3")
				So(top[0].Rank, ShouldEqual, 1)
				So(top[0].Title, ShouldEqual, "title-m3")
				So(top[1].MediaID, ShouldEqual, "m2")
			})
		})

		Convey("When the catalog refreshes an existing item", func() {
			So(media.SaveRatings(ctx, model.MediaRating{MediaID: "m1", Score: 1777}), ShouldBeNil)
			So(catalog.Upsert(ctx, model.MediaInfo{ID: "m1", Title: "Renamed"}), ShouldBeNil)

			Convey("Then the rating survives", func() {
				r, err := media.Rating(ctx, "m1")
				So(err, ShouldBeNil)
				So(r.Score, ShouldEqual, 1777)
				info, err := catalog.FindByIDs(ctx, []string{"m1", "ghost"})
				So(err, ShouldBeNil)
				So(info["m1"].Title, ShouldEqual, "Renamed")
				So(info, ShouldNotContainKey, "ghost")
			})
		})
	})
}

func TestNeighborRepo(t *testing.T) {
	Convey("Given neighbor and affinity repositories", t, func() {
		ctx := context.Background()
		db := repotest.DB(t)
		affinities := repository.NewAffinityRepo(db)
		neighbors := repository.NewNeighborRepo(db)

		So(affinities.Upsert(ctx,
			model.Affinity{UserID: "a", MediaID: "seen", Score: 1500},
			model.Affinity{UserID: "b", MediaID: "seen", Score: 1500},
			model.Affinity{UserID: "b", MediaID: "x", Score: 1600},
			model.Affinity{UserID: "b", MediaID: "y", Score: 1000},
			model.Affinity{UserID: "c", MediaID: "x", Score: 1400},
			model.Affinity{UserID: "c", MediaID: "z", Score: 1300},
		), ShouldBeNil)

		Convey("When a user has no edges", func() {
			ok, err := neighbors.HasNeighbors(ctx, "a")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("When edges are replaced", func() {
			So(neighbors.Replace(ctx, "a", []model.Neighbor{
				{NeighborID: "b", Similarity: 0.9},
				{NeighborID: "old", Similarity: 0.1},
			}), ShouldBeNil)
			So(neighbors.Replace(ctx, "a", []model.Neighbor{
				{NeighborID: "b", Similarity: 0.5},
				{NeighborID: "c", Similarity: 0.25},
			}), ShouldBeNil)

			Convey("Then only the latest set remains", func() {
				list, err := neighbors.ListByUser(ctx, "a")
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 2)
				So(list[0].NeighborID, ShouldEqual, "b")
				So(list[0].Similarity, ShouldEqual, 0.5)
				So(list[1].NeighborID, ShouldEqual, "c")
			})

			Convey("Then ranking sums weighted neighbor affinities and skips seen media", func() {
				ranked, err := neighbors.RankForUser(ctx, "a", 10, 0)
				So(err, ShouldBeNil)
				// x: 1600*0.5 + 1400*0.25 = 1150, y: 500, z: 325
				So(len(ranked), ShouldEqual, 3)
				So(ranked[0].MediaID, ShouldEqual, "x")
				So(ranked[0].Score, ShouldAlmostEqual, 1150, 1e-9)
				So(ranked[1].MediaID, ShouldEqual, "y")
				So(ranked[2].MediaID, ShouldEqual, "z")
			})

			Convey("Then swiped media are skipped and paging applies", func() {
				interactions := repository.NewInteractionRepo(db)
				So(interactions.Record(ctx, model.Interaction{UserID: "a", MediaID: "x", Action: model.ActionSkip}), ShouldBeNil)
				So(interactions.Record(ctx, model.Interaction{UserID: "b", MediaID: "y", Action: model.ActionSkip}), ShouldBeNil)
				ranked, err := neighbors.RankForUser(ctx, "a", 1, 1)
				So(err, ShouldBeNil)
				So(len(ranked), ShouldEqual, 1)
				So(ranked[0].MediaID, ShouldEqual, "z")
			})

			Convey("Then an empty replacement clears the edges", func() {
				So(neighbors.Replace(ctx, "a", nil), ShouldBeNil)
				ok, err := neighbors.HasNeighbors(ctx, "a")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the limit is invalid", func() {
			_, err := neighbors.RankForUser(ctx, "a", 0, 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})
	})
}

func TestInteractionRepo(t *testing.T) {
	Convey("Given an interaction log", t, func() {
		ctx := context.Background()
		repo := repository.NewInteractionRepo(repotest.DB(t))
		t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

		So(repo.Record(ctx, model.Interaction{UserID: "u", MediaID: "m2", Action: model.ActionDislike, CreatedAt: t0.Add(time.Second)}), ShouldBeNil)
		So(repo.Record(ctx, model.Interaction{UserID: "u", MediaID: "m1", Action: model.ActionLike, Sentiment: model.SentimentBanger, CreatedAt: t0}), ShouldBeNil)
		So(repo.Record(ctx, model.Interaction{UserID: "u", MediaID: "m1", Action: model.ActionWin, CreatedAt: t0.Add(2 * time.Second)}), ShouldBeNil)
		So(repo.Record(ctx, model.Interaction{UserID: "other", MediaID: "m9", Action: model.ActionSkip}), ShouldBeNil)

		Convey("Then history is chronological and scoped to the user", func() {
			hist, err := repo.FindAllByUser(ctx, "u")
			So(err, ShouldBeNil)
			So(len(hist), ShouldEqual, 3)
			So(hist[0].MediaID, ShouldEqual, "m1")
			So(hist[0].Sentiment, ShouldEqual, model.SentimentBanger)
			So(hist[1].Action, ShouldEqual, model.ActionDislike)
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given an unknown driver", t, func() {
		_, err := repository.Open(context.Background(), "oracle", "dsn")
		So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
	})
}
