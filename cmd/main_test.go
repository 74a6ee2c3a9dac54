package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/tastegraph/internal/adapters/cache"
	"github.com/okian/tastegraph/internal/adapters/repository"
	"github.com/okian/tastegraph/internal/adapters/repository/repotest"
	"github.com/okian/tastegraph/internal/config"
	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigFromEnv(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv("TASTEGRAPH_ADDR", ":8080")
		t.Setenv("TASTEGRAPH_QUEUE_SIZE", "1000")
		t.Setenv("TASTEGRAPH_WORKER_COUNT", "4")
		t.Setenv("TASTEGRAPH_NEIGHBOR_SCHEDULE", "@every 6h")

		convey.Convey("Then configuration picks them up", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			convey.So(cfg.NeighborSchedule, convey.ShouldEqual, "@every 6h")
		})
	})
}

func TestBuildCache(t *testing.T) {
	convey.Convey("Given no redis address", t, func() {
		cfg := config.New()
		rt, err := buildCache(context.Background(), cfg, logger.Nop())

		convey.Convey("Then the in-memory cache is used", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(rt, convey.ShouldNotBeNil)
			convey.So(rt.Close(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a redis address nothing listens on", t, func() {
		cfg := config.New()
		cfg.RedisAddr = "127.0.0.1:1"
		rt, err := buildCache(context.Background(), cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		convey.So(rt, convey.ShouldNotBeNil)
		defer func() { _ = rt.Close() }()

		convey.Convey("Then reads fall through to the loader", func() {
			calls := 0
			load := func(context.Context) (int, error) {
				calls++
				return 7, nil
			}
			v, err := cache.GetOrCompute(context.Background(), rt, "k", time.Minute, load)
			convey.So(err, convey.ShouldBeNil)
			convey.So(v, convey.ShouldEqual, 7)
			convey.So(calls, convey.ShouldEqual, 1)
		})
	})
}

func TestWiring(t *testing.T) {
	convey.Convey("Given the service wired to an in-memory store", t, func() {
		ctx := context.Background()
		db := repotest.DB(t)

		cfg := config.New()
		cfg.WorkerCount = 2
		cfg.NeighborSchedule = ""
		rt, err := buildCache(ctx, cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)

		svc, jobs, err := buildService(ctx, cfg, db, rt, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = svc.Close() }()
		convey.So(svc.UpsertMedia(ctx, model.MediaInfo{ID: "m1", Title: "One"}), convey.ShouldBeNil)

		h := newHandler(svc, jobs, logger.Nop())

		convey.Convey("When an event is posted and the service drains", func() {
			req := httptest.NewRequest(http.MethodPost, "/events/sentiment",
				strings.NewReader(`{"event_id":"e1","user_id":"u1","media_id":"m1","sentiment":"GOOD"}`))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusAccepted)

			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			convey.So(jobs.Stop(stopCtx), convey.ShouldBeNil)
			convey.So(svc.Stop(stopCtx), convey.ShouldBeNil)

			convey.Convey("Then the affinity is stored", func() {
				a, err := repository.NewAffinityRepo(db).Get(ctx, "u1", "m1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(a.Score, convey.ShouldEqual, 1700)
			})
		})

		convey.Convey("When the docs and leaderboard are requested", func() {
			docs := httptest.NewRecorder()
			h.ServeHTTP(docs, httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody))
			top := httptest.NewRecorder()
			h.ServeHTTP(top, httptest.NewRequest(http.MethodGet, "/media/top?limit=5", http.NoBody))

			convey.Convey("Then both are served", func() {
				convey.So(docs.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(top.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(top.Body.String(), convey.ShouldContainSubstring, `"media_id":"m1"`)
			})
			_ = jobs.Stop(ctx)
			_ = svc.Stop(ctx)
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics collector", t, func() {
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}
