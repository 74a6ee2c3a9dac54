package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/tastegraph/internal/adapters/scheduler"
	. "github.com/smartystreets/goconvey/convey"
)

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestNew(t *testing.T) {
	Convey("Given an unparsable schedule", t, func() {
		_, err := scheduler.New("every tuesday", func(context.Context) error { return nil })

		Convey("Then construction fails", func() {
			So(errors.Is(err, scheduler.ErrInvalidSchedule), ShouldBeTrue)
		})
	})

	Convey("Given descriptor and six-field schedules", t, func() {
		for _, spec := range []string{"@daily", "@every 1h30m", "0 30 3 * * *", ""} {
			_, err := scheduler.New(spec, func(context.Context) error { return nil })
			So(err, ShouldBeNil)
		}
	})
}

func TestTrigger(t *testing.T) {
	Convey("Given a scheduler without a schedule", t, func() {
		var runs atomic.Int32
		release := make(chan struct{})
		s, err := scheduler.New("", func(ctx context.Context) error {
			runs.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		So(err, ShouldBeNil)
		s.Start(context.Background())

		Convey("When it is triggered twice while the first run is in flight", func() {
			first := s.Trigger()
			second := s.Trigger()

			Convey("Then only the first trigger starts a run", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(s.Running(), ShouldBeTrue)

				close(release)
				So(waitFor(func() bool { return !s.Running() }), ShouldBeTrue)
				So(runs.Load(), ShouldEqual, 1)

				So(s.Trigger(), ShouldBeTrue)
				So(waitFor(func() bool { return runs.Load() == 2 && !s.Running() }), ShouldBeTrue)
				So(s.Stop(context.Background()), ShouldBeNil)
			})
		})

		Convey("When it is stopped during a run", func() {
			So(s.Trigger(), ShouldBeTrue)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := s.Stop(ctx)

			Convey("Then the run is cancelled and Stop returns", func() {
				So(err, ShouldBeNil)
				So(s.Running(), ShouldBeFalse)
			})
		})
	})

	Convey("Given a run that exceeds its timeout", t, func() {
		var got atomic.Value
		s, err := scheduler.New("", func(ctx context.Context) error {
			<-ctx.Done()
			got.Store(ctx.Err())
			return ctx.Err()
		}, scheduler.WithTimeout(20*time.Millisecond))
		So(err, ShouldBeNil)
		s.Start(context.Background())

		Convey("Then its context expires", func() {
			So(s.Trigger(), ShouldBeTrue)
			So(waitFor(func() bool { return got.Load() != nil }), ShouldBeTrue)
			So(errors.Is(got.Load().(error), context.DeadlineExceeded), ShouldBeTrue)
			So(s.Stop(context.Background()), ShouldBeNil)
		})
	})
}

func TestSchedule(t *testing.T) {
	Convey("Given a scheduler firing every second", t, func() {
		var runs atomic.Int32
		s, err := scheduler.New("@every 1s", func(context.Context) error {
			runs.Add(1)
			return nil
		})
		So(err, ShouldBeNil)
		s.Start(context.Background())

		Convey("Then the job runs without a trigger", func() {
			So(waitFor(func() bool { return runs.Load() >= 1 }), ShouldBeTrue)
			So(s.Stop(context.Background()), ShouldBeNil)
		})
	})
}
