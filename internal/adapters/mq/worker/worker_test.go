package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/tastegraph/internal/adapters/mq/queue"
	worker "github.com/okian/tastegraph/internal/adapters/mq/worker"
	model "github.com/okian/tastegraph/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

// scriptedHandler returns queued errors per media id, then succeeds.
type scriptedHandler struct {
	mu      sync.Mutex
	script  map[string][]error
	calls   map[string]int
	applied []string
}

func newScriptedHandler() *scriptedHandler {
	return &scriptedHandler{script: map[string][]error{}, calls: map[string]int{}}
}

func (h *scriptedHandler) fail(mediaID string, errs ...error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.script[mediaID] = errs
}

func (h *scriptedHandler) Handle(_ context.Context, ev model.TasteEvent) error {
	id := ev.(model.SentimentEvent).MediaID

	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[id]++
	if errs := h.script[id]; len(errs) > 0 {
		h.script[id] = errs[1:]
		return errs[0]
	}
	h.applied = append(h.applied, id)
	return nil
}

func (h *scriptedHandler) callsFor(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[id]
}

func (h *scriptedHandler) appliedIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.applied...)
}

func msg(mediaID string) queue.Message {
	return queue.Message{
		EventID: "evt-" + mediaID,
		Event:   model.SentimentEvent{UserID: "u1", MediaID: mediaID, Sentiment: model.SentimentGood},
	}
}

func transient() error {
	return fmt.Errorf("upsert affinity: %w: %w", model.ErrTransient, errors.New("database is locked"))
}

func runOne(h worker.Handler, opts ...worker.Option) (*queue.InMemoryQueue, *worker.InMemoryWorker) {
	q := queue.NewInMemoryQueue(queue.WithCapacity(16))
	opts = append([]worker.Option{worker.WithRetry(3, time.Millisecond)}, opts...)
	w := worker.NewInMemoryWorker(q, h, opts...)
	return q, w
}

func TestWorkerProcessing(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		h := newScriptedHandler()
		q, w := runOne(h)
		ctx := context.Background()

		convey.Convey("When the handler succeeds", func() {
			q.Enqueue(ctx, msg("m1"))
			q.Enqueue(ctx, msg("m2"))
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then every message is applied in order", func() {
				convey.So(h.appliedIDs(), convey.ShouldResemble, []string{"m1", "m2"})
			})
		})

		convey.Convey("When the handler fails transiently twice", func() {
			h.fail("m1", transient(), transient())
			q.Enqueue(ctx, msg("m1"))
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then the third attempt applies it", func() {
				convey.So(h.callsFor("m1"), convey.ShouldEqual, 3)
				convey.So(h.appliedIDs(), convey.ShouldResemble, []string{"m1"})
			})
		})

		convey.Convey("When transient failures exceed the attempt budget", func() {
			h.fail("m1", transient(), transient(), transient(), transient())
			q.Enqueue(ctx, msg("m1"))
			q.Enqueue(ctx, msg("m2"))
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then the message is dropped and the next one still runs", func() {
				convey.So(h.callsFor("m1"), convey.ShouldEqual, 3)
				convey.So(h.appliedIDs(), convey.ShouldResemble, []string{"m2"})
			})
		})

		convey.Convey("When the handler reports a permanent failure", func() {
			h.fail("m1", fmt.Errorf("media m1: %w", model.ErrNotFound))
			h.fail("m2", fmt.Errorf("%w: sentiment", model.ErrInvalidEvent))
			q.Enqueue(ctx, msg("m1"))
			q.Enqueue(ctx, msg("m2"))
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then it is not retried", func() {
				convey.So(h.callsFor("m1"), convey.ShouldEqual, 1)
				convey.So(h.callsFor("m2"), convey.ShouldEqual, 1)
				convey.So(h.appliedIDs(), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestWorkerRelease(t *testing.T) {
	convey.Convey("Given a worker that reports abandoned event ids", t, func() {
		h := newScriptedHandler()
		var mu sync.Mutex
		var released []string
		q, w := runOne(h, worker.WithRelease(func(id string) {
			mu.Lock()
			defer mu.Unlock()
			released = append(released, id)
		}))
		ctx := context.Background()

		convey.Convey("When transient failures exhaust the retries", func() {
			h.fail("m1", transient(), transient(), transient())
			q.Enqueue(ctx, msg("m1"))
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then the event id is released", func() {
				convey.So(released, convey.ShouldResemble, []string{"evt-m1"})
			})
		})

		convey.Convey("When the failures are permanent or the event succeeds", func() {
			h.fail("m1", fmt.Errorf("media m1: %w", model.ErrNotFound))
			h.fail("m2", fmt.Errorf("%w: sentiment", model.ErrInvalidEvent))
			q.Enqueue(ctx, msg("m1"))
			q.Enqueue(ctx, msg("m2"))
			q.Enqueue(ctx, msg("m3"))
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then nothing is released", func() {
				convey.So(released, convey.ShouldBeEmpty)
				convey.So(h.appliedIDs(), convey.ShouldResemble, []string{"m3"})
			})
		})
	})
}

func TestWorkerShutdown(t *testing.T) {
	convey.Convey("Given a running worker on an open queue", t, func() {
		h := newScriptedHandler()
		_, w := runOne(h)
		go w.Run(context.Background())

		convey.Convey("When it is shut down", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := w.Shutdown(ctx)

			convey.Convey("Then it stops without error", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker backing off on a transient failure", t, func() {
		h := newScriptedHandler()
		h.fail("m1", transient(), transient())
		q, w := runOne(h, worker.WithRetry(5, time.Hour))
		ctx, cancel := context.WithCancel(context.Background())
		q.Enqueue(ctx, msg("m1"))

		done := make(chan struct{})
		go func() {
			w.Run(ctx)
			close(done)
		}()

		convey.Convey("When the context is cancelled", func() {
			for h.callsFor("m1") == 0 {
				time.Sleep(time.Millisecond)
			}
			cancel()

			convey.Convey("Then the backoff is abandoned", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
				convey.So(h.appliedIDs(), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		h := newScriptedHandler()
		q := queue.NewInMemoryQueue(queue.WithCapacity(256))
		pool := worker.NewPool(4, q, h, worker.WithRetry(2, time.Millisecond))
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		ctx := context.Background()
		for i := 0; i < 100; i++ {
			q.Enqueue(ctx, msg(fmt.Sprintf("m%d", i)))
		}
		pool.Start(ctx)

		convey.Convey("When the pool is shut down", func() {
			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err := pool.Shutdown(sctx)

			convey.Convey("Then every queued message was drained", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pool.Processed(), convey.ShouldEqual, 100)
				convey.So(len(h.appliedIDs()), convey.ShouldEqual, 100)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool with a non-positive worker count", t, func() {
		q := queue.NewInMemoryQueue()
		pool := worker.NewPool(0, q, newScriptedHandler())

		convey.Convey("Then it sizes itself from the CPU count", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}
