// Package worker drains the event queue and applies events through the
// affinity handler.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/tastegraph/internal/adapters/mq/queue"
	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/pkg/logger"
	"github.com/okian/tastegraph/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	defaultMaxAttempts      = 3
	defaultBaseDelay        = 50 * time.Millisecond
)

// Handler applies one event.
type Handler interface {
	Handle(ctx context.Context, ev model.TasteEvent) error
}

// Queue defines how workers receive messages.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Message
}

// Worker processes messages until the queue closes or it is stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	maxAttempts int
	baseDelay   time.Duration
	release     func(eventID string)

	shutdown chan struct{}
	done     chan struct{}

	processed *atomic.Int64
	logger    logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		handler:     h,
		name:        "worker",
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		processed:   new(atomic.Int64),
		logger:      logger.Nop(),
		release:     func(string) {},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

// Run processes messages until ctx is done, Shutdown is called, or the queue
// is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	messages := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			w.process(ctx, m)
		}
	}
}

// Shutdown stops the worker after its current message.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process applies m, retrying transient failures with exponential backoff.
// Permanent failures are logged and dropped. Events abandoned while still
// transient are released so their id may be submitted again.
func (w *InMemoryWorker) process(ctx context.Context, m queue.Message) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	delay := w.baseDelay
	for attempt := 1; ; attempt++ {
		err := w.handler.Handle(ctx, m.Event)
		if err == nil {
			w.processed.Add(1)
			return
		}

		if !model.IsRetryable(err) {
			reason := dropReason(err)
			metrics.RecordWorkerDropped(reason)
			if reason == "cancelled" {
				w.release(m.EventID)
			}
			w.logger.Warn(ctx, "dropping event",
				logger.String("event_id", m.EventID),
				logger.String("kind", m.Event.Kind()),
				logger.String("reason", reason),
				logger.Error(err),
			)
			return
		}
		if attempt >= w.maxAttempts {
			metrics.RecordWorkerDropped("retries_exhausted")
			metrics.RecordErrorByComponent("worker", "retries_exhausted")
			w.release(m.EventID)
			w.logger.Error(ctx, "giving up on event",
				logger.String("event_id", m.EventID),
				logger.Int("attempts", attempt),
				logger.Error(err),
			)
			return
		}

		metrics.RecordWorkerRetry()
		w.logger.Debug(ctx, "retrying event",
			logger.String("event_id", m.EventID),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
		)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			metrics.RecordWorkerDropped("cancelled")
			w.release(m.EventID)
			return
		case <-t.C:
		}
		delay *= 2
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInvalidEvent):
		return "invalid"
	case errors.Is(err, model.ErrUnknownEvent):
		return "unknown"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}

// Pool manages multiple workers.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processed *atomic.Int64
	logger    logger.Logger
}

// NewPool creates workerCount workers sharing q and h. A count below one
// selects twice the CPU count. opts apply to every worker.
func NewPool(workerCount int, q Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	base := &InMemoryWorker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(base)
	}

	p := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		queue:     q,
		processed: new(atomic.Int64),
		logger:    base.logger.Named("worker-pool"),
	}
	for i := range p.workers {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, h, workerOpts...)
		w.processed = p.processed
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Processed returns how many events were applied successfully.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Shutdown closes the queue and waits for the workers to drain it. When ctx
// expires first, the workers are stopped and the remaining messages are lost.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			p.stopAll()
			return fmt.Errorf("drain workers: %w", ctx.Err())
		}
	}
	p.logger.Info(ctx, "worker pool stopped", logger.Int64("processed", p.processed.Load()))
	return nil
}

func (p *Pool) stopAll() {
	for _, w := range p.workers {
		select {
		case <-w.shutdown:
		default:
			close(w.shutdown)
		}
	}
}
