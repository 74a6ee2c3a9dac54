// Package scheduler runs the neighbor job on a cron schedule and on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"

	"github.com/okian/tastegraph/pkg/logger"
)

// ErrInvalidSchedule wraps cron parse failures.
var ErrInvalidSchedule = errors.New("invalid schedule")

// RunFunc is the scheduled work.
type RunFunc func(ctx context.Context) error

// Scheduler fires a RunFunc from a cron schedule or Trigger. At most one run
// is in flight; a fire that overlaps a run is skipped.
type Scheduler struct {
	name     string
	run      RunFunc
	timeout  time.Duration
	schedule cron.Schedule
	cron     *cron.Cron
	log      logger.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout bounds each run.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithName labels log lines.
func WithName(name string) Option {
	return func(s *Scheduler) {
		if name != "" {
			s.name = name
		}
	}
}

// New creates a Scheduler. An empty spec disables the schedule; Trigger
// still works.
func New(spec string, run RunFunc, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		name:    "job",
		run:     run,
		timeout: time.Hour,
		cron:    cron.New(),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if spec != "" {
		schedule, err := cron.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, spec, err)
		}
		s.schedule = schedule
		s.cron.Schedule(schedule, cron.FuncJob(s.fire))
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start begins firing on the schedule. Runs use a context detached from ctx
// and cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	if s.schedule != nil {
		s.cron.Start()
		s.log.Info(ctx, "scheduler started",
			logger.String("job", s.name),
			logger.Any("next", s.schedule.Next(time.Now())),
		)
	}
}

// Trigger starts a run in the background. It returns false when a run is
// already in flight.
func (s *Scheduler) Trigger() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute("manual")
	}()
	return true
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Stop halts the schedule, cancels an in-flight run, and waits for it to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cron.Stop()

	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop %s scheduler: %w", s.name, ctx.Err())
	}
}

func (s *Scheduler) fire() {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn(context.Background(), "skipping overlapping run", logger.String("job", s.name))
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	s.execute("schedule")
}

// execute runs once and clears the running flag. The caller must have set it.
func (s *Scheduler) execute(trigger string) {
	defer s.running.Store(false)

	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	s.log.Info(ctx, "run started", logger.String("job", s.name), logger.String("trigger", trigger))
	if err := s.run(ctx); err != nil {
		s.log.Error(ctx, "run failed",
			logger.String("job", s.name),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err),
		)
		return
	}
	s.log.Info(ctx, "run finished", logger.String("job", s.name), logger.Duration("elapsed", time.Since(start)))
}
