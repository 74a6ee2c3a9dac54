// Package cache implements a fail-open read-through cache in front of
// expensive reads. Backend failures never reach callers.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/okian/tastegraph/pkg/logger"
	"github.com/okian/tastegraph/pkg/metrics"
)

// Backend is a byte-oriented key/value store with per-key TTL.
type Backend interface {
	// Get returns the value and true on a hit, false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

const breakerName = "cache"

// ReadThrough guards a Backend with a circuit breaker.
type ReadThrough struct {
	backend Backend
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     logger.Logger
	timeout time.Duration
}

// Option applies a configuration option to ReadThrough.
type Option func(*settings)

type settings struct {
	failureThreshold uint32
	openTimeout      time.Duration
	callTimeout      time.Duration
	log              logger.Logger
}

// WithBreaker sets the consecutive failures that open the breaker and how long it stays open.
func WithBreaker(failures int, open time.Duration) Option {
	return func(s *settings) {
		if failures > 0 {
			s.failureThreshold = uint32(failures)
		}
		if open > 0 {
			s.openTimeout = open
		}
	}
}

// WithCallTimeout bounds each backend call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// NewReadThrough wraps backend.
func NewReadThrough(backend Backend, opts ...Option) *ReadThrough {
	s := &settings{
		failureThreshold: 5,
		openTimeout:      30 * time.Second,
		callTimeout:      250 * time.Millisecond,
		log:              logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	metrics.UpdateBreakerState(breakerName, int(gobreaker.StateClosed))
	rt := &ReadThrough{backend: backend, log: s.log, timeout: s.callTimeout}
	rt.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     s.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			rt.log.Warn(context.Background(), "cache breaker state change",
				logger.String("from", from.String()), logger.String("to", to.String()))
			metrics.UpdateBreakerState(name, int(to))
		},
	})
	return rt
}

// Close releases the backend.
func (rt *ReadThrough) Close() error {
	return rt.backend.Close()
}

// lookup returns the cached bytes; any failure is reported as a miss.
func (rt *ReadThrough) lookup(ctx context.Context, key string) ([]byte, bool) {
	var hit bool
	val, err := rt.breaker.Execute(func() ([]byte, error) {
		cctx, cancel := context.WithTimeout(ctx, rt.timeout)
		defer cancel()
		v, ok, err := rt.backend.Get(cctx, key)
		hit = ok
		return v, err
	})
	switch {
	case err != nil:
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			rt.log.Warn(ctx, "cache get failed", logger.String("key", key), logger.Error(err))
		}
		metrics.RecordCacheResult("error")
		return nil, false
	case !hit:
		metrics.RecordCacheResult("miss")
		return nil, false
	}
	metrics.RecordCacheResult("hit")
	return val, true
}

func (rt *ReadThrough) store(ctx context.Context, key string, val []byte, ttl time.Duration) {
	_, err := rt.breaker.Execute(func() ([]byte, error) {
		cctx, cancel := context.WithTimeout(ctx, rt.timeout)
		defer cancel()
		return nil, rt.backend.Set(cctx, key, val, ttl)
	})
	if err != nil {
		metrics.RecordCacheWriteError()
		rt.log.Warn(ctx, "cache set failed", logger.String("key", key), logger.Error(err))
	}
}

// GetOrCompute returns the cached value for key, or calls fetch and caches its
// result for ttl. Cache failures fall through to fetch. Only fetch errors are
// returned.
func GetOrCompute[T any](ctx context.Context, rt *ReadThrough, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if raw, ok := rt.lookup(ctx, key); ok {
		var v T
		err := json.Unmarshal(raw, &v)
		if err == nil {
			return v, nil
		}
		rt.log.Warn(ctx, "cache decode failed", logger.String("key", key), logger.Error(err))
	}

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		rt.log.Warn(ctx, "cache encode failed", logger.String("key", key), logger.Error(err))
		return v, nil
	}
	rt.store(ctx, key, raw, ttl)
	return v, nil
}
