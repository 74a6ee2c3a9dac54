package worker

import (
	"time"

	"github.com/okian/tastegraph/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRetry bounds attempts for transient failures. The delay before the
// second attempt is baseDelay and doubles after that.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(w *InMemoryWorker) {
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			w.baseDelay = baseDelay
		}
	}
}

// WithRelease sets a callback invoked with the event id when the worker gives
// up on an event for a transient reason, so a redelivery can be accepted.
// Permanent drops do not call it.
func WithRelease(fn func(eventID string)) Option {
	return func(w *InMemoryWorker) {
		if fn != nil {
			w.release = fn
		}
	}
}
