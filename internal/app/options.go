package service

import (
	"github.com/okian/tastegraph/internal/adapters/cache"
	workerpool "github.com/okian/tastegraph/internal/adapters/mq/worker"
	"github.com/okian/tastegraph/internal/config"
	"github.com/okian/tastegraph/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCache sets the read-through cache used for catalog reads. Without it an
// in-memory cache is used.
func WithCache(rt *cache.ReadThrough) Option {
	return func(s *Service) {
		if rt != nil {
			s.cache = rt
		}
	}
}

// WithEventHandler replaces the handler workers apply queued events with.
// UpdateAffinity still uses the affinity handler.
func WithEventHandler(h workerpool.Handler) Option {
	return func(s *Service) {
		if h != nil {
			s.eventHandler = h
		}
	}
}
