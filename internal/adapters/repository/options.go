package repository

import (
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/tastegraph/pkg/logger"
)

type openOptions struct {
	maxOpenConns  int
	maxIdleConns  int
	slowThreshold time.Duration
	logLevel      gormlogger.LogLevel
	log           logger.Logger
	migrate       bool
}

// Option applies a configuration option to Open.
type Option func(*openOptions)

// WithMaxOpenConns bounds the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *openOptions) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithMaxIdleConns sets the idle pool size.
func WithMaxIdleConns(n int) Option {
	return func(o *openOptions) {
		if n > 0 {
			o.maxIdleConns = n
		}
	}
}

// WithSlowThreshold sets the duration above which queries are logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *openOptions) {
		if d > 0 {
			o.slowThreshold = d
		}
	}
}

// WithLogger routes gorm logs to l.
func WithLogger(l logger.Logger) Option {
	return func(o *openOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithSilentSQL disables query logging.
func WithSilentSQL() Option {
	return func(o *openOptions) {
		o.logLevel = gormlogger.Silent
	}
}

// WithAutoMigrate creates or updates the engine tables on open.
func WithAutoMigrate(enabled bool) Option {
	return func(o *openOptions) {
		o.migrate = enabled
	}
}
