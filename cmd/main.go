package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/okian/tastegraph/internal/adapters/cache"
	"github.com/okian/tastegraph/internal/adapters/http/api"
	"github.com/okian/tastegraph/internal/adapters/http/swagger"
	"github.com/okian/tastegraph/internal/adapters/repository"
	"github.com/okian/tastegraph/internal/adapters/scheduler"
	app "github.com/okian/tastegraph/internal/app"
	"github.com/okian/tastegraph/internal/config"
	"github.com/okian/tastegraph/pkg/logger"
	"github.com/okian/tastegraph/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	memoryCacheSweep          = time.Minute
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		logger.Get().Error(context.Background(), "tastegraph exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.InitWith(os.Stdout, logger.Format(cfg.LogFormat)); err != nil {
		return err
	}
	log := logger.Get()
	metrics.Configure(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithCustomLabels(cfg.MetricsLabels),
		metrics.WithHistogramBuckets(cfg.MetricsHistogramBuckets),
	)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	db, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN,
		repository.WithLogger(log.Named("gorm")),
		repository.WithAutoMigrate(cfg.DatabaseAutoMigrate),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := repository.Close(db); err != nil {
			log.Error(context.Background(), "close store failed", logger.Error(err))
		}
	}()

	rt, err := buildCache(ctx, cfg, log)
	if err != nil {
		return err
	}

	svc, jobs, err := buildService(ctx, cfg, db, rt, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error(context.Background(), "close cache failed", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(svc, jobs, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "scheduler shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
	return nil
}

// buildCache selects redis when redis_addr is set and the in-memory backend
// otherwise. An unreachable redis does not block startup: the breaker keeps
// requests on the database until the server answers.
func buildCache(ctx context.Context, cfg *config.Config, log logger.Logger) (*cache.ReadThrough, error) {
	var backend cache.Backend
	if cfg.RedisAddr != "" {
		rb := cache.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rb.Ping(ctx); err != nil {
			log.Warn(ctx, "redis unreachable at startup; reads fall through to the store",
				logger.String("addr", cfg.RedisAddr), logger.Error(err))
		} else {
			log.Info(ctx, "using redis cache", logger.String("addr", cfg.RedisAddr))
		}
		backend = rb
	} else {
		backend = cache.NewMemoryBackend(memoryCacheSweep)
		log.Info(ctx, "using in-memory cache")
	}

	return cache.NewReadThrough(backend,
		cache.WithBreaker(cfg.BreakerFailureThreshold, time.Duration(cfg.BreakerOpenSeconds)*time.Second),
		cache.WithLogger(log.Named("cache")),
	), nil
}

// buildService starts the ranking service and the neighbor scheduler.
func buildService(ctx context.Context, cfg *config.Config, db *gorm.DB, rt *cache.ReadThrough, log logger.Logger) (*app.Service, *scheduler.Scheduler, error) {
	svc := app.New(db,
		app.WithConfig(cfg),
		app.WithCache(rt),
		app.WithLogger(log),
	)
	if err := svc.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("start service: %w", err)
	}

	jobs, err := scheduler.New(cfg.NeighborSchedule,
		func(ctx context.Context) error {
			_, err := svc.ComputeNeighbors(ctx)
			return err
		},
		scheduler.WithName("neighbors"),
		scheduler.WithTimeout(cfg.NeighborRunTimeout()),
		scheduler.WithLogger(log.Named("scheduler")),
	)
	if err != nil {
		_ = svc.Stop(ctx)
		return nil, nil, err
	}
	jobs.Start(ctx)
	return svc, jobs, nil
}

func newHandler(svc *app.Service, jobs *scheduler.Scheduler, log logger.Logger) http.Handler {
	return api.NewServer(svc, jobs,
		api.WithLogger(log.Named("api")),
		api.WithMount(swagger.Register),
	).Routes()
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
