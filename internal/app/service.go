// Package service wires the ranking engine together and exposes the
// operations used by the HTTP API and the scheduler.
package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/okian/tastegraph/internal/adapters/cache"
	eventqueue "github.com/okian/tastegraph/internal/adapters/mq/queue"
	workerpool "github.com/okian/tastegraph/internal/adapters/mq/worker"
	"github.com/okian/tastegraph/internal/adapters/repository"
	"github.com/okian/tastegraph/internal/config"
	"github.com/okian/tastegraph/internal/domain/affinity"
	"github.com/okian/tastegraph/internal/domain/chart"
	"github.com/okian/tastegraph/internal/domain/dedupe"
	"github.com/okian/tastegraph/internal/domain/feed"
	"github.com/okian/tastegraph/internal/domain/model"
	"github.com/okian/tastegraph/internal/domain/neighbors"
	"github.com/okian/tastegraph/internal/domain/rating"
	"github.com/okian/tastegraph/internal/domain/similarity"
	"github.com/okian/tastegraph/pkg/logger"
	"github.com/okian/tastegraph/pkg/metrics"
)

const (
	defaultPageLimit   = 20
	memoryCacheSweep   = time.Minute
	topRatedKeyPattern = "catalog:top-rated:limit:"
)

// Service owns the engine's components.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config

	media        *repository.MediaRepo
	affinities   *repository.AffinityRepo
	edges        *repository.NeighborRepo
	catalog      *repository.CatalogRepo
	interactions *repository.InteractionRepo

	handler *affinity.Handler
	job     *neighbors.Job
	feed    *feed.Query
	chart   *chart.Builder
	cache   *cache.ReadThrough

	deduper      dedupe.Deduper
	eventQueue   *eventqueue.InMemoryQueue
	workerPool   *workerpool.Pool
	eventHandler workerpool.Handler

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New builds a Service over db.
func New(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		cfg:    config.New(),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.NewReadThrough(cache.NewMemoryBackend(memoryCacheSweep), cache.WithLogger(s.logger.Named("cache")))
	}
	cfg := s.cfg

	s.media = repository.NewMediaRepo(db)
	s.affinities = repository.NewAffinityRepo(db)
	s.edges = repository.NewNeighborRepo(db)
	s.catalog = repository.NewCatalogRepo(db, cfg.DefaultGlobalScore)
	s.interactions = repository.NewInteractionRepo(db)

	calc := rating.NewCalculator(
		rating.WithKFactors(cfg.GlobalKFactor, cfg.DuelKFactor),
		rating.WithDislikeScore(cfg.DislikeScore),
		rating.WithSentimentBonus(cfg.BonusBanger, cfg.BonusGood),
	)
	s.handler = affinity.NewHandler(repository.NewTransactor(db), s.media, s.affinities,
		affinity.WithCalculator(calc),
		affinity.WithLogger(s.logger.Named("affinity")),
	)
	if s.eventHandler == nil {
		s.eventHandler = s.handler
	}
	s.job = neighbors.NewJob(s.affinities, s.edges, similarity.NewCalculator(cfg.NeutralScore),
		neighbors.WithMinShared(cfg.NeighborMinShared),
		neighbors.WithMinScore(cfg.NeighborMinScore),
		neighbors.WithTopK(cfg.NeighborTopK),
		neighbors.WithWorkers(cfg.NeighborWorkers),
		neighbors.WithPageSize(cfg.NeighborPageSize),
		neighbors.WithLogger(s.logger.Named("neighbors")),
	)
	s.feed = feed.NewQuery(s.edges, s.catalog, cfg.MaxFeedLimit, s.logger.Named("feed"))
	s.chart = chart.NewBuilder(s.interactions, s.catalog,
		chart.WithKFactor(cfg.ChartKFactor),
		chart.WithSeeds(cfg.ChartSeedBanger, cfg.ChartSeedLike, cfg.ChartSeedWishlist),
		chart.WithDefaultScore(cfg.ChartDefaultScore),
		chart.WithDuelWindow(cfg.ChartDuelWindow()),
	)
	return s
}

// Start creates the event queue and starts the worker pool. The pool outlives
// ctx cancellation; use Stop to end it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	deduper := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.deduper = deduper
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.EventQueueSize))
	s.workerPool = workerpool.NewPool(s.cfg.WorkerCount, s.eventQueue, s.eventHandler,
		workerpool.WithRetry(s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay()),
		workerpool.WithRelease(func(eventID string) {
			deduper.Unrecord(context.Background(), eventID)
		}),
		workerpool.WithLogger(s.logger.Named("worker")),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queue_size", s.cfg.EventQueueSize),
		logger.Int("dedupe_size", s.cfg.DedupeSize),
	)
	return nil
}

// Stop drains queued events until ctx expires, then stops the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping ranking service")

	err := s.workerPool.Shutdown(ctx)
	s.cancel()
	s.started = false

	if err != nil {
		return fmt.Errorf("stop service: %w", err)
	}
	s.logger.Info(ctx, "ranking service stopped")
	return nil
}

// Close releases the cache.
func (s *Service) Close() error {
	return s.cache.Close()
}

// UpdateAffinity applies ev synchronously.
func (s *Service) UpdateAffinity(ctx context.Context, ev model.TasteEvent) error {
	return s.handler.Handle(ctx, ev)
}

// Submit queues ev for asynchronous handling. An empty eventID is replaced by
// a random one, which disables deduplication for that call. duplicate is true
// when eventID was already accepted. ErrBackpressure means the event was not
// accepted and may be resubmitted with the same id.
func (s *Service) Submit(ctx context.Context, eventID string, ev model.TasteEvent) (bool, error) {
	if ev == nil {
		return false, fmt.Errorf("%w: missing event", model.ErrInvalidEvent)
	}
	if err := ev.Validate(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, ErrNotStarted
	}

	if eventID == "" {
		eventID = uuid.NewString()
	}
	if s.deduper.SeenAndRecord(ctx, eventID) {
		s.logger.Debug(ctx, "duplicate event", logger.String("event_id", eventID))
		return true, nil
	}

	ok := s.eventQueue.Enqueue(ctx, eventqueue.Message{EventID: eventID, Event: ev})
	if !ok {
		s.deduper.Unrecord(ctx, eventID)
		return false, ErrBackpressure
	}
	return false, nil
}

// ComputeNeighbors runs the neighbor job once.
func (s *Service) ComputeNeighbors(ctx context.Context) (neighbors.Report, error) {
	return s.job.Run(ctx)
}

// PersonalizedFeed returns userID's feed page.
func (s *Service) PersonalizedFeed(ctx context.Context, userID string, limit, offset int) ([]model.RankedMedia, error) {
	return s.feed.Get(ctx, userID, limit, offset)
}

// UserRankingChart returns userID's personal chart.
func (s *Service) UserRankingChart(ctx context.Context, userID string, limit int) ([]model.RankedMedia, error) {
	limit, err := pageLimit(limit, s.cfg.MaxChartLimit)
	if err != nil {
		return nil, err
	}
	return s.chart.Build(ctx, userID, limit)
}

// TopRated returns the global leaderboard, served from the read-through cache.
func (s *Service) TopRated(ctx context.Context, limit int) ([]model.RankedMedia, error) {
	limit, err := pageLimit(limit, s.cfg.MaxTopLimit)
	if err != nil {
		return nil, err
	}
	key := topRatedKeyPattern + strconv.Itoa(limit)
	return cache.GetOrCompute(ctx, s.cache, key, s.cfg.CacheTTL(), func(ctx context.Context) ([]model.RankedMedia, error) {
		return s.media.TopRated(ctx, limit)
	})
}

// RecordInteraction appends to the interaction log.
func (s *Service) RecordInteraction(ctx context.Context, in model.Interaction) error {
	if in.UserID == "" || in.MediaID == "" || in.Action == "" {
		return fmt.Errorf("%w: interaction needs user, media and action", model.ErrInvalidEvent)
	}
	if in.Sentiment != "" && !in.Sentiment.Valid() {
		return fmt.Errorf("%w: sentiment %q", model.ErrInvalidEvent, in.Sentiment)
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	return s.interactions.Record(ctx, in)
}

// UpsertMedia creates or updates a catalog entry. New media start at the
// default global score.
func (s *Service) UpsertMedia(ctx context.Context, info model.MediaInfo) error {
	if info.ID == "" {
		return fmt.Errorf("%w: media id is required", model.ErrInvalidEvent)
	}
	return s.catalog.Upsert(ctx, info)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := s.job.LastReport()
	stats := map[string]any{
		"started":         s.started,
		"workerCount":     s.cfg.WorkerCount,
		"queueCapacity":   s.cfg.EventQueueSize,
		"neighborRunning": s.job.Running(),
		"lastNeighborRun": map[string]any{
			"usersScanned":   report.UsersScanned,
			"usersWithEdges": report.UsersWithEdges,
			"usersFailed":    report.UsersFailed,
			"edgesWritten":   report.EdgesWritten,
			"durationMs":     report.Duration.Milliseconds(),
		},
	}

	if s.started {
		stats["queueLength"] = s.eventQueue.Len(ctx)
		stats["dedupeSize"] = s.deduper.Size()
		stats["eventsProcessed"] = s.workerPool.Processed()
	}
	if n, err := s.media.Count(ctx); err == nil {
		stats["totalMedia"] = n
	} else {
		s.logger.Warn(ctx, "count media failed", logger.Error(err))
	}
	if n, err := s.affinities.Count(ctx); err == nil {
		stats["totalAffinities"] = n
	} else {
		s.logger.Warn(ctx, "count affinities failed", logger.Error(err))
	}

	metrics.UpdateWorkerCount(s.cfg.WorkerCount)
	return stats
}

func pageLimit(limit, maxLimit int) (int, error) {
	switch {
	case limit == 0:
		return min(defaultPageLimit, maxLimit), nil
	case limit < 0 || limit > maxLimit:
		return 0, fmt.Errorf("%w: %d (max %d)", ErrInvalidLimit, limit, maxLimit)
	}
	return limit, nil
}
