// Package service implements the run progress controller, the leaderboard
// and the item ledger on top of a document store.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/okian/cosmic-journey/internal/adapters/mq/worker"
	"github.com/okian/cosmic-journey/internal/adapters/repository"
	"github.com/okian/cosmic-journey/internal/domain/dedupe"
	"github.com/okian/cosmic-journey/internal/domain/progression"
	"github.com/okian/cosmic-journey/internal/domain/ranking"
	"github.com/okian/cosmic-journey/pkg/logger"
	"github.com/okian/cosmic-journey/pkg/metrics"
)

// Service implements the API dependencies.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	rules     *progression.Rules
	deduper   dedupe.Deduper
	writers   *worker.Pool
	scheduler gocron.Scheduler
	now       func() time.Time

	// Configuration
	shardCount         int
	queueSize          int
	dedupeSize         int
	maxConflictRetries int
	defaultPageSize    int
	maxPageSize        int
	statsInterval      time.Duration
	progressionOpts    []progression.Option

	// State
	started   bool
	lastStats storeStats

	logger logger.Logger
}

type storeStats struct {
	totalRuns   int
	healthy     bool
	refreshedAt time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithShardCount sets the number of single-writer mutation shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithQueueSize sets the per-shard mutation queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many progress request ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxConflictRetries bounds how often a read-modify-write is retried
// after a revision conflict.
func WithMaxConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxConflictRetries = n
		}
	}
}

// WithPageSizes sets the leaderboard default and maximum page size.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(s *Service) {
		if defaultSize > 0 && maxSize >= defaultSize {
			s.defaultPageSize = defaultSize
			s.maxPageSize = maxSize
		}
	}
}

// WithProgression sets options for the run state machine.
func WithProgression(opts ...progression.Option) Option {
	return func(s *Service) {
		s.progressionOpts = append(s.progressionOpts, opts...)
	}
}

// WithStatsRefreshInterval sets how often store gauges are refreshed.
func WithStatsRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.statsInterval = d
		}
	}
}

// WithClock sets the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
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

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:              store,
		now:                time.Now,
		shardCount:         runtime.NumCPU(),
		queueSize:          1024,
		dedupeSize:         100_000,
		maxConflictRetries: 3,
		defaultPageSize:    ranking.DefaultPageSize,
		maxPageSize:        ranking.MaxPageSize,
		statsInterval:      10 * time.Second,
		logger:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rules = progression.New(s.progressionOpts...)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.writers = worker.NewPool(
		worker.WithShards(s.shardCount),
		worker.WithQueueSize(s.queueSize),
		worker.WithPoolLogger(s.logger.Named("writers")),
	)
	return s
}

// Start launches the mutation writers and the stats refresh job. The
// writers are detached from ctx's cancellation and run until Stop, so queued
// mutations drain on shutdown instead of being dropped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.writers.Start(context.WithoutCancel(ctx))

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.statsInterval),
		gocron.NewTask(func() { s.refreshStats(context.Background()) }),
		gocron.WithName("stats-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule stats refresh: %w", err)
	}
	sched.Start()
	s.scheduler = sched
	s.started = true

	s.logger.Info(ctx, "service started",
		logger.Int("shards", s.writers.Shards()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("maxLevel", s.rules.MaxLevel()),
		logger.Duration("statsInterval", s.statsInterval),
	)
	return nil
}

// Stop drains pending mutations and stops background jobs. The store is
// owned by the caller and is not closed. A stopped Service cannot be
// restarted.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	sched := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	// The stats job takes s.mu, so the scheduler is stopped without it.
	var firstErr error
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			firstErr = fmt.Errorf("scheduler shutdown: %w", err)
		}
	}
	if err := s.writers.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	s.logger.Info(ctx, "service stopped")
	return firstErr
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return translate("ping", s.store.Ping(ctx))
}

func (s *Service) refreshStats(ctx context.Context) {
	res, err := s.store.GetList(ctx, CollectionRuns, 1, 1, repository.ListOptions{})
	st := storeStats{healthy: err == nil, refreshedAt: s.now()}
	if err != nil {
		s.logger.Warn(ctx, "stats refresh failed", logger.Error(err))
	} else {
		st.totalRuns = res.TotalItems
		metrics.UpdateRunsTotal(res.TotalItems)
	}
	metrics.UpdateIdempotencyKeys(s.deduper.Size())
	metrics.UpdateMutationQueueDepth(s.writers.Len(ctx))

	s.mu.Lock()
	s.lastStats = st
	s.mu.Unlock()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":            s.started,
		"shards":             s.writers.Shards(),
		"queueSize":          s.queueSize,
		"dedupeSize":         s.dedupeSize,
		"maxConflictRetries": s.maxConflictRetries,
		"maxLevel":           s.rules.MaxLevel(),
		"queueLength":        s.writers.Len(context.Background()),
		"idempotencyKeys":    s.deduper.Size(),
	}
	if !s.lastStats.refreshedAt.IsZero() {
		stats["totalRuns"] = s.lastStats.totalRuns
		stats["storeHealthy"] = s.lastStats.healthy
		stats["refreshedAt"] = s.lastStats.refreshedAt
	}
	if counters, err := metrics.Snapshot(); err == nil {
		stats["counters"] = counters
	}
	return stats
}

// RefreshStats runs the stats job immediately.
func (s *Service) RefreshStats(ctx context.Context) { s.refreshStats(ctx) }
