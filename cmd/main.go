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

	"golang.org/x/sync/errgroup"

	"github.com/okian/cosmic-journey/internal/adapters/http/api"
	"github.com/okian/cosmic-journey/internal/adapters/http/swagger"
	"github.com/okian/cosmic-journey/internal/adapters/repository"
	app "github.com/okian/cosmic-journey/internal/app"
	"github.com/okian/cosmic-journey/internal/config"
	"github.com/okian/cosmic-journey/internal/domain/progression"
	"github.com/okian/cosmic-journey/pkg/logger"
	"github.com/okian/cosmic-journey/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "cosmic-journey:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.WithFormat(logger.Format(cfg.LogFormat))); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn(ctx, "closing store failed", logger.Error(err))
		}
	}()
	log.Info(ctx, "document store ready", logger.String("driver", cfg.Store.Driver))

	svc := newService(cfg, store, log)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := svc.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("service stop: %w", err))
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	log.Info(context.Background(), "server stopped")
	return err
}

// openStore builds the configured document store driver behind the metrics
// decorator.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	opts := []repository.Option{repository.WithTimeout(cfg.StoreTimeout())}
	var (
		store repository.Store
		err   error
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		store = repository.NewMemoryStore(opts...)
	case config.DriverSQLite:
		store, err = repository.OpenSQLite(ctx, cfg.Store.SQLitePath, opts...)
	case config.DriverPocketBase:
		opts = append(opts, repository.WithToken(cfg.Store.PocketBaseToken))
		store, err = repository.NewPocketBaseStore(cfg.Store.PocketBaseURL, opts...)
	default:
		err = fmt.Errorf("%w: unknown store driver %q", config.ErrInvalidConfig, cfg.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return repository.Instrument(store), nil
}

func newService(cfg *config.Config, store repository.Store, log logger.Logger) *app.Service {
	return app.New(store,
		app.WithLogger(log.Named("service")),
		app.WithShardCount(cfg.Mutations.Shards),
		app.WithQueueSize(cfg.Mutations.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxConflictRetries(cfg.Store.MaxConflictRetries),
		app.WithPageSizes(cfg.Leaderboard.DefaultPageSize, cfg.Leaderboard.MaxPageSize),
		app.WithStatsRefreshInterval(cfg.StatsRefreshInterval()),
		app.WithProgression(
			progression.WithLegacyOnePercentRollover(cfg.Progression.LegacyOnePercentRollover),
			progression.WithMaxLevel(cfg.Progression.MaxLevel),
		),
	)
}

func newMux(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) *http.ServeMux {
	auth := api.NewAuthenticator(
		api.WithJWTSecret(cfg.Auth.JWTSecret),
		api.WithGatewayHeader(cfg.Auth.TrustGatewayHeader),
		api.WithLoginRedirect(cfg.Auth.LoginRedirect),
		api.WithAuthLogger(log.Named("auth")),
	)
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, auth, log.Named("api")).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater refreshes process gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
