// Package main is the entrypoint for the phrasetracker API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/phrasetracker/internal/ai"
	"github.com/kiranshivaraju/phrasetracker/internal/api"
	"github.com/kiranshivaraju/phrasetracker/internal/api/handler"
	mw "github.com/kiranshivaraju/phrasetracker/internal/api/middleware"
	"github.com/kiranshivaraju/phrasetracker/internal/cache"
	"github.com/kiranshivaraju/phrasetracker/internal/config"
	"github.com/kiranshivaraju/phrasetracker/internal/jobs"
	"github.com/kiranshivaraju/phrasetracker/internal/queue"
	"github.com/kiranshivaraju/phrasetracker/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	streamInterval  = time.Second
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"store", cfg.Database.Backend,
		"queue", cfg.Jobs.QueueBackend,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Store, cache and queue
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	// 3. Classifier
	classifier, err := ai.NewClassifierFromConfig(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI classifier: %w", err)
	}
	slog.Info("AI provider initialized", "provider", classifier.Provider())

	// 4. Job service, recovery and workers
	svc := jobs.NewService(b.store, b.cache, b.queue, classifier, jobOptions(cfg.Jobs))
	if err := svc.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	pool := jobs.NewPool(b.queue, svc, cfg.Jobs.Workers)
	pool.Start(ctx)
	svc.StartJanitor(ctx, cfg.Jobs.JanitorInterval, cfg.Jobs.TTL)

	// 5. HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(cfg, b, svc),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		serveErr = fmt.Errorf("server error: %w", err)
		stop()
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	return errors.Join(serveErr, shutdown(srv, pool, b.queue, cfg.Jobs.ShutdownTimeout))
}

// shutdown stops accepting requests, then gives in-flight jobs until
// jobTimeout to finish before cancelling them.
func shutdown(srv *http.Server, pool *jobs.Pool, q queue.Queue, jobTimeout time.Duration) error {
	httpCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(httpCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	jobCtx, cancelJobs := context.WithTimeout(context.Background(), jobTimeout)
	defer cancelJobs()

	if err := pool.Shutdown(jobCtx); err != nil {
		slog.Warn("job workers did not drain before deadline", "error", err)
	}
	if err := q.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close queue: %w", err))
	}

	if len(errs) == 0 {
		slog.Info("server stopped gracefully")
	}
	return errors.Join(errs...)
}

// backends bundles the storage layers selected by configuration.
type backends struct {
	store   store.Store
	cache   cache.Cache
	queue   queue.Queue
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	switch cfg.Database.Backend {
	case "postgres":
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		b.closers = append(b.closers, pool.Close)

		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			b.close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		b.store = store.NewPostgresStore(pool)
		slog.Info("database connected, migrations applied")
	default:
		b.store = store.NewMemoryStore()
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		b.closers = append(b.closers, func() { _ = rc.Close() })

		if err := rc.Ping(ctx); err != nil {
			b.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		redisCache = rc
		b.cache = rc
		slog.Info("redis connected")
	} else {
		b.cache = cache.NewMemoryCache()
	}

	switch cfg.Jobs.QueueBackend {
	case "redis":
		// config validation guarantees REDIS_URL for this backend
		b.queue = queue.NewRedisQueue(redisCache.Client(), queue.DefaultRedisKey)
	default:
		b.queue = queue.NewMemoryQueue(cfg.Jobs.QueueSize)
	}

	return b, nil
}

// jobOptions maps configuration onto the job service. A configured wave
// delay of zero means no pause, which the service spells as negative.
func jobOptions(cfg config.JobsConfig) jobs.Options {
	delay := cfg.WaveDelay
	if delay == 0 {
		delay = -1
	}
	return jobs.Options{
		ChunkSize:       cfg.ChunkSize,
		WaveSize:        cfg.WaveSize,
		WaveDelay:       delay,
		AssumedDuration: cfg.AssumedDuration,
		TTL:             cfg.TTL,
	}
}

func newRouter(cfg *config.Config, b *backends, svc *jobs.Service) http.Handler {
	auth := mw.NewAuth(cfg.Auth.APIKeys)
	if !auth.Enabled() {
		slog.Warn("API_KEYS is empty, authentication disabled")
	}

	deps := api.Dependencies{
		Auth: auth,

		HealthHandler:   handler.NewHealthHandler(b.store, b.cache),
		SubmitHandler:   handler.NewSubmitHandler(svc),
		StatusHandler:   handler.NewStatusHandler(svc),
		StreamHandler:   handler.NewStreamHandler(svc, streamInterval),
		ExportHandler:   handler.NewExportHandler(svc),
		TrackersHandler: handler.NewTrackersHandler(),
	}
	if cfg.Auth.RateLimitPerMinute > 0 {
		deps.RateLimit = mw.NewRateLimit(b.cache, cfg.Auth.RateLimitPerMinute)
	}

	return api.NewRouter(deps)
}
