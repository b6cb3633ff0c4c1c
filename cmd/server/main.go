// Package main is the entrypoint for the batchlingo API server.
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
	"github.com/kiranshivaraju/batchlingo/internal/api"
	"github.com/kiranshivaraju/batchlingo/internal/api/handler"
	mw "github.com/kiranshivaraju/batchlingo/internal/api/middleware"
	"github.com/kiranshivaraju/batchlingo/internal/api/response"
	"github.com/kiranshivaraju/batchlingo/internal/batch"
	"github.com/kiranshivaraju/batchlingo/internal/blob"
	"github.com/kiranshivaraju/batchlingo/internal/cache"
	"github.com/kiranshivaraju/batchlingo/internal/config"
	"github.com/kiranshivaraju/batchlingo/internal/events"
	"github.com/kiranshivaraju/batchlingo/internal/export"
	"github.com/kiranshivaraju/batchlingo/internal/jobs"
	"github.com/kiranshivaraju/batchlingo/internal/llm"
	"github.com/kiranshivaraju/batchlingo/internal/results"
	"github.com/kiranshivaraju/batchlingo/internal/retry"
	"github.com/kiranshivaraju/batchlingo/internal/store"
	"github.com/kiranshivaraju/batchlingo/internal/translate"
	amqp "github.com/rabbitmq/amqp091-go"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"batch_size", cfg.Engine.BatchSize,
		"concurrency", cfg.Engine.Concurrency,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	pgStore := store.NewPostgresStore(pool)

	if cfg.Server.BootstrapKey != "" {
		created, err := bootstrapAdminKey(ctx, pgStore, cfg.Server.BootstrapKey)
		if err != nil {
			return fmt.Errorf("bootstrap admin key: %w", err)
		}
		if created {
			slog.Info("bootstrap admin key installed", "key_prefix", cfg.Server.BootstrapKey[:8])
		}
	}

	// 5. Optional object storage for dataset content
	var (
		blobs   blob.Fetcher
		objects pinger
	)
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := blob.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("create minio client: %w", err)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure minio bucket: %w", err)
		}
		blobs, objects = minioStore, minioStore
		slog.Info("object storage connected", "endpoint", cfg.MinIO.Endpoint, "bucket", cfg.MinIO.Bucket)
	}

	// 6. Optional lifecycle event publishing
	var publisher events.Publisher = events.Noop{}
	if cfg.AMQP.URL != "" {
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		defer conn.Close()

		amqpPub, err := events.NewAMQPPublisher(conn, cfg.AMQP.Exchange)
		if err != nil {
			return fmt.Errorf("create amqp publisher: %w", err)
		}
		defer amqpPub.Close()
		publisher = amqpPub
		slog.Info("amqp publisher ready", "exchange", cfg.AMQP.Exchange)
	}

	// 7. Job engine
	translator := translate.New(llm.NewFromConfig(cfg.LLM), translate.Options{
		Retry: retry.Policy{
			MaxRetries: cfg.Engine.MaxRetries,
			BaseDelay:  cfg.Engine.RetryBaseDelay,
			MaxJitter:  cfg.Engine.RetryMaxJitter,
		},
		Timeout:      cfg.LLM.RequestTimeout,
		CostPerToken: cfg.Engine.CostPerToken,
		Confidence:   cfg.Engine.Confidence,
		Logger:       slog.Default(),
	})
	runner := batch.NewRunner(pgStore, translator, events.Logged(publisher, slog.Default()), batch.Config{
		BatchSize:   cfg.Engine.BatchSize,
		Concurrency: cfg.Engine.Concurrency,
	}, slog.Default())

	controller := jobs.NewController(jobs.Deps{
		Store:  pgStore,
		Runner: runner,
		Blobs:  blobs,
		Cache:  redisCache,
		Events: publisher,
		Logger: slog.Default(),
	})

	watchdog := jobs.NewWatchdog(pgStore, controller.Registry(), cfg.Watchdog, redisCache, publisher, slog.Default())
	go watchdog.Run(ctx)

	accessor := results.NewAccessor(pgStore)
	exporter := export.NewExporter(pgStore, accessor, blobs)

	// 8. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit),

		HealthHandler: healthHandler(pgStore, redisCache, objects),

		GetJobHandler:       handler.NewGetJobHandler(controller, redisCache),
		StartJobHandler:     handler.NewStartJobHandler(controller),
		CancelJobHandler:    handler.NewCancelJobHandler(controller),
		ListResultsHandler:  handler.NewListResultsHandler(controller, accessor),
		ClearResultsHandler: handler.NewClearResultsHandler(controller),
		DownloadHandler:     handler.NewDownloadHandler(exporter),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case err := <-errCh:
		serveErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := controller.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("job shutdown: %w", err)
	}
	if serveErr != nil {
		return serveErr
	}

	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database, cache and, when configured, object storage
// connectivity.
func healthHandler(db, c, objects pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if objects != nil {
			checks["object_storage"] = "ok"
			if err := objects.Ping(r.Context()); err != nil {
				checks["object_storage"] = "degraded"
			}
		}

		for _, v := range checks {
			if v != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}

// bootstrapAdminKey installs raw as an admin key when no operator key exists.
func bootstrapAdminKey(ctx context.Context, ks store.APIKeyStore, raw string) (bool, error) {
	existing, err := ks.ListAPIKeys(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	key, err := handler.NewAPIKey("bootstrap", raw, []string{mw.ScopeAdmin})
	if err != nil {
		return false, err
	}
	return true, ks.CreateAPIKey(ctx, key)
}
