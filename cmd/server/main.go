package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/ListingImport/internal/config"
	"github.com/JonMunkholm/ListingImport/internal/jobs"
	"github.com/JonMunkholm/ListingImport/internal/listing"
	"github.com/JonMunkholm/ListingImport/internal/logging"
	"github.com/JonMunkholm/ListingImport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	closeLog, err := logging.Setup(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		slog.Warn("log file unavailable, logging to stdout only", "file", cfg.Logging.File, "error", err)
	}
	defer closeLog()

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"max_concurrent_jobs", cfg.Import.MaxConcurrentJobs,
		"job_store", cfg.JobStore.Backend,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	jobStore, closeStore, err := openJobStore(ctx, cfg.JobStore)
	if err != nil {
		slog.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	listings := listing.NewPostgresStore(pool)
	manager := jobs.NewManager(jobStore, listings, listings, jobs.Config{
		MaxConcurrentJobs: cfg.Import.MaxConcurrentJobs,
		QueueSize:         cfg.Import.QueueSize,
		BatchSize:         cfg.Import.BatchSize,
		MaxFileSize:       cfg.Import.MaxFileSize,
		MinConfidence:     cfg.Import.MinConfidence,
	})

	// Background work stops when jobCtx is cancelled.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go manager.Run(jobCtx)
	go manager.StartCleanupScheduler(jobCtx, jobs.CleanupConfig{
		Retention: cfg.Import.Retention(),
		Interval:  cfg.Import.CleanupInterval,
	})

	server := web.NewServer(manager, cfg, listings)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests first so no new jobs arrive.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Let running jobs finish their current work, then stop them.
		if stats, err := manager.GetStatistics(shutdownCtx); err == nil && stats.ActiveWorkers > 0 {
			slog.Info("waiting for running jobs", "active", stats.ActiveWorkers)
		}
		if err := manager.Wait(shutdownCtx); err != nil {
			slog.Warn("jobs did not finish in time; marking them failed", "error", err)
		}
		cancelJobs()

		// Interrupted jobs record FAILED on their way out.
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelDrain()
		_ = manager.Wait(drainCtx)
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

// openJobStore picks the job registry backend.
func openJobStore(ctx context.Context, cfg config.JobStoreConfig) (jobs.Store, func(), error) {
	if strings.EqualFold(cfg.Backend, "redis") {
		rs, err := jobs.NewRedisStoreFromURL(ctx, cfg.RedisURL, cfg.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("job store: redis", "prefix", cfg.KeyPrefix)
		return rs, func() { rs.Close() }, nil
	}
	slog.Info("job store: memory")
	return jobs.NewMemoryStore(), func() {}, nil
}
