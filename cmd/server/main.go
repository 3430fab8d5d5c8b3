package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/equipstat/internal/blob"
	"github.com/JonMunkholm/equipstat/internal/config"
	"github.com/JonMunkholm/equipstat/internal/core"
	"github.com/JonMunkholm/equipstat/internal/logging"
	"github.com/JonMunkholm/equipstat/internal/store"
	"github.com/JonMunkholm/equipstat/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
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
		logging.Fatal("failed to load configuration", "error", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"storage_backend", cfg.Storage.Backend,
		"retention_max_datasets", cfg.Retention.MaxDatasets,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal("server exited with error", "error", err)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	pool, err := connectDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.RunMigrations {
		if err := store.Migrate(ctx, slog.Default(), pool); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	blobs, err := openBlobStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	aliases := core.DefaultAliases()
	if cfg.Schema.AliasFile != "" {
		aliases, err = core.LoadAliasTable(cfg.Schema.AliasFile)
		if err != nil {
			return err
		}
		slog.Info("loaded header aliases", "file", cfg.Schema.AliasFile)
	}

	service, err := core.NewService(store.NewPostgres(pool), blobs, core.Options{
		Aliases:       aliases,
		RetentionCap:  cfg.Retention.MaxDatasets,
		UploadTimeout: cfg.Upload.Timeout,
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
	})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	server, err := web.NewServer(service, cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		service.StartOrphanSweeper(gctx, core.SweepConfig{
			Interval:  cfg.Retention.SweepInterval,
			BatchSize: cfg.Retention.SweepBatchSize,
		})
		return nil
	})

	g.Go(func() error {
		if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.UploadLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
			if err := service.WaitForUploads(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			}
		}

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func connectDB(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

func openBlobStore(ctx context.Context, cfg config.StorageConfig) (core.BlobStore, error) {
	switch cfg.Backend {
	case "s3":
		s3cfg := cfg.S3
		st, err := blob.NewS3(ctx, blob.S3Options{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			Prefix:          s3cfg.Prefix,
			UsePathStyle:    s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 storage: %w", err)
		}
		slog.Info("using s3 storage", "bucket", s3cfg.Bucket, "endpoint", s3cfg.Endpoint)
		return st, nil
	default:
		st, err := blob.NewLocal(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("open local storage: %w", err)
		}
		slog.Info("using local storage", "dir", cfg.LocalDir)
		return st, nil
	}
}
