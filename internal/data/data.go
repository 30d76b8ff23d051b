package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/file-catalog/internal/conf"
	"github.com/lk2023060901/file-catalog/internal/pkg/database"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	pkgminio "github.com/lk2023060901/file-catalog/internal/pkg/minio"
	pkgredis "github.com/lk2023060901/file-catalog/internal/pkg/redis"
	pkgs3 "github.com/lk2023060901/file-catalog/internal/pkg/s3"
	"github.com/lk2023060901/file-catalog/internal/pkg/workerpool"
	"go.uber.org/zap"
)

// Data holds the infrastructure clients selected by the configured drivers.
// Clients for drivers that are not selected stay nil.
type Data struct {
	DB     *database.DB
	Redis  *pkgredis.Client
	MinIO  *pkgminio.Client
	S3     *pkgs3.Client
	Pool   *workerpool.Pool
	Logger *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	d := &Data{Logger: log}
	var closers []func()
	cleanup := func() {
		log.Info("cleaning up data resources")
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Data, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if config.Backend.Driver == conf.BackendPostgres {
		db, err := database.New(&config.Database, log)
		if err != nil {
			return fail(fmt.Errorf("failed to init database: %w", err))
		}
		d.DB = db
		closers = append(closers, func() {
			if err := db.Close(); err != nil {
				log.Warn("failed to close database", zap.Error(err))
			}
		})
	}

	if config.Cache.NeedsRedis() {
		rdb, err := pkgredis.New(&config.Redis, log)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		d.Redis = rdb
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				log.Warn("failed to close redis", zap.Error(err))
			}
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch config.Storage.Driver {
	case conf.StorageS3:
		client, err := pkgs3.NewClient(&config.Storage.S3, log.Logger)
		if err != nil {
			return fail(fmt.Errorf("failed to init s3: %w", err))
		}
		// a missing bucket is not fatal, downloads will report it per request
		if err := client.Ping(ctx); err != nil {
			log.Warn("s3 bucket not reachable", zap.String("bucket", client.Bucket()), zap.Error(err))
		}
		d.S3 = client
	default:
		client, err := pkgminio.NewClient(&config.Storage.MinIO, log.Logger)
		if err != nil {
			return fail(fmt.Errorf("failed to init minio: %w", err))
		}
		if err := client.Ping(ctx); err != nil {
			log.Warn("minio bucket not reachable", zap.String("bucket", client.Bucket()), zap.Error(err))
		}
		d.MinIO = client
		closers = append(closers, func() { _ = client.Close() })
	}

	pool, err := workerpool.New(&config.WorkerPool, log.Logger)
	if err != nil {
		return fail(fmt.Errorf("failed to init worker pool: %w", err))
	}
	d.Pool = pool
	closers = append(closers, func() {
		pool.Shutdown()
		stats := pool.Stats()
		log.Info("worker pool stopped",
			zap.Int64("submitted", stats.Submitted),
			zap.Int64("completed", stats.Completed),
			zap.Int64("failed", stats.Failed),
		)
	})

	log.Info("data layer initialized",
		zap.String("backend", config.Backend.Driver),
		zap.String("storage", config.Storage.Driver),
		zap.String("cache", config.Cache.Driver),
		zap.String("bus", config.Cache.BusDriver()),
	)
	return d, cleanup, nil
}
