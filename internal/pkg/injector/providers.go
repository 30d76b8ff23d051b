package injector

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
	catalogdata "github.com/lk2023060901/file-catalog/internal/catalog/data"
	"github.com/lk2023060901/file-catalog/internal/catalog/service"
	"github.com/lk2023060901/file-catalog/internal/conf"
	"github.com/lk2023060901/file-catalog/internal/data"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	"github.com/lk2023060901/file-catalog/internal/pkg/sse"
	"github.com/lk2023060901/file-catalog/internal/server"
)

// Provider functions for dependencies that depend on the configured drivers

func provideCatalogOptions(config *conf.Config) biz.Options {
	id := config.Catalog.InstanceID
	if id == "" {
		id = uuid.NewString()
	}
	return biz.Options{
		InstanceID:    id,
		FetchTimeout:  config.Catalog.FetchTimeout,
		DeleteTimeout: config.Catalog.DeleteTimeout,
		SpoolDir:      config.Catalog.SpoolDir,
		BatchLimit:    config.Catalog.BatchLimit,
	}
}

func provideCatalogRepo(config *conf.Config, d *data.Data, log *logger.Logger) (biz.CatalogRepo, error) {
	switch config.Backend.Driver {
	case conf.BackendHTTP:
		return catalogdata.NewRemoteRepo(config.Backend.HTTP, log)
	case conf.BackendPostgres:
		repo := catalogdata.NewEntryRepo(d.DB, log)
		if config.Database.AutoMigrate {
			if err := repo.Migrate(); err != nil {
				return nil, fmt.Errorf("failed to migrate catalog: %w", err)
			}
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown backend driver %q", config.Backend.Driver)
	}
}

func provideBlobStore(d *data.Data, log *logger.Logger) biz.BlobStore {
	if d.S3 != nil {
		return catalogdata.NewS3BlobStore(d.S3, log)
	}
	return catalogdata.NewMinIOBlobStore(d.MinIO, log)
}

func provideResultCache(config *conf.Config, d *data.Data) biz.ResultCache {
	if config.Cache.Driver == conf.CacheRedis {
		return catalogdata.NewRedisCache(d.Redis, config.Cache.Prefix, config.Cache.TTL)
	}
	return biz.NewMemoryCache(0)
}

func provideInvalidationBus(config *conf.Config, d *data.Data, opts biz.Options, log *logger.Logger) biz.InvalidationBus {
	if config.Cache.BusDriver() == conf.BusRedis {
		return catalogdata.NewRedisBus(d.Redis, config.Cache.Channel, opts.InstanceID, log)
	}
	return biz.NewLocalBus()
}

func provideRelay(bus biz.InvalidationBus) relay {
	if r, ok := bus.(*catalogdata.RedisBus); ok {
		return r
	}
	return nil
}

func provideCatalogUseCase(
	repo biz.CatalogRepo,
	blobs biz.BlobStore,
	cache biz.ResultCache,
	bus biz.InvalidationBus,
	d *data.Data,
	opts biz.Options,
	log *logger.Logger,
) (*biz.CatalogUseCase, func()) {
	uc := biz.NewCatalogUseCase(repo, blobs, cache, bus, d.Pool, log, opts)
	return uc, uc.Close
}

func provideViewRegistry(uc *biz.CatalogUseCase, config *conf.Config, log *logger.Logger) *biz.ViewRegistry {
	return biz.NewViewRegistry(uc, config.Catalog.ViewIdle, log)
}

func provideHub() (*sse.Hub, func()) {
	hub := sse.NewHub()
	return hub, hub.Close
}

func provideCatalogService(
	uc *biz.CatalogUseCase,
	views *biz.ViewRegistry,
	hub *sse.Hub,
	config *conf.Config,
	log *logger.Logger,
) (*service.CatalogService, func(), error) {
	loc, err := config.Catalog.Location()
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewCatalogService(uc, views, hub, service.Options{
		BasePath:     "/api/v1",
		Location:     loc,
		SSEBuffer:    config.Catalog.SSEBuffer,
		SSEHeartbeat: config.Catalog.SSEHeartbeat,
	}, log)
	return svc, svc.Close, nil
}

func provideHealthChecks(d *data.Data) server.HealthChecks {
	checks := server.HealthChecks{}
	if d.DB != nil {
		checks["database"] = d.DB.HealthCheck
	}
	if d.Redis != nil {
		checks["redis"] = d.Redis.Ping
	}
	if d.MinIO != nil {
		checks["storage"] = d.MinIO.Ping
	}
	if d.S3 != nil {
		checks["storage"] = d.S3.Ping
	}
	return checks
}
