package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lk2023060901/file-catalog/internal/catalog/data"
	"github.com/lk2023060901/file-catalog/internal/pkg/database"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	pkgminio "github.com/lk2023060901/file-catalog/internal/pkg/minio"
	pkgredis "github.com/lk2023060901/file-catalog/internal/pkg/redis"
	pkgs3 "github.com/lk2023060901/file-catalog/internal/pkg/s3"
	"github.com/lk2023060901/file-catalog/internal/pkg/workerpool"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 CATALOG_CACHE_DRIVER
const EnvPrefix = "CATALOG"

const (
	BackendPostgres = "postgres"
	BackendHTTP     = "http"

	StorageMinIO = "minio"
	StorageS3    = "s3"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	BusLocal = "local"
	BusRedis = "redis"
)

type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   database.Config   `mapstructure:"database"`
	Redis      pkgredis.Config   `mapstructure:"redis"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Backend    BackendConfig     `mapstructure:"backend"`
	Cache      CacheConfig       `mapstructure:"cache"`
	Catalog    CatalogConfig     `mapstructure:"catalog"`
	WorkerPool workerpool.Config `mapstructure:"workerpool"`
	Log        logger.Config     `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// StorageConfig 文件内容所在的对象存储
type StorageConfig struct {
	Driver string          `mapstructure:"driver"` // minio, s3
	MinIO  pkgminio.Config `mapstructure:"minio"`
	S3     pkgs3.Config    `mapstructure:"s3"`
}

// BackendConfig 目录数据来源
type BackendConfig struct {
	Driver string            `mapstructure:"driver"` // postgres, http
	HTTP   data.RemoteConfig `mapstructure:"http"`
}

// CacheConfig 查询结果缓存，redis 模式下多实例共享 generation
//
// Bus 选择变更通知通道。memory 缓存配合 redis 通道时，各实例保留本地缓存，
// 由其他实例的删除通知推进本地 generation。
type CacheConfig struct {
	Driver  string        `mapstructure:"driver"` // memory, redis
	Bus     string        `mapstructure:"bus"`    // local, redis；为空时跟随 driver
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
	Channel string        `mapstructure:"channel"`
}

// BusDriver 生效的通知通道
func (c *CacheConfig) BusDriver() string {
	if c.Bus != "" {
		return c.Bus
	}
	if c.Driver == CacheRedis {
		return BusRedis
	}
	return BusLocal
}

// NeedsRedis 缓存或通知通道是否使用 redis
func (c *CacheConfig) NeedsRedis() bool {
	return c.Driver == CacheRedis || c.BusDriver() == BusRedis
}

type CatalogConfig struct {
	InstanceID    string        `mapstructure:"instance_id"`
	Timezone      string        `mapstructure:"timezone"`
	SpoolDir      string        `mapstructure:"spool_dir"`
	BatchLimit    int           `mapstructure:"batch_limit"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	DeleteTimeout time.Duration `mapstructure:"delete_timeout"`
	ViewIdle      time.Duration `mapstructure:"view_idle"`
	SSEBuffer     int           `mapstructure:"sse_buffer"`
	SSEHeartbeat  time.Duration `mapstructure:"sse_heartbeat"`
}

// Location 解析日期过滤条件使用的时区
func (c *CatalogConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// LoadConfig reads path, then lets .env and CATALOG_* variables override it.
// An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Storage.MinIO.SetDefaults()
	config.Storage.S3.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override it without a config file
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	db := database.DefaultConfig()
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.dbname", db.DBName)
	v.SetDefault("database.sslmode", db.SSLMode)
	v.SetDefault("database.maxidleconns", db.MaxIdleConns)
	v.SetDefault("database.maxopenconns", db.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", db.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", db.ConnMaxIdleTime)
	v.SetDefault("database.loglevel", db.LogLevel)
	v.SetDefault("database.slowthreshold", db.SlowThreshold)
	v.SetDefault("database.preparestmt", db.PrepareStmt)
	v.SetDefault("database.timezone", db.Timezone)
	v.SetDefault("database.automigrate", true)

	rd := pkgredis.DefaultConfig()
	v.SetDefault("redis.mode", string(rd.Mode))
	v.SetDefault("redis.addr", rd.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", rd.DB)
	v.SetDefault("redis.pool_size", rd.PoolSize)
	v.SetDefault("redis.min_idle_conns", rd.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rd.DialTimeout)
	v.SetDefault("redis.read_timeout", rd.ReadTimeout)
	v.SetDefault("redis.write_timeout", rd.WriteTimeout)
	v.SetDefault("redis.max_retries", rd.MaxRetries)

	v.SetDefault("storage.driver", StorageMinIO)
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.access_key_id", "")
	v.SetDefault("storage.minio.secret_access_key", "")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.bucket", "uploads")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.bucket", "")

	v.SetDefault("backend.driver", BackendPostgres)
	v.SetDefault("backend.http.base_url", "http://localhost:8000")
	v.SetDefault("backend.http.timeout", 15*time.Second)
	v.SetDefault("backend.http.token", "")
	v.SetDefault("backend.http.media_prefix", "/media/")

	v.SetDefault("cache.driver", CacheMemory)
	v.SetDefault("cache.bus", "")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", "catalog")
	v.SetDefault("cache.channel", "catalog:invalidations")

	v.SetDefault("catalog.instance_id", "")
	v.SetDefault("catalog.timezone", "UTC")
	v.SetDefault("catalog.spool_dir", os.TempDir())
	v.SetDefault("catalog.batch_limit", 100)
	v.SetDefault("catalog.fetch_timeout", 30*time.Second)
	v.SetDefault("catalog.delete_timeout", 30*time.Second)
	v.SetDefault("catalog.view_idle", 10*time.Minute)
	v.SetDefault("catalog.sse_buffer", 16)
	v.SetDefault("catalog.sse_heartbeat", 30*time.Second)

	wp := workerpool.DefaultConfig()
	v.SetDefault("workerpool.workers", wp.Workers)
	v.SetDefault("workerpool.max_blocking_tasks", wp.MaxBlockingTasks)
	v.SetDefault("workerpool.expiry_duration", wp.ExpiryDuration)
	v.SetDefault("workerpool.release_timeout", wp.ReleaseTimeout)

	lg := logger.DefaultConfig()
	v.SetDefault("log.level", lg.Level)
	v.SetDefault("log.format", lg.Format)
	v.SetDefault("log.output", lg.Output)
	v.SetDefault("log.enablecaller", lg.EnableCaller)
	v.SetDefault("log.enablestacktrace", lg.EnableStacktrace)
	v.SetDefault("log.file.filename", lg.File.Filename)
	v.SetDefault("log.file.maxsize", lg.File.MaxSize)
	v.SetDefault("log.file.maxage", lg.File.MaxAge)
	v.SetDefault("log.file.maxbackups", lg.File.MaxBackups)
	v.SetDefault("log.file.compress", lg.File.Compress)
}

// Validate checks driver selections and the sections they require
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server port must be between 1 and 65535")
	}

	switch c.Backend.Driver {
	case BackendPostgres:
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	case BackendHTTP:
		if c.Backend.HTTP.BaseURL == "" {
			return errors.New("backend: http.base_url is required for the http driver")
		}
	default:
		return fmt.Errorf("backend: unknown driver %q, must be postgres or http", c.Backend.Driver)
	}

	switch c.Storage.Driver {
	case StorageMinIO:
		if err := c.Storage.MinIO.Validate(); err != nil {
			return err
		}
	case StorageS3:
		if err := c.Storage.S3.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("storage: unknown driver %q, must be minio or s3", c.Storage.Driver)
	}

	switch c.Cache.Driver {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("cache: unknown driver %q, must be memory or redis", c.Cache.Driver)
	}
	switch c.Cache.BusDriver() {
	case BusLocal, BusRedis:
	default:
		return fmt.Errorf("cache: unknown bus %q, must be local or redis", c.Cache.Bus)
	}
	if c.Cache.NeedsRedis() {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}

	if _, err := c.Catalog.Location(); err != nil {
		return fmt.Errorf("catalog: invalid timezone %q: %w", c.Catalog.Timezone, err)
	}
	if c.Catalog.BatchLimit <= 0 {
		return errors.New("catalog: batch_limit must be > 0")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
