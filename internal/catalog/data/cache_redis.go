package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
	pkgredis "github.com/lk2023060901/file-catalog/internal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
)

// setIfCurrent stores a result only while its generation is still current.
// KEYS[1] generation counter, KEYS[2] result key; ARGV generation, payload, ttl ms.
var setIfCurrent = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1]) or '0'
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisCache 基于 Redis 的共享结果缓存，所有实例共用同一个 generation
type RedisCache struct {
	client *pkgredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache under prefix; results expire after ttl (default 5 minutes)
func NewRedisCache(client *pkgredis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "catalog"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// keys share a hash tag so the script stays in one cluster slot
func (c *RedisCache) generationKey() string {
	return "{" + c.prefix + "}:generation"
}

func (c *RedisCache) resultKey(generation uint64, key string) string {
	return "{" + c.prefix + "}:results:" + strconv.FormatUint(generation, 10) + ":" + key
}

func (c *RedisCache) Generation(ctx context.Context) (uint64, error) {
	v, err := c.client.Get(ctx, c.generationKey())
	if pkgredis.IsNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	gen, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cache generation %q: %w", v, err)
	}
	return gen, nil
}

func (c *RedisCache) Bump(ctx context.Context) (uint64, error) {
	n, err := c.client.Incr(ctx, c.generationKey())
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (c *RedisCache) Get(ctx context.Context, generation uint64, key string) ([]*biz.Entry, bool, error) {
	v, err := c.client.Get(ctx, c.resultKey(generation, key))
	if pkgredis.IsNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var dtos []entryDTO
	if err := json.Unmarshal([]byte(v), &dtos); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	entries := make([]*biz.Entry, 0, len(dtos))
	for i := range dtos {
		entries = append(entries, dtos[i].toEntry())
	}
	return entries, true, nil
}

func (c *RedisCache) Set(ctx context.Context, generation uint64, key string, entries []*biz.Entry) error {
	dtos := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, newEntryDTO(e))
	}
	payload, err := json.Marshal(dtos)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = c.client.RunScript(ctx, setIfCurrent,
		[]string{c.generationKey(), c.resultKey(generation, key)},
		strconv.FormatUint(generation, 10), payload, c.ttl.Milliseconds(),
	)
	return err
}

func (c *RedisCache) Shared() bool {
	return true
}

// entryDTO 缓存中的条目序列化格式
type entryDTO struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	FileType         string    `json:"file_type"`
	SizeBytes        int64     `json:"size"`
	UploadedAt       time.Time `json:"uploaded_at"`
	DownloadLocator  string    `json:"file"`
	ContentHash      *string   `json:"content_hash"`
	IsDuplicate      bool      `json:"is_duplicate"`
	ReferenceCount   int       `json:"reference_count"`
	ReferencedFileID *string   `json:"referenced_file_id"`
}

func newEntryDTO(e *biz.Entry) entryDTO {
	return entryDTO{
		ID:               e.ID,
		OriginalFilename: e.OriginalFilename,
		FileType:         e.FileType,
		SizeBytes:        e.SizeBytes,
		UploadedAt:       e.UploadedAt,
		DownloadLocator:  e.DownloadLocator,
		ContentHash:      e.ContentHash,
		IsDuplicate:      e.IsDuplicate,
		ReferenceCount:   e.ReferenceCount,
		ReferencedFileID: e.ReferencedFileID,
	}
}

func (d *entryDTO) toEntry() *biz.Entry {
	return &biz.Entry{
		ID:               d.ID,
		OriginalFilename: d.OriginalFilename,
		FileType:         d.FileType,
		SizeBytes:        d.SizeBytes,
		UploadedAt:       d.UploadedAt,
		DownloadLocator:  d.DownloadLocator,
		ContentHash:      d.ContentHash,
		IsDuplicate:      d.IsDuplicate,
		ReferenceCount:   d.ReferenceCount,
		ReferencedFileID: d.ReferencedFileID,
	}
}
