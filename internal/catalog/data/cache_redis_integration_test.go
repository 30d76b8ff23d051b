//go:build integration

package data

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/file-catalog/internal/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	cfg := pkgredis.DefaultConfig()
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	client, err := pkgredis.New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisCacheGenerations(t *testing.T) {
	ctx := t.Context()
	cache := NewRedisCache(setupRedis(t), "test-"+uuid.NewString(), time.Minute)
	entries := []*biz.Entry{{ID: "a", OriginalFilename: "a.txt", UploadedAt: time.Now().UTC()}}

	gen, err := cache.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)

	require.NoError(t, cache.Set(ctx, gen, "*", entries))
	got, ok, err := cache.Get(ctx, gen, "*")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a.txt", got[0].OriginalFilename)

	next, err := cache.Bump(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)

	// stale writes are dropped by the script
	require.NoError(t, cache.Set(ctx, gen, "other", entries))
	_, ok, err = cache.Get(ctx, gen, "other")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, cache.Shared())
}

func TestRedisBusRelaysRemoteInvalidations(t *testing.T) {
	client := setupRedis(t)
	channel := "test:" + uuid.NewString()
	a := NewRedisBus(client, channel, "node-a", logger.NewNop())
	b := NewRedisBus(client, channel, "node-b", logger.NewNop())

	received := make(chan biz.Invalidation, 4)
	b.Subscribe(func(inv biz.Invalidation) { received <- inv })

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = b.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, a.Publish(t.Context(), biz.Invalidation{Generation: 7, Reason: "delete", Origin: "node-a"}))

	select {
	case inv := <-received:
		assert.Equal(t, uint64(7), inv.Generation)
		assert.Equal(t, "node-a", inv.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation not relayed")
	}
}
