package biz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheGenerations(t *testing.T) {
	ctx := t.Context()
	c := NewMemoryCache(0)

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, gen, "*", dedupCatalog()))

	got, ok, err := c.Get(ctx, gen, "*")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 4)

	next, err := c.Bump(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)

	_, ok, _ = c.Get(ctx, gen, "*")
	assert.False(t, ok, "old generation must be gone")
	_, ok, _ = c.Get(ctx, next, "*")
	assert.False(t, ok)

	// a write computed before the bump is ignored
	require.NoError(t, c.Set(ctx, gen, "*", dedupCatalog()))
	_, ok, _ = c.Get(ctx, next, "*")
	assert.False(t, ok)
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	ctx := t.Context()
	c := NewMemoryCache(0)
	require.NoError(t, c.Set(ctx, 0, "*", dedupCatalog()))

	got, _, _ := c.Get(ctx, 0, "*")
	got[0].OriginalFilename = "mutated"
	*got[0].ContentHash = "mutated"

	again, _, _ := c.Get(ctx, 0, "*")
	assert.Equal(t, "report.pdf", again[0].OriginalFilename)
	assert.Equal(t, "abc", *again[0].ContentHash)
}

func TestMemoryCacheBoundedKeys(t *testing.T) {
	ctx := t.Context()
	c := NewMemoryCache(2)
	require.NoError(t, c.Set(ctx, 0, "a", nil))
	require.NoError(t, c.Set(ctx, 0, "b", nil))
	require.NoError(t, c.Set(ctx, 0, "c", nil))

	_, ok, _ := c.Get(ctx, 0, "c")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, 0, "a")
	assert.False(t, ok)
	assert.False(t, c.Shared())
}

func TestLocalBus(t *testing.T) {
	bus := NewLocalBus()
	var got []Invalidation
	unsubscribe := bus.Subscribe(func(inv Invalidation) { got = append(got, inv) })

	inv := Invalidation{Generation: 3, Reason: "delete", EntryIDs: []string{"a"}, Origin: "node-1", At: time.Now()}
	require.NoError(t, bus.Publish(t.Context(), inv))
	unsubscribe()
	require.NoError(t, bus.Publish(t.Context(), inv))

	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Generation)
}
