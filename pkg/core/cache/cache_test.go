package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// TestMemoryResultCache_SetAndGet 测试缓存设置和获取
func TestMemoryResultCache_SetAndGet(t *testing.T) {
	c := NewMemoryResultCache(time.Minute)
	defer c.Close()

	require.NoError(t, c.Set("wf:1", "parsed", time.Hour))
	v, ok := c.Get("wf:1")
	require.True(t, ok)
	assert.Equal(t, "parsed", v)

	// 空key忽略
	require.NoError(t, c.Set("", "x", time.Hour))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete("wf:1"))
	_, ok = c.Get("wf:1")
	assert.False(t, ok)
}

// TestMemoryResultCache_TTLExpiration 测试缓存TTL过期
func TestMemoryResultCache_TTLExpiration(t *testing.T) {
	c := NewMemoryResultCache(time.Minute)
	defer c.Close()

	require.NoError(t, c.Set("short", 1, 50*time.Millisecond))
	require.NoError(t, c.Set("forever", 2, 0))

	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
	v, ok := c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())
}

type countingIdempotency struct {
	lookups int
	records map[string]*workflow.IdempotencyRecord
}

func (c *countingIdempotency) Lookup(_ context.Context, route, key string) (*workflow.IdempotencyRecord, error) {
	c.lookups++
	return c.records[route+key], nil
}

func (c *countingIdempotency) Save(_ context.Context, r *workflow.IdempotencyRecord) error {
	c.records[r.Route+r.Key] = r
	return nil
}

func TestCachedIdempotencyStore(t *testing.T) {
	backend := &countingIdempotency{records: map[string]*workflow.IdempotencyRecord{}}
	c := NewMemoryResultCache(time.Minute)
	defer c.Close()
	store := NewCachedIdempotencyStore(backend, c, time.Hour)
	ctx := context.Background()

	// 未命中不缓存
	rec, err := store.Lookup(ctx, "route", "k")
	require.NoError(t, err)
	assert.Nil(t, rec)
	_, _ = store.Lookup(ctx, "route", "k")
	assert.Equal(t, 2, backend.lookups)

	require.NoError(t, store.Save(ctx, &workflow.IdempotencyRecord{Route: "route", Key: "k", StatusCode: 200}))
	rec, err = store.Lookup(ctx, "route", "k")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 200, rec.StatusCode)
	assert.Equal(t, 2, backend.lookups)
}
