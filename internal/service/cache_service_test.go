package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cacheMetricsStub struct {
	hits, misses, writes int
}

func (m *cacheMetricsStub) RecordCacheOperation(hit bool, duration time.Duration) {
	if hit {
		m.hits++
		return
	}
	m.misses++
}

func (m *cacheMetricsStub) ObserveCacheWrite(duration time.Duration) { m.writes++ }

func TestCacheServiceRecordsHitsAndMisses(t *testing.T) {
	metrics := &cacheMetricsStub{}
	cache, mr := newRedisCache(t, metrics)
	ctx := context.Background()

	var out map[string]string
	hit, err := cache.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, "k", map[string]string{"a": "b"}, 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	hit, err = cache.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "b", out["a"])
	assert.Equal(t, cacheMetricsStub{hits: 1, misses: 1, writes: 1}, *metrics)

	require.NoError(t, cache.Set(ctx, "entity:slug:a", 1, time.Minute))
	require.NoError(t, cache.Set(ctx, "entity:slug:b", 2, time.Minute))
	require.NoError(t, cache.Invalidate(ctx, "entity:slug:*"))
	assert.False(t, mr.Exists("entity:slug:a"))
	assert.False(t, mr.Exists("entity:slug:b"))

	require.NoError(t, cache.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestDisabledCacheServiceIsEmpty(t *testing.T) {
	cache := NewCacheService(nil, nil, 0, nil, true)
	assert.False(t, cache.Enabled())

	hit, err := cache.Get(context.Background(), "k", &struct{}{})
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, cache.Set(context.Background(), "k", 1, 0))
	assert.NoError(t, cache.Delete(context.Background(), "k"))
}
