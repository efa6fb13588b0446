package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/san-kum/shot-tracer/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleShot() models.ShotResult {
	return models.ShotResult{
		ID:        "shot-1",
		SessionID: "session-1",
		Index:     1,
		Trajectory: models.Trajectory{
			ID: "cand",
			DetectedPoints: []models.TrackedPoint{
				{Position: models.NormalizedPoint{X: 0.1, Y: 0.8}, Timestamp: time.Millisecond, Confidence: 0.9},
			},
			Fit:        models.FitCoefficients{A: 2, B: -2, C: 0.8},
			Convention: models.ConventionTopLeft,
		},
		EndFrame:    42,
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(10, time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	shot := sampleShot()
	require.NoError(t, c.Set(ctx, "k", shot))

	var got models.ShotResult
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, shot, got)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	ttl, err := c.GetTTL(ctx, "k")
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(10, time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "short", 1, -time.Second))
	var v int
	assert.ErrorIs(t, c.Get(ctx, "short", &v), ErrCacheMiss)

	exists, err := c.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.SetWithTTL(ctx, "gone", 1, -time.Second))
	assert.Equal(t, 1, c.removeExpired(time.Now()))
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(2, time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", 2))
	time.Sleep(2 * time.Millisecond)

	var v int
	require.NoError(t, c.Get(ctx, "a", &v))
	require.NoError(t, c.Set(ctx, "c", 3))

	assert.NoError(t, c.Get(ctx, "a", &v))
	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "c", &v))
	assert.Equal(t, 3, v)

	require.NoError(t, c.Set(ctx, "c", 4), "overwriting does not evict")
	assert.NoError(t, c.Get(ctx, "a", &v))

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Backend)
	assert.Contains(t, stats.Info, "items=2")
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := NewMemoryCache(1, time.Minute, zap.NewNop())
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestGenerateCacheKey(t *testing.T) {
	assert.NotEqual(t, GenerateCacheKey("ab", "c"), GenerateCacheKey("a", "bc"))
	assert.Equal(t, GenerateCacheKey("a", "b"), GenerateCacheKey("a", "b"))
	assert.Len(t, GenerateCacheKey("x"), 32)
	assert.Equal(t, "shot:"+GenerateCacheKey("s", "1"), ShotKey("s", "1"))
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	c, err := NewRedisCache(mr.Host(), port, "", 0, 4, time.Minute, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	shot := sampleShot()
	require.NoError(t, c.Set(ctx, "k", shot))

	var got models.ShotResult
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, shot, got)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	ttl, err := c.GetTTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	_, err = c.GetTTL(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.ErrorIs(t, c.Get(ctx, "missing", &got), ErrCacheMiss)

	require.NoError(t, c.Delete(ctx, "k"))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Connected)
	assert.Equal(t, "redis", stats.Backend)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	_, err := NewRedisCache("127.0.0.1", 1, "", 0, 1, time.Minute, zap.NewNop())
	assert.Error(t, err)
}
