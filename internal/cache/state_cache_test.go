package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valve-gateway/internal/config"
	"valve-gateway/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *StateCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewStateCacheWithClient(client, "test:", 30*time.Second)
}

func TestStateCacheLatest(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	_, err := c.Latest(ctx)
	assert.ErrorIs(t, err, ErrMiss)

	s := models.TelemetrySample{Timestamp: 1700000000, Valve: models.ValveOpen, P1: 4.5, P2: 4.1, CSrc: 200, CDst: 90}
	require.NoError(t, c.SetLatest(ctx, s))
	assert.True(t, mr.Exists("test:telemetry:latest"))

	got, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	mr.FastForward(31 * time.Second)
	_, err = c.Latest(ctx)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestStateCacheConnectedFlag(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	connected, err := c.Connected(ctx)
	require.NoError(t, err)
	assert.False(t, connected)

	require.NoError(t, c.SetConnected(ctx, true))
	v, err := mr.Get("test:device:connected")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	connected, err = c.Connected(ctx)
	require.NoError(t, err)
	assert.True(t, connected)
}

func TestStateCacheServerDown(t *testing.T) {
	mr, c := setupTestRedis(t)
	mr.Close()

	assert.Error(t, c.SetLatest(context.Background(), models.TelemetrySample{}))
}

func TestNewStateCachePing(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewStateCache(context.Background(), config.CacheSettings{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "valve-gateway:", c.prefix)

	mr.Close()
	_, err = NewStateCache(context.Background(), config.CacheSettings{Addr: mr.Addr()})
	assert.Error(t, err)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, err := c.Latest(ctx)
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.SetLatest(ctx, models.TelemetrySample{Timestamp: 5}))
	got, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Timestamp)

	require.NoError(t, c.SetConnected(ctx, true))
	connected, _ := c.Connected(ctx)
	assert.True(t, connected)
}
