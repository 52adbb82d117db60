package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"valve-gateway/internal/config"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/models"
)

// ErrMiss is returned when nothing is cached
var ErrMiss = errors.New("cache miss")

// Cache holds the latest device state for fast reads
type Cache interface {
	SetLatest(ctx context.Context, s models.TelemetrySample) error
	Latest(ctx context.Context) (models.TelemetrySample, error)
	SetConnected(ctx context.Context, connected bool) error
	Connected(ctx context.Context) (bool, error)
	Close() error
}

// StateCache stores the latest sample and link flag in redis
type StateCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStateCache connects to redis and pings it
func NewStateCache(ctx context.Context, settings config.CacheSettings) (*StateCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     settings.Addr,
		Password: settings.Password,
		DB:       settings.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", settings.Addr, err)
	}
	logger.LogInfo("🧠 Connected to redis at %s", settings.Addr)
	return NewStateCacheWithClient(client, settings.KeyPrefix, settings.TTL), nil
}

// NewStateCacheWithClient wraps an existing client
func NewStateCacheWithClient(client *redis.Client, prefix string, ttl time.Duration) *StateCache {
	if prefix == "" {
		prefix = "valve-gateway:"
	}
	return &StateCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *StateCache) latestKey() string    { return c.prefix + "telemetry:latest" }
func (c *StateCache) connectedKey() string { return c.prefix + "device:connected" }

// SetLatest stores s as JSON with the configured TTL
func (c *StateCache) SetLatest(ctx context.Context, s models.TelemetrySample) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.latestKey(), b, c.ttl).Err()
}

// Latest returns ErrMiss when the key is absent or expired
func (c *StateCache) Latest(ctx context.Context) (models.TelemetrySample, error) {
	b, err := c.client.Get(ctx, c.latestKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.TelemetrySample{}, ErrMiss
	}
	if err != nil {
		return models.TelemetrySample{}, err
	}

	var s models.TelemetrySample
	if err := json.Unmarshal(b, &s); err != nil {
		return models.TelemetrySample{}, fmt.Errorf("decode cached telemetry: %w", err)
	}
	return s, nil
}

// SetConnected records the link flag without expiry
func (c *StateCache) SetConnected(ctx context.Context, connected bool) error {
	v := "0"
	if connected {
		v = "1"
	}
	return c.client.Set(ctx, c.connectedKey(), v, 0).Err()
}

// Connected returns false on a miss
func (c *StateCache) Connected(ctx context.Context) (bool, error) {
	v, err := c.client.Get(ctx, c.connectedKey()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

func (c *StateCache) Close() error {
	return c.client.Close()
}

// MemoryCache keeps the latest state in process when redis is disabled
type MemoryCache struct {
	mu        sync.RWMutex
	latest    *models.TelemetrySample
	connected bool
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) SetLatest(_ context.Context, s models.TelemetrySample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = &s
	return nil
}

func (c *MemoryCache) Latest(_ context.Context) (models.TelemetrySample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return models.TelemetrySample{}, ErrMiss
	}
	return *c.latest, nil
}

func (c *MemoryCache) SetConnected(_ context.Context, connected bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
	return nil
}

func (c *MemoryCache) Connected(_ context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected, nil
}

func (c *MemoryCache) Close() error { return nil }

var (
	_ Cache = (*StateCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
