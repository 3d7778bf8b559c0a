package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cropdoc/internal/types"
)

// ErrCacheMiss is returned by a RemoteCache that has no entry for a key.
var ErrCacheMiss = errors.New("weather: cache miss")

// RemoteCache is a shared second-level cache, usually Redis.
type RemoteCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached fronts a Provider with an in-process expirable LRU and an optional
// remote cache. Coordinates are rounded to two decimals (about 1 km) for keys.
type Cached struct {
	next   Provider
	local  *expirable.LRU[string, types.WeatherSnapshot]
	remote RemoteCache
	ttl    time.Duration
	log    *zap.Logger
}

func NewCached(next Provider, size int, ttl time.Duration, remote RemoteCache, log *zap.Logger) *Cached {
	if size <= 0 {
		size = 512
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{
		next:   next,
		local:  expirable.NewLRU[string, types.WeatherSnapshot](size, nil, ttl),
		remote: remote,
		ttl:    ttl,
		log:    log,
	}
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("weather:%.2f,%.2f", lat, lon)
}

func (c *Cached) Fetch(ctx context.Context, lat, lon float64) (*types.WeatherSnapshot, error) {
	key := cacheKey(lat, lon)
	if w, ok := c.local.Get(key); ok {
		return &w, nil
	}
	if c.remote != nil {
		b, err := c.remote.Get(ctx, key)
		switch {
		case err == nil:
			var w types.WeatherSnapshot
			if jerr := json.Unmarshal(b, &w); jerr == nil {
				c.local.Add(key, w)
				return &w, nil
			}
		case !errors.Is(err, ErrCacheMiss):
			c.log.Warn("weather remote cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	w, err := c.next.Fetch(ctx, lat, lon)
	if err != nil || w == nil {
		return w, err
	}
	c.local.Add(key, *w)
	if c.remote != nil {
		if b, err := json.Marshal(w); err == nil {
			if err := c.remote.Set(ctx, key, b, c.ttl); err != nil {
				c.log.Warn("weather remote cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return w, nil
}

// RedisCache implements RemoteCache on go-redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects and pings the server.
func NewRedisCache(ctx context.Context, addr string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{client: client, prefix: "cropdoc:"}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error { return r.client.Close() }
