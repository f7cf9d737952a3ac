package query

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ResultTTL bounds how stale a cached query result may be.
const ResultTTL = 30 * time.Second

// ResultCache is a short-lived cache keyed by the normalized query.
// The in-process tier always exists; a Redis tier is layered on when
// configured so replicas share results.
type ResultCache struct {
	local  *gocache.Cache
	redis  *redis.Client
	logger *logrus.Logger
}

func NewResultCache(redisAddr, redisPassword string, logger *logrus.Logger) *ResultCache {
	c := &ResultCache{
		local:  gocache.New(ResultTTL, time.Minute),
		logger: logger,
	}
	if redisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPassword})
	}
	return c
}

// Get returns the cached payload for a key, checking the local tier
// before Redis. A Redis hit repopulates the local tier.
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.local.Get(key); ok {
		return v.([]byte), true
	}
	if c.redis == nil {
		return nil, false
	}
	payload, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Debug("redis cache read failed")
		}
		return nil, false
	}
	c.local.Set(key, payload, ResultTTL)
	return payload, true
}

// Set stores a payload in both tiers. Redis failures are logged and
// ignored; the cache is best-effort.
func (c *ResultCache) Set(ctx context.Context, key string, payload []byte) {
	c.local.Set(key, payload, ResultTTL)
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, key, payload, ResultTTL).Err(); err != nil {
		c.logger.WithError(err).Debug("redis cache write failed")
	}
}

// Close releases the Redis connection, if any.
func (c *ResultCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
