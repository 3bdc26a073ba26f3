package userinfra

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/custodia/pkg/errx"
	"github.com/Abraxas-365/custodia/pkg/iam/user"
	"github.com/Abraxas-365/custodia/pkg/kernel"
	"github.com/Abraxas-365/custodia/pkg/logx"
	"github.com/redis/go-redis/v9"
)

// RedisProjectionCache caches session projections in redis with a short TTL.
// The authorizer reads through it on cookie-authenticated requests; profile
// mutations invalidate entries synchronously and the TTL covers anything
// that slips past.
type RedisProjectionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProjectionCache creates a new cache instance.
func NewRedisProjectionCache(client *redis.Client, ttl time.Duration) user.ProjectionCache {
	return &RedisProjectionCache{client: client, ttl: ttl}
}

func projectionKey(id kernel.UserID) string {
	return "custodia:projection:" + id.String()
}

// Get returns the cached projection for the user, if present. Cache errors
// degrade to a miss: the store is always able to serve the projection.
func (c *RedisProjectionCache) Get(ctx context.Context, id kernel.UserID) (*kernel.SessionProjection, bool) {
	data, err := c.client.Get(ctx, projectionKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logx.WithError(err).WithField("user_id", id).Warn("projection cache read failed")
		}
		return nil, false
	}

	var p kernel.SessionProjection
	if err := json.Unmarshal(data, &p); err != nil {
		logx.WithError(err).WithField("user_id", id).Warn("projection cache entry corrupted")
		return nil, false
	}
	return &p, true
}

// Set stores the projection under the configured TTL.
func (c *RedisProjectionCache) Set(ctx context.Context, id kernel.UserID, p *kernel.SessionProjection) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errx.Wrap(err, "failed to encode session projection", errx.TypeInternal)
	}

	if err := c.client.Set(ctx, projectionKey(id), data, c.ttl).Err(); err != nil {
		return errx.Wrap(err, "failed to cache session projection", errx.TypeExternal)
	}
	return nil
}

// Invalidate removes the cached projection. Called synchronously by any
// handler that mutates the underlying profile.
func (c *RedisProjectionCache) Invalidate(ctx context.Context, id kernel.UserID) error {
	if err := c.client.Del(ctx, projectionKey(id)).Err(); err != nil {
		return errx.Wrap(err, "failed to invalidate session projection", errx.TypeExternal)
	}
	return nil
}
