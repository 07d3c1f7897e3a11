package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedClient wraps a Client with an in-process L1 cache and an optional
// shared L2 cache in Redis, so a hot role's config survives process
// restarts without hammering the upstream registry.
type CachedClient struct {
	origin Client
	l1     *ttlCache
	redis  *redis.Client
	ttl    time.Duration
}

// NewCachedClient returns a CachedClient. redisClient may be nil, in which
// case only the L1 cache is used.
func NewCachedClient(origin Client, redisClient *redis.Client, ttl time.Duration) *CachedClient {
	return &CachedClient{
		origin: origin,
		l1:     newTTLCache(ttl),
		redis:  redisClient,
		ttl:    ttl,
	}
}

// FetchRoleConfig checks L1, then L2, then the origin registry, populating
// faster tiers on the way back out.
func (c *CachedClient) FetchRoleConfig(ctx context.Context, role string) (RoleConfig, error) {
	if cfg, ok := c.l1.get(role); ok {
		return cfg, nil
	}

	if c.redis != nil {
		if cfg, ok := c.fetchFromRedis(ctx, role); ok {
			c.l1.set(role, cfg)
			return cfg, nil
		}
	}

	cfg, err := c.origin.FetchRoleConfig(ctx, role)
	if err != nil {
		return RoleConfig{}, err
	}

	c.l1.set(role, cfg)
	if c.redis != nil {
		c.storeInRedis(ctx, role, cfg)
	}
	return cfg, nil
}

func (c *CachedClient) redisKey(role string) string {
	return "swarmrun:registry:role:" + role
}

func (c *CachedClient) fetchFromRedis(ctx context.Context, role string) (RoleConfig, bool) {
	raw, err := c.redis.Get(ctx, c.redisKey(role)).Bytes()
	if err != nil {
		return RoleConfig{}, false
	}
	var cfg RoleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return RoleConfig{}, false
	}
	return cfg, true
}

func (c *CachedClient) storeInRedis(ctx context.Context, role string, cfg RoleConfig) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	c.redis.Set(ctx, c.redisKey(role), payload, c.ttl)
}
